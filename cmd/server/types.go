package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/landmark/internal/service"
	"github.com/himanishpuri/landmark/internal/storage"
	"github.com/himanishpuri/landmark/pkg/landmark"
)

// MaxLookupHashes bounds a single POST /api/hashes/lookup request.
const MaxLookupHashes = 50000

// LookupRequest is the request body for POST /api/hashes/lookup
type LookupRequest struct {
	Hashes []uint32 `json:"hashes"`
}

// Validate checks if the request is valid
func (r *LookupRequest) Validate() error {
	if len(r.Hashes) == 0 {
		return fmt.Errorf("hashes cannot be empty")
	}
	if len(r.Hashes) > MaxLookupHashes {
		return fmt.Errorf("too many hashes: %d (maximum: %d)", len(r.Hashes), MaxLookupHashes)
	}
	for _, h := range r.Hashes {
		if h > 0xFFFFFF {
			return fmt.Errorf("invalid hash %#x: only 24 bits are used", h)
		}
	}
	return nil
}

// OccurrenceDTO is one stored occurrence of a hash.
type OccurrenceDTO struct {
	TrackID     string `json:"track_id"`
	AnchorFrame int32  `json:"anchor_frame"`
}

// LookupResponse maps each found hash to its occurrences.
type LookupResponse struct {
	Occurrences map[uint32][]OccurrenceDTO `json:"occurrences"`
	Found       int                        `json:"found"`
}

// HashDTO is one hash with its decoded fields.
type HashDTO struct {
	Hash      uint32 `json:"hash"`
	AnchorBin int    `json:"anchor_bin"`
	TargetBin int    `json:"target_bin"`
	Distance  int    `json:"distance"`
}

func newHashDTO(h landmark.Hash) HashDTO {
	a, t, d := h.Fields()
	return HashDTO{Hash: uint32(h), AnchorBin: a, TargetBin: t, Distance: d}
}

// BatchDTO holds the hashes of one anchor frame.
type BatchDTO struct {
	AnchorIndex int       `json:"anchor_index"`
	Hashes      []HashDTO `json:"hashes"`
}

// SummaryDTO mirrors landmark.Summary.
type SummaryDTO struct {
	TotalFrames    int `json:"total_frames"`
	RetainedFrames int `json:"retained_frames"`
	DroppedFrames  int `json:"dropped_frames"`
	Batches        int `json:"batches"`
	Hashes         int `json:"hashes"`
}

func newSummaryDTO(s landmark.Summary) SummaryDTO {
	return SummaryDTO(s)
}

// FingerprintResponse is the response for POST /api/fingerprint
type FingerprintResponse struct {
	Filename   string     `json:"filename"`
	SampleRate int        `json:"sample_rate"`
	DurationMs int        `json:"duration_ms"`
	Summary    SummaryDTO `json:"summary"`
	Batches    []BatchDTO `json:"batches"`
}

func newFingerprintResponse(name string, tf *service.TrackFingerprint) FingerprintResponse {
	batches := make([]BatchDTO, len(tf.Batches))
	for i, b := range tf.Batches {
		hashes := make([]HashDTO, len(b.Hashes))
		for j, h := range b.Hashes {
			hashes[j] = newHashDTO(h)
		}
		batches[i] = BatchDTO{AnchorIndex: b.AnchorIndex, Hashes: hashes}
	}
	return FingerprintResponse{
		Filename:   name,
		SampleRate: tf.SampleRate,
		DurationMs: tf.DurationMs,
		Summary:    newSummaryDTO(tf.Summary),
		Batches:    batches,
	}
}

// TrackDTO represents a track in API responses
type TrackDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SampleRate  int       `json:"sample_rate"`
	WindowSize  int       `json:"window_size"`
	HopSize     int       `json:"hop_size"`
	DurationMs  int       `json:"duration_ms"`
	TotalFrames int       `json:"total_frames"`
	HashCount   int       `json:"hash_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func newTrackDTO(t *storage.Track) TrackDTO {
	return TrackDTO{
		ID:          t.ID,
		Title:       t.Title,
		SampleRate:  t.SampleRate,
		WindowSize:  t.WindowSize,
		HopSize:     t.HopSize,
		DurationMs:  t.DurationMs,
		TotalFrames: t.TotalFrames,
		HashCount:   t.HashCount,
		CreatedAt:   t.CreatedAt,
	}
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// StoredHashDTO is a stored hash with its anchor time.
type StoredHashDTO struct {
	HashDTO
	AnchorFrame  int32 `json:"anchor_frame"`
	AnchorTimeMs int   `json:"anchor_time_ms"`
}

// TrackHashesResponse is the response for GET /api/tracks/{id}/hashes
type TrackHashesResponse struct {
	TrackID string          `json:"track_id"`
	Hashes  []StoredHashDTO `json:"hashes"`
	Count   int             `json:"count"`
}

// DeleteTrackResponse is the response for DELETE /api/tracks/{id}
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status       string `json:"status"`
	DatabasePath string `json:"database_path"`
	TrackCount   int    `json:"track_count"`
	HashCount    int64  `json:"hash_count"`
	SampleRate   int    `json:"sample_rate"`
	WindowSize   int    `json:"window_size"`
	HopSize      int    `json:"hop_size"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
