package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/landmark/internal/service"
	"github.com/himanishpuri/landmark/internal/storage"
	"github.com/himanishpuri/landmark/pkg/landmark"
	"github.com/himanishpuri/landmark/pkg/logger"
)

const maxUploadSize = 100 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service *service.FingerprintService
	config  *ServerConfig
	log     *logger.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	AllowedOrigins []string
}

func NewServer(svc *service.FingerprintService, config *ServerConfig) *Server {
	return &Server{
		service: svc,
		config:  config,
		log:     logger.GetLogger().With("http"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// saveUpload copies the "audio" form file into the temp directory. The caller
// removes the returned path.
func (s *Server) saveUpload(r *http.Request) (path, name string, err error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return "", "", fmt.Errorf("failed to parse form data: %w", err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", "", errors.New("audio file is required")
	}
	defer file.Close()

	path, err = s.writeTemp(file, header)
	if err != nil {
		return "", "", err
	}
	return path, header.Filename, nil
}

func (s *Server) writeTemp(file multipart.File, header *multipart.FileHeader) (string, error) {
	// keep the extension, the decoder is picked by it
	ext := strings.ToLower(filepath.Ext(header.Filename))
	tempFile := filepath.Join(s.config.TempDir, "upload_"+uuid.NewString()+ext)

	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to process upload: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	return tempFile, nil
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "landmark API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /api/health/metrics",
			"tracks":      "GET /api/tracks",
			"addTrack":    "POST /api/tracks",
			"getTrack":    "GET /api/tracks/{id}",
			"trackHashes": "GET /api/tracks/{id}/hashes",
			"deleteTrack": "DELETE /api/tracks/{id}",
			"fingerprint": "POST /api/fingerprint",
			"spectrogram": "POST /api/spectrogram",
			"lookup":      "POST /api/hashes/lookup",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks()
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	var hashes int64
	for _, t := range tracks {
		hashes += int64(t.HashCount)
	}

	cfg := s.service.Generator().Config()
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		TrackCount:   len(tracks),
		HashCount:    hashes,
		SampleRate:   cfg.SampleRate,
		WindowSize:   cfg.WindowSize,
		HopSize:      cfg.HopSize,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks()
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i := range tracks {
		dtos[i] = newTrackDTO(&tracks[i])
	}
	s.respondJSON(w, http.StatusOK, ListTracksResponse{Tracks: dtos, Count: len(dtos)})
}

// handleAddTrack handles POST /api/tracks (multipart file upload)
func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	path, name, err := s.saveUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	track, err := s.service.AddTrack(ctx, path, title)
	if err != nil {
		s.log.Errorf("Failed to add track: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to add track: %v", err))
		return
	}

	s.log.Infof("Added track %s (%s): %d hashes", track.Title, track.ID, track.HashCount)
	s.respondJSON(w, http.StatusCreated, newTrackDTO(track))
}

func (s *Server) trackError(w http.ResponseWriter, trackID string, err error) {
	if errors.Is(err, storage.ErrTrackNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track with ID %s not found", trackID))
		return
	}
	s.log.Errorf("Track %s: %v", trackID, err)
	s.respondError(w, http.StatusInternalServerError, "Failed to retrieve track")
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, trackID string) {
	track, err := s.service.GetTrack(trackID)
	if err != nil {
		s.trackError(w, trackID, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newTrackDTO(track))
}

// handleTrackHashes handles GET /api/tracks/{id}/hashes
func (s *Server) handleTrackHashes(w http.ResponseWriter, r *http.Request, trackID string) {
	track, err := s.service.GetTrack(trackID)
	if err != nil {
		s.trackError(w, trackID, err)
		return
	}
	rows, err := s.service.TrackHashes(trackID)
	if err != nil {
		s.trackError(w, trackID, err)
		return
	}

	hashes := make([]StoredHashDTO, len(rows))
	for i, row := range rows {
		hashes[i] = StoredHashDTO{
			HashDTO:      newHashDTO(landmark.Hash(row.Hash)),
			AnchorFrame:  row.AnchorFrame,
			AnchorTimeMs: row.AnchorTimeMs(track),
		}
	}
	s.respondJSON(w, http.StatusOK, TrackHashesResponse{TrackID: trackID, Hashes: hashes, Count: len(hashes)})
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, trackID string) {
	if err := s.service.DeleteTrack(trackID); err != nil {
		s.trackError(w, trackID, err)
		return
	}

	s.log.Infof("Deleted track %s", trackID)
	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted successfully",
		ID:      trackID,
	})
}

// handleFingerprint handles POST /api/fingerprint (multipart file upload)
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, name, err := s.saveUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	tf, err := s.service.FingerprintFile(ctx, path)
	if err != nil {
		s.log.Errorf("Failed to fingerprint %s: %v", name, err)
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to fingerprint: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, newFingerprintResponse(name, tf))
}

// handleSpectrogram handles POST /api/spectrogram and responds with a PNG
func (s *Server) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, name, err := s.saveUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	residual, _ := strconv.ParseBool(r.URL.Query().Get("residual"))
	out := path + ".png"
	defer os.Remove(out)

	if _, err := s.service.RenderSpectrogram(ctx, path, out, residual); err != nil {
		s.log.Errorf("Failed to render %s: %v", name, err)
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to render spectrogram: %v", err))
		return
	}

	img, err := os.ReadFile(out)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to read spectrogram")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// handleLookup handles POST /api/hashes/lookup
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := s.service.LookupHashes(req.Hashes)
	if err != nil {
		s.log.Errorf("Failed to look up hashes: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to look up hashes")
		return
	}

	occ := make(map[uint32][]OccurrenceDTO, len(found))
	for h, rows := range found {
		for _, row := range rows {
			occ[h] = append(occ[h], OccurrenceDTO{TrackID: row.TrackID, AnchorFrame: row.AnchorFrame})
		}
	}
	s.respondJSON(w, http.StatusOK, LookupResponse{Occurrences: occ, Found: len(occ)})
}

// handleTracks routes requests to /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleAddTrack(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/tracks/{id} and /api/tracks/{id}/hashes
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	trackID, sub, _ := strings.Cut(rest, "/")
	if trackID == "" {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch {
	case sub == "hashes" && r.Method == http.MethodGet:
		s.handleTrackHashes(w, r, trackID)
	case sub != "":
		http.NotFound(w, r)
	case r.Method == http.MethodGet:
		s.handleGetTrack(w, r, trackID)
	case r.Method == http.MethodDelete:
		s.handleDeleteTrack(w, r, trackID)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
