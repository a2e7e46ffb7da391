package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/landmark/internal/spectrum"
	"github.com/himanishpuri/landmark/pkg/landmark"
)

const DefaultDBFile = "landmark.sqlite3"
const errDBClientNil = "db client is nil"

// ErrTrackNotFound is returned by lookups of unknown track ids.
var ErrTrackNotFound = errors.New("track not found")

type DBClient struct {
	DB      *gorm.DB
	db      *sql.DB
	dialect string
}

type Track struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string `gorm:"uniqueIndex:idx_track_analysis,priority:1" json:"title"`
	Path        string `gorm:"uniqueIndex:idx_track_analysis,priority:2" json:"path"`
	SampleRate  int    `gorm:"uniqueIndex:idx_track_analysis,priority:3" json:"sample_rate"`
	WindowSize  int    `gorm:"uniqueIndex:idx_track_analysis,priority:4" json:"window_size"`
	HopSize     int    `gorm:"uniqueIndex:idx_track_analysis,priority:5" json:"hop_size"`
	DurationMs  int    `json:"duration_ms"`
	TotalFrames int    `json:"total_frames"`
	HashCount   int    `json:"hash_count"`
	CreatedAt   time.Time
}

// Fingerprint is one stored hash. AnchorFrame is the STFT frame index of the
// anchor peak; with the track's hop size and rate it maps to a time.
type Fingerprint struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Hash        uint32 `gorm:"index:idx_hash" json:"hash"`
	TrackID     string `gorm:"type:varchar(36);index:idx_track" json:"track_id"`
	AnchorFrame int32  `json:"anchor_frame"`
}

// AnchorTimeMs converts the anchor frame to the nearest millisecond.
func (f Fingerprint) AnchorTimeMs(t *Track) int {
	if t.SampleRate == 0 {
		return 0
	}
	return int(math.Round(spectrum.FrameTime(int(f.AnchorFrame), t.HopSize, t.SampleRate) * 1000))
}

// NewDBClient opens the database named by LANDMARK_DB_PATH, or DefaultDBFile.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("LANDMARK_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

// IsPostgresDSN reports whether dsn names a PostgreSQL server rather than a
// SQLite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// NewDBClientWithPath opens a SQLite file, or a PostgreSQL database when dsn
// is a postgres URL or keyword string, and migrates the schema.
func NewDBClientWithPath(dsn string) (*DBClient, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var (
		dialector gorm.Dialector
		dialect   string
	)
	if IsPostgresDSN(dsn) {
		dialector, dialect = postgres.Open(dsn), "postgres"
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
		dialect = "sqlite"
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	// older databases keyed tracks on title and path alone
	if m := db.Migrator(); m.HasIndex(&Track{}, "idx_track_unique") {
		if err := m.DropIndex(&Track{}, "idx_track_unique"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("dropping old track index: %w", err)
		}
	}

	return &DBClient{DB: db, db: sqlDB, dialect: dialect}, nil
}

// Dialect is "sqlite" or "postgres".
func (c *DBClient) Dialect() string {
	return c.dialect
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterTrack stores t under a new id and returns it. A track with the
// same title, path and analysis settings (rate, window, hop) is reused;
// hashes from other settings are not comparable, so those get a new id.
func (c *DBClient) RegisterTrack(t Track) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	var existing Track
	err := c.sameTrack(t).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing track: %w", err)
	}

	t.ID = uuid.NewString()
	if err := c.DB.Create(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "constraint failed") {
			if fetchErr := c.sameTrack(t).First(&existing).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching track after constraint violation: %w", fetchErr)
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("creating track: %w", err)
	}

	return t.ID, nil
}

func (c *DBClient) sameTrack(t Track) *gorm.DB {
	return c.DB.Where("title = ? AND path = ? AND sample_rate = ? AND window_size = ? AND hop_size = ?",
		t.Title, t.Path, t.SampleRate, t.WindowSize, t.HopSize)
}

// UpdateTrackStats records the totals of a finished fingerprint run.
func (c *DBClient) UpdateTrackStats(trackID string, totalFrames, hashCount int) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.Model(&Track{}).Where("id = ?", trackID).Updates(map[string]any{
		"total_frames": totalFrames,
		"hash_count":   hashCount,
	})
	if res.Error != nil {
		return fmt.Errorf("updating track stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	return nil
}

func (c *DBClient) GetTrack(trackID string) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var t Track
	if err := c.DB.Where("id = ?", trackID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &t, nil
}

// ListTracks returns all tracks, oldest first.
func (c *DBClient) ListTracks() ([]Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var tracks []Track
	if err := c.DB.Order("created_at, id").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	return tracks, nil
}

func (c *DBClient) DeleteTrackByID(trackID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", trackID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", trackID).Delete(&Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
		}
		return nil
	})
}

// StoreBatches writes every hash of batches for trackID.
func (c *DBClient) StoreBatches(trackID string, batches []landmark.HashBatch) error {
	w := c.NewHashWriter(trackID)
	for _, b := range batches {
		if err := w.Hashes(b); err != nil {
			return err
		}
	}
	return w.Flush()
}

// TrackHashes returns the stored hashes of a track in anchor frame order.
func (c *DBClient) TrackHashes(trackID string) ([]Fingerprint, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Fingerprint
	if err := c.DB.Where("track_id = ?", trackID).Order("anchor_frame, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	return rows, nil
}

func (c *DBClient) HashCount(trackID string) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&Fingerprint{}).Where("track_id = ?", trackID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return n, nil
}

// GetFingerprintsByHashes looks up stored entries for each hash.
func (c *DBClient) GetFingerprintsByHashes(hashes []uint32) (map[uint32][]Fingerprint, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	result := make(map[uint32][]Fingerprint)
	if len(hashes) == 0 {
		return result, nil
	}

	var rows []Fingerprint
	if err := c.DB.Where("hash IN ?", hashes).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("batch querying fingerprints: %w", err)
	}
	for _, r := range rows {
		result[r.Hash] = append(result[r.Hash], r)
	}
	return result, nil
}

const (
	writerFlushSize = 1000
	insertBatchSize = 500
)

// HashWriter is a landmark.Sink that buffers hashes for one track and inserts
// them in batches.
type HashWriter struct {
	c       *DBClient
	trackID string
	entries []Fingerprint
	written int
}

func (c *DBClient) NewHashWriter(trackID string) *HashWriter {
	return &HashWriter{
		c:       c,
		trackID: trackID,
		entries: make([]Fingerprint, 0, writerFlushSize),
	}
}

func (w *HashWriter) Hashes(batch landmark.HashBatch) error {
	for _, h := range batch.Hashes {
		w.entries = append(w.entries, Fingerprint{
			Hash:        uint32(h),
			TrackID:     w.trackID,
			AnchorFrame: int32(batch.AnchorIndex),
		})
		if len(w.entries) >= writerFlushSize {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush inserts the buffered hashes.
func (w *HashWriter) Flush() error {
	if len(w.entries) == 0 {
		return nil
	}
	if w.c == nil || w.c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if err := w.c.DB.CreateInBatches(w.entries, insertBatchSize).Error; err != nil {
		return fmt.Errorf("batch insert fingerprints: %w", err)
	}
	w.written += len(w.entries)
	w.entries = w.entries[:0]
	return nil
}

// Written is the number of hashes inserted so far.
func (w *HashWriter) Written() int {
	return w.written
}
