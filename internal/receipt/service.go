package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Extractor runs the extraction pipeline over the parts of one receipt
type Extractor interface {
	Extract(ctx context.Context, parts []extraction.InputPart) (*extraction.ReceiptData, error)
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates time-ordered UUIDv7 IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs extractions and journals every attempt
type Service struct {
	db          DB
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor Extractor) *Service {
	return NewServiceWithDeps(db, extractor, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	specialChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = specialChars.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// phones produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// Extract runs the pipeline over uploads in reading order. The attempt is
// journaled whether or not it succeeds; a journal failure is logged and does
// not change the outcome. The returned Extraction is never nil.
func (s *Service) Extract(ctx context.Context, uploads []Upload) (*Extraction, error) {
	start := s.timeSource.Now()
	record := &Extraction{
		ID:        s.idGenerator.Generate(),
		Files:     make([]FileInfo, 0, len(uploads)),
		CreatedAt: start,
	}

	parts := make([]extraction.InputPart, 0, len(uploads))
	for _, u := range uploads {
		record.Files = append(record.Files, FileInfo{
			Filename:    sanitizeFilename(u.Filename),
			ContentType: u.ContentType,
			Size:        len(u.Data),
		})
		parts = append(parts, extraction.InputPart{Data: u.Data, MimeType: u.ContentType})
	}

	data, err := s.extractor.Extract(ctx, parts)
	record.DurationMS = s.timeSource.Now().Sub(start).Milliseconds()
	if err != nil {
		record.Error = err.Error()
		record.ErrorKind = string(extraction.Classify(err))
		slog.Error("Failed to extract receipt",
			"id", record.ID,
			"files", len(uploads),
			"kind", record.ErrorKind,
			"error", err,
		)
	} else {
		record.Result = data
	}

	if saveErr := s.db.SaveExtraction(record); saveErr != nil {
		slog.Warn("Failed to journal extraction", "id", record.ID, "error", saveErr)
	}

	if err != nil {
		return record, fmt.Errorf("extracting receipt: %w", err)
	}
	return record, nil
}

// GetExtraction retrieves a journaled extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	e, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return e, nil
}

// ListExtractions returns the newest journaled extractions
func (s *Service) ListExtractions(limit int) ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions(limit)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}
