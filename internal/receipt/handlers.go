package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const (
	maxFilesPerRequest = 10
	defaultListLimit   = 50
)

// Messages returned for each error kind
const (
	msgNotConfigured = "OCR service not configured"
	msgTimeout       = "Receipt extraction timed out. Please try again."
	msgFailed        = "Failed to extract receipt data. Please try again."
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   message,
	})
}

// writeExtractionError maps a pipeline error onto a status code and message
func writeExtractionError(w http.ResponseWriter, id string, err error) {
	var (
		code    int
		message string
	)
	switch extraction.Classify(err) {
	case extraction.KindConfiguration:
		code, message = http.StatusServiceUnavailable, msgNotConfigured
	case extraction.KindInput:
		code, message = http.StatusBadRequest, inputMessage(err)
	case extraction.KindTimeout:
		code, message = http.StatusGatewayTimeout, msgTimeout
	default:
		code, message = http.StatusInternalServerError, msgFailed
	}
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   message,
		"id":      id,
	})
}

func inputMessage(err error) string {
	var inErr *extraction.UnsupportedInputError
	if !errors.As(err, &inErr) {
		return "Invalid file"
	}
	if inErr.Index < 0 {
		return "No file was selected. Please choose a file to upload."
	}
	if inErr.MimeType != "" {
		return fmt.Sprintf("File %d has an unsupported type (%s). Supported formats: JPEG, PNG, HEIC, PDF.", inErr.Index+1, inErr.MimeType)
	}
	return fmt.Sprintf("File %d could not be read. Supported formats: JPEG, PNG, HEIC, PDF.", inErr.Index+1)
}

// contentTypeOf returns the declared content type, or one guessed from the extension
func contentTypeOf(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return contentType
	}
}

// handleExtract handles a multipart upload of one receipt's parts
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	maxRequest := s.maxUpload*maxFilesPerRequest + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxRequest)

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Upload is too large.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	if len(headers) > maxFilesPerRequest {
		writeError(w, fmt.Sprintf("Too many files. At most %d parts per receipt.", maxFilesPerRequest), http.StatusBadRequest)
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		if header.Size > s.maxUpload {
			writeError(w, fmt.Sprintf("File %s is too large. Maximum size is %dMB.", header.Filename, s.maxUpload>>20), http.StatusBadRequest)
			return
		}

		data, err := readFile(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}

		uploads = append(uploads, Upload{
			Filename:    header.Filename,
			ContentType: contentTypeOf(header),
			Data:        data,
		})
	}

	record, err := s.service.Extract(r.Context(), uploads)
	if err != nil {
		writeExtractionError(w, record.ID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      record.ID,
		"data":    record.Result,
	})
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return data, nil
}

// handleListExtractions returns the newest journaled extractions
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	extractions, err := s.service.ListExtractions(limit)
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, extractions)
}

// handleGetExtraction returns a single journaled extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	e, err := s.service.GetExtraction(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, "Extraction not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting extraction", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
