package receipt

import (
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Upload is one uploaded file of a receipt
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FileInfo describes an uploaded file without its bytes
type FileInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Extraction is one journaled extraction attempt, successful or not
type Extraction struct {
	ID         string                  `json:"id"`
	Files      []FileInfo              `json:"files"`
	Result     *extraction.ReceiptData `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	ErrorKind  string                  `json:"error_kind,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Succeeded reports whether the attempt produced a record
func (e *Extraction) Succeeded() bool {
	return e.Result != nil
}
