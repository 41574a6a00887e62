package extraction

// Accepted MIME types. Everything handed to a backend is one of these three.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimePDF  = "application/pdf"
)

// HEIC/HEIF photos are accepted on input and transcoded to JPEG
const (
	mimeHEIC = "image/heic"
	mimeHEIF = "image/heif"
)

// InputPart is one raw uploaded file. Parts of one receipt are ordered top to bottom.
type InputPart struct {
	Data     []byte
	MimeType string
}

// NormalizedPart is an InputPart that fits the inference size ceiling
// (PDFs excepted) and carries one of the accepted MIME types.
type NormalizedPart struct {
	Data     []byte
	MimeType string
}

// ContentBlock is one unit of a multimodal request. The set of
// implementations is closed: ImageBlock, DocumentBlock and InstructionBlock.
type ContentBlock interface {
	contentBlock()
}

// ImageBlock carries a JPEG or PNG image.
type ImageBlock struct {
	Data     []byte
	MimeType string
}

// DocumentBlock carries a PDF document.
type DocumentBlock struct {
	Data []byte
}

// InstructionBlock carries the extraction instructions.
type InstructionBlock struct {
	Text string
}

func (ImageBlock) contentBlock()       {}
func (DocumentBlock) contentBlock()    {}
func (InstructionBlock) contentBlock() {}

// Request is an ordered list of media blocks followed by exactly one
// InstructionBlock.
type Request struct {
	Blocks        []ContentBlock
	PromptVersion string
}

// Media returns the media blocks in reading order.
func (r *Request) Media() []ContentBlock {
	if len(r.Blocks) == 0 {
		return nil
	}
	return r.Blocks[:len(r.Blocks)-1]
}

// Instruction returns the trailing instruction text.
func (r *Request) Instruction() string {
	if len(r.Blocks) == 0 {
		return ""
	}
	if ib, ok := r.Blocks[len(r.Blocks)-1].(InstructionBlock); ok {
		return ib.Text
	}
	return ""
}

// Reply is the raw text a backend model answered with.
type Reply struct {
	Text  string
	Model string
}

// ReceiptData is the validated financial record for one receipt.
type ReceiptData struct {
	NetAmount      *float64 `json:"netAmount"`
	TaxAmount      *float64 `json:"taxAmount"`
	GrossAmount    *float64 `json:"grossAmount"`
	TaxRatePercent *float64 `json:"taxRatePercent"`

	// Per-bucket breakdown for the 7% and 19% German VAT rates
	Vat7Net  *float64 `json:"vat7Net"`
	Vat7Tax  *float64 `json:"vat7Tax"`
	Vat19Net *float64 `json:"vat19Net"`
	Vat19Tax *float64 `json:"vat19Tax"`

	Date     *string `json:"date"` // YYYY-MM-DD
	Vendor   *string `json:"vendor"`
	Category *string `json:"category"`

	RawText       string   `json:"rawText"`
	Model         string   `json:"model,omitempty"`
	PromptVersion string   `json:"promptVersion,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}
