package extraction

import "errors"

// Assemble builds the request for one receipt: one media block per part,
// in input order, followed by the instruction block.
func Assemble(parts []NormalizedPart) (*Request, error) {
	if len(parts) == 0 {
		return nil, &UnsupportedInputError{Index: -1, Err: errors.New("no files provided")}
	}

	blocks := make([]ContentBlock, 0, len(parts)+1)
	for i, p := range parts {
		switch p.MimeType {
		case MimePDF:
			blocks = append(blocks, DocumentBlock{Data: p.Data})
		case MimeJPEG, MimePNG:
			blocks = append(blocks, ImageBlock{Data: p.Data, MimeType: p.MimeType})
		default:
			return nil, &UnsupportedInputError{Index: i, MimeType: p.MimeType}
		}
	}
	blocks = append(blocks, InstructionBlock{Text: BuildPrompt(len(parts))})

	return &Request{Blocks: blocks, PromptVersion: PromptVersion}, nil
}
