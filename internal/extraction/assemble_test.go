package extraction

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assemble", func() {
	var (
		parts []NormalizedPart
		req   *Request
		err   error
	)

	JustBeforeEach(func() {
		req, err = Assemble(parts)
	})

	When("given a single image", func() {
		BeforeEach(func() {
			parts = []NormalizedPart{{Data: []byte("jpeg"), MimeType: MimeJPEG}}
		})

		It("should emit the image block before the instruction block", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Blocks).To(HaveLen(2))
			Expect(req.Blocks[0]).To(Equal(ImageBlock{Data: []byte("jpeg"), MimeType: MimeJPEG}))
			Expect(req.Blocks[1]).To(BeAssignableToTypeOf(InstructionBlock{}))
		})

		It("should not mention multiple parts", func() {
			Expect(req.Instruction()).NotTo(ContainSubstring("ONE single physical receipt"))
		})

		It("should record the prompt version", func() {
			Expect(req.PromptVersion).To(Equal(PromptVersion))
		})
	})

	When("given several parts", func() {
		BeforeEach(func() {
			parts = []NormalizedPart{
				{Data: []byte("first"), MimeType: MimePNG},
				{Data: []byte("second"), MimeType: MimePDF},
				{Data: []byte("third"), MimeType: MimeJPEG},
			}
		})

		It("should keep the input order with the instruction strictly last", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Blocks).To(Equal([]ContentBlock{
				ImageBlock{Data: []byte("first"), MimeType: MimePNG},
				DocumentBlock{Data: []byte("second")},
				ImageBlock{Data: []byte("third"), MimeType: MimeJPEG},
				InstructionBlock{Text: BuildPrompt(3)},
			}))
		})

		It("should expose the media blocks separately", func() {
			Expect(req.Media()).To(HaveLen(3))
		})

		It("should tell the model the parts belong to one receipt", func() {
			Expect(req.Instruction()).To(ContainSubstring("ONE single physical receipt"))
			Expect(req.Instruction()).To(ContainSubstring("The 3 images/documents"))
		})
	})

	When("given no parts", func() {
		BeforeEach(func() {
			parts = nil
		})

		It("returns an UnsupportedInputError", func() {
			var inErr *UnsupportedInputError
			Expect(errors.As(err, &inErr)).To(BeTrue())
		})
	})

	When("a part has an unexpected mime type", func() {
		BeforeEach(func() {
			parts = []NormalizedPart{{Data: []byte("x"), MimeType: "image/webp"}}
		})

		It("returns an UnsupportedInputError", func() {
			var inErr *UnsupportedInputError
			Expect(errors.As(err, &inErr)).To(BeTrue())
			Expect(inErr.Index).To(Equal(0))
		})
	})
})

var _ = Describe("BuildPrompt", func() {
	It("should be deterministic", func() {
		Expect(BuildPrompt(1)).To(Equal(BuildPrompt(1)))
		Expect(BuildPrompt(2)).To(Equal(BuildPrompt(2)))
	})

	It("should list every category verbatim", func() {
		prompt := BuildPrompt(1)
		for _, c := range Categories {
			Expect(prompt).To(ContainSubstring("- " + c + "\n"))
		}
	})

	It("should carry both worked examples", func() {
		prompt := BuildPrompt(1)
		Expect(prompt).To(ContainSubstring(`"vat19Net": 84.03`))
		Expect(prompt).To(ContainSubstring(`"vat7Net": 59.03`))
		Expect(prompt).To(ContainSubstring(`"vat19Tax": 0.04`))
	})

	It("should state the output conventions", func() {
		prompt := BuildPrompt(1)
		Expect(prompt).To(ContainSubstring("YYYY-MM-DD"))
		Expect(prompt).To(ContainSubstring("Do not use markdown code blocks"))
		Expect(strings.Count(prompt, "Return ONLY valid JSON")).To(Equal(1))
	})
})
