package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var _ = Describe("Gemini", func() {
	Describe("CheckCredentials", func() {
		It("rejects a missing key without creating a client", func() {
			g, err := NewGemini(context.Background(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(g.client).To(BeNil())

			var cfgErr *extraction.ConfigurationError
			Expect(errors.As(g.CheckCredentials(), &cfgErr)).To(BeTrue())
			Expect(g.Close()).To(Succeed())
		})

		It("rejects a malformed key", func() {
			g, err := NewGemini(context.Background(), "not-a-key")
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Complete(context.Background(), "gemini-2.5-pro", &extraction.Request{})
			var cfgErr *extraction.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
		})
	})

	Describe("Complete", func() {
		var (
			server *ghttp.Server
			g      *Gemini
			text   string
			err    error
		)

		BeforeEach(func() {
			server = ghttp.NewServer()

			var newErr error
			g, newErr = NewGemini(context.Background(), "AIza-test", option.WithEndpoint(server.URL()))
			Expect(newErr).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(g.Close()).To(Succeed())
			server.Close()
		})

		JustBeforeEach(func() {
			text, err = g.Complete(context.Background(), "gemini-test", &extraction.Request{Blocks: []extraction.ContentBlock{
				extraction.ImageBlock{Data: []byte("png"), MimeType: extraction.MimePNG},
				extraction.InstructionBlock{Text: "extract"},
			}})
		})

		When("the API answers", func() {
			BeforeEach(func() {
				server.RouteToHandler(http.MethodPost, regexp.MustCompile(`^/v1beta/models/gemini-test:generateContent$`),
					func(w http.ResponseWriter, r *http.Request) {
						var body map[string]any
						Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
						Expect(body).To(HaveKey("contents"))
						Expect(body).To(HaveKeyWithValue("generationConfig", HaveKeyWithValue("temperature", BeNumerically("==", 0))))

						w.Header().Set("Content-Type", "application/json")
						_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"vendor\":"},{"text":"\"REWE\"}"}]},"finishReason":"STOP"}]}`))
					})
			})

			It("should concatenate the text parts", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal(`{"vendor":"REWE"}`))
			})
		})

		When("the model does not exist", func() {
			BeforeEach(func() {
				server.RouteToHandler(http.MethodPost, regexp.MustCompile(`:generateContent$`),
					ghttp.RespondWith(http.StatusNotFound,
						`{"error":{"code":404,"message":"models/gemini-test is not found","status":"NOT_FOUND"}}`,
						http.Header{"Content-Type": []string{"application/json"}}))
			})

			It("reports the model as unavailable", func() {
				Expect(errors.Is(err, extraction.ErrModelUnavailable)).To(BeTrue())
				Expect(err).To(MatchError(ContainSubstring("gemini-test")))
			})
		})

		When("the key is rejected", func() {
			BeforeEach(func() {
				server.RouteToHandler(http.MethodPost, regexp.MustCompile(`:generateContent$`),
					ghttp.RespondWith(http.StatusForbidden,
						`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`,
						http.Header{"Content-Type": []string{"application/json"}}))
			})

			It("returns an error that does not allow fallback", func() {
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, extraction.ErrModelUnavailable)).To(BeFalse())
			})
		})
	})

	Describe("geminiParts", func() {
		It("keeps the block order", func() {
			parts := geminiParts(&extraction.Request{Blocks: []extraction.ContentBlock{
				extraction.ImageBlock{Data: []byte("a"), MimeType: extraction.MimePNG},
				extraction.DocumentBlock{Data: []byte("b")},
				extraction.InstructionBlock{Text: "extract"},
			}})
			Expect(parts).To(Equal([]genai.Part{
				genai.ImageData("png", []byte("a")),
				genai.Blob{MIMEType: extraction.MimePDF, Data: []byte("b")},
				genai.Text("extract"),
			}))
		})
	})

	Describe("isGeminiNotFound", func() {
		It("matches a wrapped 404", func() {
			Expect(isGeminiNotFound(fmt.Errorf("call: %w", &googleapi.Error{Code: 404}))).To(BeTrue())
		})

		It("ignores other codes", func() {
			Expect(isGeminiNotFound(&googleapi.Error{Code: 403})).To(BeFalse())
			Expect(isGeminiNotFound(errors.New("404"))).To(BeFalse())
		})
	})
})
