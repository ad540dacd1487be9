package scanning

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server   *ghttp.Server
		scanner  *Ollama
		pngData  []byte
		receipts []ReceiptData
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
		pngData = []byte("already a png")
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		receipts, err = scanner.ScanReceipt(pngData, "image/png")
	})

	When("the model answers with receipts", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(ConsistOf(base64.StdEncoding.EncodeToString(pngData)))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"receipts": [{"vendor": "Walgreens", "date": "2024-03-20", "amount": 42.50, "category": "healthcare"}]}`,
					},
					Done: true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the parsed receipts", func() {
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Vendor).To(Equal("Walgreens"))
			Expect(receipts[0].Category).To(Equal("healthcare"))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	When("the model answers without JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "I cannot read this image."},
				Done:    true,
			}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing receipt data")))
		})
	})
})

var _ = Describe("detectKind", func() {
	It("should detect PDFs by their magic bytes", func() {
		Expect(detectKind([]byte("%PDF-1.4 ..."), "application/octet-stream")).To(Equal(kindPDF))
	})

	It("should detect HEIC by the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(detectKind(data, "")).To(Equal(kindHEIC))
	})

	It("should detect HEIF by MIME type", func() {
		Expect(detectKind([]byte("data"), "image/HEIF")).To(Equal(kindHEIC))
	})

	It("should pass PNGs through", func() {
		Expect(detectKind([]byte("data"), "image/png")).To(Equal(kindPNG))
	})

	It("should decode everything else", func() {
		Expect(detectKind([]byte("data"), "image/jpeg")).To(Equal(kindOther))
	})
})

var _ = Describe("toPNG", func() {
	It("should return PNG data unchanged", func() {
		data, err := toPNG([]byte("png bytes"), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("png bytes")))
	})

	It("should reject data it cannot decode", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})
})
