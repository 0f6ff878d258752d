package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama = NewOllama(OllamaConfig{
			BaseURL:   server.URL(),
			Model:     "test-model",
			RetryMax:  1,
			RetryWait: time.Millisecond,
		})
	})

	AfterEach(func() {
		Expect(ollama.Close()).To(Succeed())
		server.Close()
	})

	verifyChatRequest := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())

		var req ollamaChatRequest
		Expect(json.Unmarshal(body, &req)).To(Succeed())
		Expect(req.Model).To(Equal("test-model"))
		Expect(req.Stream).To(BeFalse())
		Expect(req.Messages).To(HaveLen(2))
		Expect(req.Messages[0].Role).To(Equal("system"))
		Expect(req.Messages[1].Content).To(ContainSubstring("Invoice request: two keyboards"))
	}

	When("the server answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				verifyChatRequest,
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"items": []}`},
					Done:    true,
				}),
			))
		})

		It("returns the message content", func() {
			raw, err := ollama.Infer(context.Background(), []byte("ignored"), "audio/wav", "two keyboards")
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal(`{"items": []}`))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the server fails once", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusInternalServerError, "loading"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Content: "ok"},
					Done:    true,
				}),
			)
		})

		It("retries", func() {
			raw, err := ollama.Infer(context.Background(), nil, "", "two keyboards")
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal("ok"))
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	Describe("retry limits", func() {
		respond500 := ghttp.RespondWith(http.StatusInternalServerError, "busy")

		It("retries four times when RetryMax is left at zero", func() {
			ollama = NewOllama(OllamaConfig{BaseURL: server.URL(), RetryWait: time.Millisecond})
			server.AppendHandlers(respond500, respond500, respond500, respond500,
				ghttp.RespondWith(http.StatusOK, `{"message":{"role":"assistant","content":"ok"},"done":true}`))

			raw, err := ollama.Infer(context.Background(), nil, "", "two keyboards")
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal("ok"))
			Expect(server.ReceivedRequests()).To(HaveLen(5))
		})

		It("does not retry when RetryMax is negative", func() {
			ollama = NewOllama(OllamaConfig{BaseURL: server.URL(), RetryMax: -1, RetryWait: time.Millisecond})
			server.AppendHandlers(respond500)

			_, err := ollama.Infer(context.Background(), nil, "", "two keyboards")
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the server rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "model not found"))
		})

		It("returns the status and body", func() {
			_, err := ollama.Infer(context.Background(), nil, "", "two keyboards")
			Expect(err).To(MatchError(ContainSubstring("status 404")))
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})

	When("no transcript is given", func() {
		It("fails without calling the server", func() {
			_, err := ollama.Infer(context.Background(), []byte("audio"), "audio/wav", "  ")
			Expect(errs.Is(err, errs.ErrInferenceFailed)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
