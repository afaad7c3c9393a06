package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/parlorhq/parlor/pkg/llm"
	"github.com/parlorhq/parlor/pkg/llm/provider/openai"
)

var _ = Describe("Generator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires an api key", func() {
		_, err := openai.NewGenerator(openai.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("sends a bearer token and returns the first choice", func() {
		var gotAuth string
		var gotPath string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{
					map[string]any{"message": map[string]any{"role": "assistant", "content": "hi"}},
				},
			})
		}))
		defer server.Close()

		gen, err := openai.NewGenerator(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		defer gen.Close()

		reply, err := gen.Generate(ctx, "say hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("hi"))

		Expect(gotAuth).To(Equal("Bearer sk-test"))
		Expect(gotPath).To(Equal("/v1/chat/completions"))
	})

	It("wraps an empty choices list in ErrGeneration", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
		}))
		defer server.Close()

		gen, err := openai.NewGenerator(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		defer gen.Close()

		_, err = gen.Generate(ctx, "say hi")
		Expect(err).To(MatchError(llm.ErrGeneration))
	})

	It("wraps upstream failures in ErrGeneration", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		gen, err := openai.NewGenerator(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		defer gen.Close()

		_, err = gen.Generate(ctx, "say hi")
		Expect(err).To(MatchError(llm.ErrGeneration))
	})
})
