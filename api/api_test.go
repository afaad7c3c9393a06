package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/pkg/auth"
	"github.com/parlorhq/parlor/pkg/eventstream/nop"
	"github.com/parlorhq/parlor/pkg/flow"
	"github.com/parlorhq/parlor/pkg/store/inmemory"
)

const testAPIKey = "test-api-key"

// jsonMap is shorthand for ad hoc request bodies.
type jsonMap = map[string]any

// echoGen replies with a canned string for every prompt.
type echoGen struct{ reply string }

func (g *echoGen) Generate(_ context.Context, _ string) (string, error) {
	return g.reply, nil
}

func (g *echoGen) Close() error { return nil }

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
		users  *auth.Repo
		config Config
	)

	newServer := func() *Server {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		engine := flow.NewEngine(driver, &echoGen{reply: "canned reply"}, nop.NewPublisher(), log, flow.DefaultConfig())

		s, err := NewServer(config, engine, users, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	request := func(method, path string, body any, header map[string]string) *http.Response {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}

		req := httptest.NewRequest(method, path, reader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-API-Key", testAPIKey)
		for k, v := range header {
			req.Header.Set(k, v)
		}

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		var doc map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&doc)).To(Succeed())
		return doc
	}

	BeforeEach(func() {
		driver = inmemory.NewDriver()

		var err error
		users, err = auth.NewRepo(filepath.Join(GinkgoT().TempDir(), "users.json"))
		Expect(err).NotTo(HaveOccurred())

		config = Config{ListenAddr: ":0", APIKey: testAPIKey}
		server = newServer()
	})

	Describe("NewServer", func() {
		It("refuses to start without an API key", func() {
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			engine := flow.NewEngine(driver, &echoGen{}, nop.NewPublisher(), log, flow.DefaultConfig())

			_, err := NewServer(Config{ListenAddr: ":0"}, engine, users, zap.NewNop())
			Expect(err).To(MatchError(ErrMissingAPIKey))
		})
	})

	Describe("API key middleware", func() {
		It("keeps the health endpoint public", func() {
			req := httptest.NewRequest("GET", "/health", nil)
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["status"]).To(Equal("ok"))
		})

		It("rejects requests without the key", func() {
			req := httptest.NewRequest("GET", "/sessions", nil)
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects requests with a wrong key", func() {
			resp := request("GET", "/sessions", nil, map[string]string{"X-API-Key": "wrong"})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("POST /chat", func() {
		It("creates a session and returns the reply", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: "hello"}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			doc := decode(resp)
			Expect(doc["text"]).To(Equal("canned reply"))
			Expect(doc["session_id"]).To(MatchRegexp(`^[a-f0-9]{32}$`))
		})

		It("continues an existing session", func() {
			first := decode(request("POST", "/chat", ChatRequest{Prompt: "hello"}, nil))
			id := first["session_id"].(string)

			resp := request("POST", "/chat", ChatRequest{Prompt: "again", SessionID: id}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["session_id"]).To(Equal(id))

			record := decode(request("GET", "/sessions/"+id, nil, nil))
			Expect(record["messages"]).To(HaveLen(4))
		})

		It("rejects an empty prompt", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: ""}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an oversized prompt with 413", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: strings.Repeat("a", DefaultMaxPromptChars+1)}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
		})

		It("rejects a malformed session id", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: "hello", SessionID: "not-hex!"}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("session endpoints", func() {
		It("creates and lists sessions", func() {
			doc := decode(request("POST", "/sessions/new", nil, nil))
			id := doc["session_id"].(string)
			Expect(id).To(MatchRegexp(`^[a-f0-9]{32}$`))

			list := decode(request("GET", "/sessions", nil, nil))
			Expect(list["sessions"]).To(ContainElement(id))
		})

		It("returns an empty list when nothing exists", func() {
			list := decode(request("GET", "/sessions", nil, nil))
			Expect(list["sessions"]).To(BeEmpty())
		})

		It("lazily creates a session on GET", func() {
			id := strings.Repeat("ab", 16)
			doc := decode(request("GET", "/sessions/"+id, nil, nil))
			Expect(doc["session_id"]).To(Equal(id))
			Expect(doc["messages"]).To(BeEmpty())
		})

		It("resets a session", func() {
			first := decode(request("POST", "/chat", ChatRequest{Prompt: "hello"}, nil))
			id := first["session_id"].(string)

			doc := decode(request("POST", "/sessions/"+id+"/reset", nil, nil))
			Expect(doc["messages"]).To(BeEmpty())
		})

		It("deletes a session and 404s on a second delete", func() {
			first := decode(request("POST", "/chat", ChatRequest{Prompt: "hello"}, nil))
			id := first["session_id"].(string)

			resp := request("DELETE", "/sessions/"+id, nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["deleted"]).To(BeTrue())

			resp = request("DELETE", "/sessions/"+id, nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("validates the session id format", func() {
			resp := request("GET", "/sessions/too-short", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("summary endpoints", func() {
		var id string

		BeforeEach(func() {
			id = strings.Repeat("cd", 16)
		})

		It("round trips the summary", func() {
			doc := decode(request("GET", "/sessions/"+id+"/summary", nil, nil))
			Expect(doc["summary"]).To(Equal(""))

			doc = decode(request("PUT", "/sessions/"+id+"/summary", jsonMap{"summary": "recap"}, nil))
			Expect(doc["summary"]).To(Equal("recap"))

			doc = decode(request("GET", "/sessions/"+id+"/summary", nil, nil))
			Expect(doc["summary"]).To(Equal("recap"))

			doc = decode(request("POST", "/sessions/"+id+"/summary/reset", nil, nil))
			Expect(doc["summary"]).To(Equal(""))
		})
	})

	Describe("memory endpoints", func() {
		var id string

		BeforeEach(func() {
			id = strings.Repeat("ef", 16)
		})

		It("returns the default record", func() {
			doc := decode(request("GET", "/sessions/"+id+"/memory", nil, nil))
			mem := doc["structured_memory"].(map[string]any)
			prefs := mem["preferences"].(map[string]any)
			Expect(prefs["language"]).To(Equal("en"))
		})

		It("replaces and resets the record", func() {
			payload := jsonMap{"structured_memory": jsonMap{
				"profile":     jsonMap{"name": "Ana", "role": nil},
				"preferences": jsonMap{"language": "fr"},
				"facts":       []string{"likes tea"},
				"todos":       []string{},
			}}

			doc := decode(request("PUT", "/sessions/"+id+"/memory", payload, nil))
			mem := doc["structured_memory"].(map[string]any)
			Expect(mem["facts"]).To(ContainElement("likes tea"))

			doc = decode(request("POST", "/sessions/"+id+"/memory/reset", nil, nil))
			mem = doc["structured_memory"].(map[string]any)
			Expect(mem["facts"]).To(BeEmpty())
		})

		It("rejects a wrong-shaped record", func() {
			payload := jsonMap{"structured_memory": jsonMap{"facts": "not a list"}}
			resp := request("PUT", "/sessions/"+id+"/memory", payload, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("requires the structured_memory field", func() {
			resp := request("PUT", "/sessions/"+id+"/memory", jsonMap{}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("auth", func() {
		const password = "hunter2hunter2"

		BeforeEach(func() {
			hash, err := auth.HashPassword(password)
			Expect(err).NotTo(HaveOccurred())
			_, err = users.Create("ana@example.com", hash, []string{"admin"}, "it")
			Expect(err).NotTo(HaveOccurred())

			config.JWTSecret = "test-secret"
			server = newServer()
		})

		It("issues a decodable token on login", func() {
			resp := request("POST", "/auth/login", LoginRequest{Email: "ana@example.com", Password: password}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			doc := decode(resp)
			Expect(doc["token_type"]).To(Equal("bearer"))

			claims, err := auth.DecodeAccessToken("test-secret", doc["access_token"].(string))
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Department).To(Equal("it"))
			Expect(claims.Roles).To(Equal([]string{"admin"}))
		})

		It("rejects a wrong password", func() {
			resp := request("POST", "/auth/login", LoginRequest{Email: "ana@example.com", Password: "wrong password"}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("guards chat routes with the bearer token", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: "hello"}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			login := decode(request("POST", "/auth/login", LoginRequest{Email: "ana@example.com", Password: password}, nil))
			token := login["access_token"].(string)

			resp = request("POST", "/chat", ChatRequest{Prompt: "hello"}, map[string]string{
				"Authorization": "Bearer " + token,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a garbage bearer token", func() {
			resp := request("POST", "/chat", ChatRequest{Prompt: "hello"}, map[string]string{
				"Authorization": "Bearer not.a.token",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("returns 503 when login is hit without a configured secret", func() {
			config.JWTSecret = ""
			server = newServer()

			resp := request("POST", "/auth/login", LoginRequest{Email: "ana@example.com", Password: password}, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
