package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/pkg/auth"
	"github.com/parlorhq/parlor/pkg/flow"
	"github.com/parlorhq/parlor/pkg/memory"
	"github.com/parlorhq/parlor/pkg/store"
)

// sessionIDRe matches the 32-lowercase-hex session ids the store hands
// out.
var sessionIDRe = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ErrorResponse is the JSON error body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the POST /chat reply.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the POST /auth/login reply.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// summaryPayload is the PUT summary body.
type summaryPayload struct {
	Summary string `json:"summary"`
}

// memoryPayload is the PUT memory body. The record is kept raw so a
// wrong-shaped document can be rejected with a 400 instead of silently
// zeroing fields.
type memoryPayload struct {
	StructuredMemory json.RawMessage `json:"structured_memory"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleLogin exchanges an email/password pair for an access token.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	if s.config.JWTSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "auth is not configured"})
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid email or password"})
	}

	token, err := auth.CreateAccessToken(s.config.JWTSecret, user.ID, user.Roles, user.Department, auth.DefaultTokenTTL)
	if err != nil {
		s.logger.Error("token creation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to create token"})
	}

	return c.JSON(LoginResponse{AccessToken: token, TokenType: "bearer"})
}

// handleChat runs one chat turn, creating a session when none is given.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "prompt cannot be empty"})
	}
	if len(req.Prompt) > s.config.MaxPromptChars {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Error: fmt.Sprintf("prompt too large, max %d chars", s.config.MaxPromptChars),
		})
	}
	if req.SessionID != "" && !sessionIDRe.MatchString(req.SessionID) {
		return s.invalidSessionID(c)
	}

	result, err := s.engine.RunTurn(c.Context(), req.SessionID, req.Prompt)
	if err != nil {
		s.logger.Error("chat turn failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return s.mapError(c, err)
	}

	return c.JSON(ChatResponse{SessionID: result.SessionID, Text: result.Reply})
}

// handleNewSession creates a fresh session and returns its id.
func (s *Server) handleNewSession(c *fiber.Ctx) error {
	id, err := s.engine.NewSession(c.Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id})
}

// handleListSessions returns all known session ids.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	ids, err := s.engine.ListSessions(c.Context())
	if err != nil {
		return s.mapError(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"sessions": ids})
}

// handleGetSession returns the full session document, creating it lazily.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	sess, err := s.engine.Session(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(sess)
}

// handleResetSession replaces the session with a fresh empty document.
func (s *Server) handleResetSession(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	sess, err := s.engine.ResetSession(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(sess)
}

// handleDeleteSession removes a session, 404ing when none existed.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	deleted, err := s.engine.DeleteSession(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
	}
	return c.JSON(fiber.Map{"deleted": true, "session_id": id})
}

// handleGetSummary returns the rolling summary, creating the session
// lazily.
func (s *Server) handleGetSummary(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	summary, err := s.engine.Summary(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "summary": summary})
}

// handlePutSummary replaces the rolling summary.
func (s *Server) handlePutSummary(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	var payload summaryPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if err := s.engine.SetSummary(c.Context(), id, payload.Summary); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "summary": payload.Summary})
}

// handleResetSummary clears the rolling summary.
func (s *Server) handleResetSummary(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	if err := s.engine.ResetSummary(c.Context(), id); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "summary": ""})
}

// handleGetMemory returns the structured memory record, creating the
// session lazily.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	mem, err := s.engine.Memory(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "structured_memory": mem})
}

// handlePutMemory replaces the structured memory record.
func (s *Server) handlePutMemory(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	var payload memoryPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if len(payload.StructuredMemory) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "structured_memory is required"})
	}

	var mem memory.Memory
	if err := json.Unmarshal(payload.StructuredMemory, &mem); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "structured_memory has the wrong shape"})
	}

	stored, err := s.engine.SetMemory(c.Context(), id, mem)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "structured_memory": stored})
}

// handleResetMemory restores the structured memory record to defaults.
func (s *Server) handleResetMemory(c *fiber.Ctx) error {
	id, ok := s.sessionID(c)
	if !ok {
		return s.invalidSessionID(c)
	}

	mem, err := s.engine.ResetMemory(c.Context(), id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id, "structured_memory": mem})
}

func (s *Server) sessionID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	return id, sessionIDRe.MatchString(id)
}

func (s *Server) invalidSessionID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "invalid session id, expected 32 lowercase hex characters",
	})
}

// mapError translates pipeline and storage failures to HTTP statuses.
func (s *Server) mapError(c *fiber.Ctx, err error) error {
	var corrupt store.CorruptError
	switch {
	case errors.As(err, &corrupt):
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "session record is corrupt"})
	case flow.IsGenerationError(err):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "model generation failed"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}
