package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/parlorhq/parlor/pkg/auth"
)

// apiKeyMiddleware rejects any request without the configured X-API-Key.
// The health endpoint is registered before this middleware and stays
// public.
func (s *Server) apiKeyMiddleware(c *fiber.Ctx) error {
	provided := strings.TrimSpace(c.Get("X-API-Key"))
	if provided == "" || provided != s.config.APIKey {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error: "missing or invalid API key (X-API-Key)",
		})
	}
	return c.Next()
}

// bearerMiddleware additionally requires a valid access token on chat and
// session routes when a JWT secret is configured. Without a secret the
// guard is inert and the API key alone suffices.
func (s *Server) bearerMiddleware(c *fiber.Ctx) error {
	if s.config.JWTSecret == "" {
		return c.Next()
	}

	header := c.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error: "missing bearer token",
		})
	}

	claims, err := auth.DecodeAccessToken(s.config.JWTSecret, strings.TrimSpace(token))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error: "invalid or expired token",
		})
	}

	c.Locals("claims", claims)
	return c.Next()
}
