package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/toolhub/internal/pkg/env"
	"github.com/ManuelReschke/toolhub/internal/pkg/security"
)

// KeyOperator is set in Locals for requests that passed RequireOperator.
const KeyOperator = "OPERATOR"

const operatorAttemptKey = "operator_auth:"

// OperatorAuthConfig configures access to the admin webhook endpoints.
type OperatorAuthConfig struct {
	// KeyHash is the bcrypt hash of the operator API key.
	KeyHash string
	// Attempts counts failed logins per client; nil disables lockout.
	Attempts    security.AttemptStore
	MaxFailures int
	Window      time.Duration
}

// OperatorAuthConfigFromEnv reads OPERATOR_API_KEY_HASH,
// OPERATOR_AUTH_MAX_FAILURES and OPERATOR_AUTH_WINDOW.
func OperatorAuthConfigFromEnv(attempts security.AttemptStore) OperatorAuthConfig {
	return OperatorAuthConfig{
		KeyHash:     strings.TrimSpace(env.GetEnv("OPERATOR_API_KEY_HASH", "")),
		Attempts:    attempts,
		MaxFailures: env.GetEnvInt("OPERATOR_AUTH_MAX_FAILURES", 10),
		Window:      env.GetEnvDuration("OPERATOR_AUTH_WINDOW", 15*time.Minute),
	}
}

// HashOperatorKey returns the value to store in OPERATOR_API_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// RequireOperator authenticates requests carrying the operator API key in
// X-API-Key or an Authorization bearer header.
func RequireOperator(cfg OperatorAuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.KeyHash == "" {
			log.Warn("[Auth] OPERATOR_API_KEY_HASH is not set, operator endpoints are disabled")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "operator_auth_not_configured"})
		}

		clientKey := operatorAttemptKey + ClientIP(c)
		if cfg.locked(c.UserContext(), clientKey) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_attempts"})
		}

		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.KeyHash), []byte(apiKey)); err != nil {
			cfg.recordFailure(c.UserContext(), clientKey)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		c.Locals(KeyOperator, true)
		return c.Next()
	}
}

func (cfg OperatorAuthConfig) locked(ctx context.Context, key string) bool {
	if cfg.Attempts == nil || cfg.MaxFailures <= 0 {
		return false
	}
	n, err := cfg.Attempts.Count(ctx, key)
	if err != nil {
		log.Warnf("[Auth] failed to read attempt counter: %v", err)
		return false
	}
	return n >= int64(cfg.MaxFailures)
}

func (cfg OperatorAuthConfig) recordFailure(ctx context.Context, key string) {
	if cfg.Attempts == nil {
		return
	}
	if _, err := cfg.Attempts.Incr(ctx, key, cfg.Window); err != nil {
		log.Warnf("[Auth] failed to count operator auth failure: %v", err)
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
