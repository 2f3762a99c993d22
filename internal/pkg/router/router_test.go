package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/toolhub/internal/pkg/billing"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
	"github.com/ManuelReschke/toolhub/internal/pkg/middleware"
)

func newTestApp(t *testing.T, rdb *redis.Client) *fiber.App {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	hash, err := bcrypt.GenerateFromPassword([]byte("op-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	// No webhook secret: deliveries are rejected as a configuration error.
	svc := billing.NewServiceFromDB(db, nil, nil, billing.Config{})

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Webhooks: svc,
		Operator: middleware.OperatorAuthConfig{KeyHash: string(hash)},
		DB:       db,
		Cache:    rdb,
	})
	return app
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"webhook is public", http.MethodPost, "/webhooks/stripe", "", fiber.StatusInternalServerError},
		{"admin list needs key", http.MethodGet, "/admin/webhooks", "", fiber.StatusUnauthorized},
		{"admin list", http.MethodGet, "/admin/webhooks", "op-secret", fiber.StatusOK},
		{"admin retry unknown event", http.MethodPost, "/admin/webhooks/evt_missing/retry", "op-secret", fiber.StatusFound},
		{"api list needs key", http.MethodGet, "/api/v1/webhooks/events", "", fiber.StatusUnauthorized},
		{"api list", http.MethodGet, "/api/v1/webhooks/events?status=failed", "op-secret", fiber.StatusOK},
		{"api retry unknown event", http.MethodPost, "/api/v1/webhooks/events/evt_missing/retry", "op-secret", fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := newTestApp(t, rdb)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "ok", body["cache"])

	mr.SetError("ERR cache offline")
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unavailable", body["cache"])
}
