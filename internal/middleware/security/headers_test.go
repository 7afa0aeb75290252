package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headersFor(t *testing.T, cfg HeadersConfig) http.Header {
	t.Helper()

	app := fiber.New()
	app.Use(HeadersMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.Header
}

func TestHardeningHeaders(t *testing.T) {
	headers := headersFor(t, HeadersConfig{})

	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, headers.Get("Strict-Transport-Security"))
	assert.Contains(t, headers.Get("Content-Security-Policy"), "connect-src 'self'")
}

func TestDevelopmentSkipsHSTS(t *testing.T) {
	headers := headersFor(t, HeadersConfig{IsDevelopment: true})

	assert.Empty(t, headers.Get("Strict-Transport-Security"))
}

func TestConnectSrcCarriesWebsocketOrigins(t *testing.T) {
	csp := buildCSP([]string{"https://app.example.com", "http://localhost:3000"})

	assert.Contains(t, csp, "https://app.example.com")
	assert.Contains(t, csp, "wss://app.example.com")
	assert.Contains(t, csp, "ws://localhost:3000")
}
