package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/HoldFox/app/controllers"
)

func TestClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(clientIP(c))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "cloudflare", headers: map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, want: "203.0.113.7"},
		{name: "forwarded list", headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, want: "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.want, string(body))
		})
	}
}

func TestInstallRouter(t *testing.T) {
	bc := controllers.NewBillingController(controllers.BillingControllerOptions{
		Public: controllers.PublicConfig{PublishableKey: "pk_test_1"},
	})

	app := fiber.New()
	InstallRouter(app, Options{Billing: bc})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/config", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Without credentials the metrics routes are not installed.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics/webhooks", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstallRouter_MetricsBehindBasicAuth(t *testing.T) {
	bc := controllers.NewBillingController(controllers.BillingControllerOptions{})

	app := fiber.New()
	InstallRouter(app, Options{Billing: bc, MetricsUser: "admin", MetricsPassword: "secret"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics/webhooks", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/metrics/webhooks", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
