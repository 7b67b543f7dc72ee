package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplingLogger_PassesRequestsThrough(t *testing.T) {
	app := fiber.New()
	app.Use(SamplingLogger(3, "/v1/ingest/status"))

	hits := 0
	app.Get("/v1/ingest/status", func(c *fiber.Ctx) error {
		hits++
		return c.SendStatus(200)
	})
	app.Get("/other", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	for i := 0; i < 7; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/ingest/status", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}
	assert.Equal(t, 7, hits)

	resp, err := app.Test(httptest.NewRequest("GET", "/other", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

func TestStatusAndMethodColors(t *testing.T) {
	assert.Equal(t, cGreen, getStatusColor(200, true))
	assert.Equal(t, cYellow, getStatusColor(409, true))
	assert.Equal(t, cRed, getStatusColor(500, true))
	assert.Equal(t, "", getStatusColor(500, false))
	assert.Equal(t, cGreen, getMethodColor("POST", true))
}
