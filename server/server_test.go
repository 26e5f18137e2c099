package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
	}
}

func TestNew(t *testing.T) {
	t.Run("with logger", func(t *testing.T) {
		logger := &logging.Service{}
		server := New(testConfig(), logger)

		require.NotNil(t, server)
		assert.Equal(t, logger, server.logger)
		assert.NotNil(t, server.echo)
		assert.True(t, server.echo.HideBanner)
	})

	t.Run("without logger", func(t *testing.T) {
		server := New(testConfig(), nil)

		require.NotNil(t, server)
		assert.Nil(t, server.logger)
		assert.NotNil(t, server.echo)
	})
}

func TestServer_Routing(t *testing.T) {
	server := New(testConfig(), nil)

	server.Echo().GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	group := server.Group("/api")
	group.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec = httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}
