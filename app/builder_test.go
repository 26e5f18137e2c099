package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklinker/authcore/testutils"
)

func TestBuilder_WithConfigNil(t *testing.T) {
	_, err := New().WithConfig(nil).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestCoreModels(t *testing.T) {
	assert.Len(t, CoreModels(), 5)
}

func TestBuilder_BuildAndRun(t *testing.T) {
	application, err := New().
		WithConfig(testutils.GetTestConfig()).
		Build()
	require.NoError(t, err)
	require.NotNil(t, application)

	require.NoError(t, application.Start())
	defer application.Stop()

	require.NotNil(t, application.Server())
	require.NotNil(t, application.DB())
	require.NotNil(t, application.Logger())
	assert.Equal(t, "Tasklinker Test", application.Config().App.Name)

	// The auth routes are registered and reachable through the embedded
	// echo instance.
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	rec := httptest.NewRecorder()
	application.Server().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApp_RegisterRoutes(t *testing.T) {
	application, err := New().
		WithConfig(testutils.GetTestConfig()).
		Build()
	require.NoError(t, err)

	application.RegisterRoutes(func(e *echo.Echo) {
		e.GET("/healthz", func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	application.Server().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuilder_WithAdditionalModels(t *testing.T) {
	type widget struct {
		ID   uint   `gorm:"primaryKey"`
		Name string `gorm:"size:64"`
	}

	application, err := New().
		WithConfig(testutils.GetTestConfig()).
		WithModels(&widget{}).
		Build()
	require.NoError(t, err)

	assert.True(t, application.DB().Migrator().HasTable(&widget{}))
	require.NoError(t, application.DB().Create(&widget{Name: "gear"}).Error)
}
