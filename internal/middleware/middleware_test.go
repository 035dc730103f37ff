package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStandard(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	Standard(e, "1.2.3", zerolog.New(&buf))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/fail", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/panic", func(c echo.Context) error { panic("boom") })

	t.Run("version and request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1.2.3", rec.Header().Get("X-API-Version"))
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		assert.Contains(t, buf.String(), `"uri":"/ok"`)
	})

	t.Run("errors are logged at warn", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, buf.String(), `"level":"warn"`)
	})

	t.Run("panics are recovered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
