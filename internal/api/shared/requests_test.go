package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTarget struct {
	Title string `json:"title" validate:"required"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"title":"ok"}`))

		var target decodeTarget
		require.NoError(t, DecodeJSON(req, &target))
		assert.Equal(t, "ok", target.Title)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"title":`))

		var target decodeTarget
		assert.Error(t, DecodeJSON(req, &target))
	})
}

type selfValidating struct {
	err error
}

func (s selfValidating) Validate() error { return s.err }

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	t.Run("struct tags", func(t *testing.T) {
		assert.Error(t, ValidateRequest(decodeTarget{}))
		assert.NoError(t, ValidateRequest(decodeTarget{Title: "ok"}))
	})

	t.Run("prefers Validate method", func(t *testing.T) {
		sentinel := errors.New("custom validation")
		assert.ErrorIs(t, ValidateRequest(selfValidating{err: sentinel}), sentinel)
		assert.NoError(t, ValidateRequest(selfValidating{}))
	})
}
