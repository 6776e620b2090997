package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func decodeBody(t *testing.T, body string) (*httptest.ResponseRecorder, payload, bool) {
	t.Helper()
	var p payload
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ok := Decode(rr, req, &p)
	return rr, p, ok
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, p, ok := decodeBody(t, `{"name":"Q3 drill"}`)
		require.True(t, ok)
		assert.Equal(t, "Q3 drill", p.Name)
	})

	for name, body := range map[string]string{
		"unknown field": `{"name":"x","extra":1}`,
		"trailing data": `{"name":"x"}{"name":"y"}`,
		"malformed":     `{"name":`,
		"empty":         ``,
	} {
		t.Run(name, func(t *testing.T) {
			rr, _, ok := decodeBody(t, body)
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	t.Run("too large", func(t *testing.T) {
		body := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		rr, _, ok := decodeBody(t, body)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestInternalError_HidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	InternalError(rr, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "internal", resp.Code)
	assert.NotContains(t, resp.Error, "password")
}

func TestNoContent(t *testing.T) {
	rr := httptest.NewRecorder()
	NoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
