package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAPIResource(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONAPIResource(rec, http.StatusOK, "incident", "inc-1", map[string]string{"title": "x"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeJSONAPI, rec.Header().Get("Content-Type"))

	var doc struct {
		Data Resource `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "incident", doc.Data.Type)
	assert.Equal(t, "inc-1", doc.Data.ID)
}

func TestWriteJSONAPICollection(t *testing.T) {
	t.Run("nil slice renders as empty array", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteJSONAPICollection(rec, http.StatusOK, nil, nil)
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	})

	t.Run("meta", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteJSONAPICollection(rec, http.StatusOK,
			[]Resource{{Type: "indicator", ID: "a", Attributes: 1}},
			map[string]any{"total": 1})
		assert.JSONEq(t,
			`{"data":[{"type":"indicator","id":"a","attributes":1}],"meta":{"total":1}}`,
			rec.Body.String())
	})
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"validation", func(w http.ResponseWriter) { WriteJSONAPIValidationError(w, "bad") }, http.StatusBadRequest, "validation_failed"},
		{"not found", func(w http.ResponseWriter) { WriteJSONAPINotFoundError(w, "incident", "x") }, http.StatusNotFound, "not_found"},
		{"conflict", func(w http.ResponseWriter) { WriteJSONAPIConflictError(w, "nope") }, http.StatusConflict, "conflict"},
		{"internal", func(w http.ResponseWriter) { WriteJSONAPIInternalError(w, "boom") }, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)

			var doc struct {
				Errors []ErrorObject `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			require.Len(t, doc.Errors, 1)
			assert.Equal(t, tt.code, doc.Errors[0].Code)
			assert.Equal(t, tt.status, doc.Errors[0].Status)
		})
	}
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 10, ParseIntParam("", 10))
	assert.Equal(t, 10, ParseIntParam("abc", 10))
	assert.Equal(t, 25, ParseIntParam("25", 10))
	assert.Equal(t, -1, ParseIntParam("-1", 10))
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Resolution string `json:"resolution"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"resolution":"resolved"}`))
		var b body
		require.NoError(t, DecodeJSON(req, &b))
		assert.Equal(t, "resolved", b.Resolution)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		b := body{Resolution: "keep"}
		require.NoError(t, DecodeJSON(req, &b))
		assert.Equal(t, "keep", b.Resolution)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"x"}`))
		var b body
		assert.Error(t, DecodeJSON(req, &b))
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var b body
		assert.Error(t, DecodeJSON(req, &b))
	})
}
