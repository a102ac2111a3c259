package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/pipeline"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/recognizer/recognizertest"
)

func newTestServer(t *testing.T, stub *recognizertest.Stub, opts ...Option) http.Handler {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Entities = []string{"PERSON"}
	p, err := pipeline.NewWithRecognizers(cfg, []recognizer.Recognizer{stub})
	require.NoError(t, err)
	return NewServer(p, cfg.TargetLanguage, opts...).Routes()
}

func personStub() *recognizertest.Stub {
	return &recognizertest.Stub{
		RecName:  "stub",
		Entities: []string{"PERSON", "LOCATION"},
		Terms:    map[string]string{"John Smith": "PER", "Berlin": "LOC"},
	}
}

func post(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/deidentify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, personStub(), WithAPIKey("secret"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestDeidentifyEndpoint(t *testing.T) {
	h := newTestServer(t, personStub())

	rec := post(t, h, `{"rows":[["name","city"],["John Smith","Berlin"]]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out DeidentifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, [][]string{{"name", "city"}, {"<PERSON>", "Berlin"}}, out.Rows)
	assert.Equal(t, map[string]int{"PERSON": 1}, out.Detections)
	assert.Empty(t, out.Warnings)
}

func TestDeidentifyEndpoint_SkipAndLowerCase(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"john smith": "PER"}}
	h := newTestServer(t, stub)

	rec := post(t, h, `{"rows":[["id","name"],["John Smith","John Smith"]],"columns_to_skip":["id"],"lower_case":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out DeidentifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, [][]string{{"id", "name"}, {"john smith", "<PERSON>"}}, out.Rows, "case folding applies to skipped columns too")
}

func TestDeidentifyEndpoint_ConfigDefaults(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"john smith": "PER", "John Smith": "PER"}}
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Entities = []string{"PERSON"}
	cfg.LowerCase = true
	cfg.ColumnsToSkip = []string{"id"}
	p, err := pipeline.NewWithRecognizers(cfg, []recognizer.Recognizer{stub})
	require.NoError(t, err)
	h := NewServer(p, cfg.TargetLanguage).Routes()

	rec := post(t, h, `{"rows":[["id","name"],["John Smith","John Smith"]]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out DeidentifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, [][]string{{"id", "name"}, {"john smith", "<PERSON>"}}, out.Rows, "omitted options use the configuration")

	rec = post(t, h, `{"rows":[["id","name"],["John Smith","John Smith"]],"columns_to_skip":[],"lower_case":false}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = DeidentifyResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, [][]string{{"id", "name"}, {"<PERSON>", "<PERSON>"}}, out.Rows, "explicit options override the configuration")
}

func TestDeidentifyEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stub   *recognizertest.Stub
		body   string
		status int
		code   string
	}{
		{"invalid json", personStub(), `{"rows":`, http.StatusBadRequest, "invalid_request"},
		{"no rows", personStub(), `{"rows":[]}`, http.StatusBadRequest, "invalid_request"},
		{"ragged", personStub(), `{"rows":[["a","b"],["x"]]}`, http.StatusBadRequest, "malformed_table"},
		{"duplicate header", personStub(), `{"rows":[["a","a"],["x","y"]]}`, http.StatusBadRequest, "malformed_table"},
		{"recognizer down", &recognizertest.Stub{Entities: []string{"PERSON"}, Err: errors.New("down")}, `{"rows":[["a"],["x"]]}`, http.StatusBadGateway, "recognizer_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer(t, tt.stub), tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			var out map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
			assert.Equal(t, tt.code, out["error"])
		})
	}
}

func TestDeidentifyEndpoint_BodyLimit(t *testing.T) {
	h := newTestServer(t, personStub(), WithMaxBodyBytes(16))

	rec := post(t, h, `{"rows":[["name"],["`+strings.Repeat("x", 64)+`"]]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, personStub(), WithAPIKey("secret"))
	body := `{"rows":[["name"],["x"]]}`

	assert.Equal(t, http.StatusUnauthorized, post(t, h, body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, body, map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, post(t, h, body, map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, post(t, h, body, map[string]string{"Authorization": "Bearer secret"}).Code)
}

func TestRecognizersEndpoint(t *testing.T) {
	h := newTestServer(t, personStub())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recognizers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Language    string           `json:"language"`
		Recognizers []RecognizerInfo `json:"recognizers"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out))
	assert.Equal(t, "en", out.Language)
	require.Len(t, out.Recognizers, 1)
	assert.Equal(t, RecognizerInfo{Name: "stub", Language: "en", Entities: []string{"PERSON", "LOCATION"}}, out.Recognizers[0])
}
