package recognizer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ppiankov/deidentify/internal/cache"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer/recognizertest"
	"github.com/ppiankov/deidentify/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	text := "José Ruiz"

	tests := []struct {
		name    string
		det     model.Detection
		wantErr bool
	}{
		{"valid", model.Detection{Label: "PER", Start: 0, End: len(text), Score: 0.9}, false},
		{"end at length", model.Detection{Label: "PER", Start: 6, End: len(text), Score: 1}, false},
		{"negative start", model.Detection{Label: "PER", Start: -1, End: 2, Score: 0.5}, true},
		{"end past value", model.Detection{Label: "PER", Start: 0, End: len(text) + 1, Score: 0.5}, true},
		{"empty span", model.Detection{Label: "PER", Start: 3, End: 3, Score: 0.5}, true},
		{"reversed", model.Detection{Label: "PER", Start: 4, End: 2, Score: 0.5}, true},
		{"splits rune", model.Detection{Label: "PER", Start: 0, End: 4, Score: 0.5}, true},
		{"score above one", model.Detection{Label: "PER", Start: 0, End: 2, Score: 1.2}, true},
		{"negative score", model.Detection{Label: "PER", Start: 0, End: 2, Score: -0.1}, true},
		{"nan score", model.Detection{Label: "PER", Start: 0, End: 2, Score: math.NaN()}, true},
		{"no label", model.Detection{Start: 0, End: 2, Score: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(text, []model.Detection{tt.det})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidDetection))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPlaceholderSpans(t *testing.T) {
	text := "<PERSON> met <EMAIL_ADDRESS> at a < b"
	spans := PlaceholderSpans(text)

	require.Len(t, spans, 2)
	assert.Equal(t, "<PERSON>", text[spans[0][0]:spans[0][1]])
	assert.Equal(t, "<EMAIL_ADDRESS>", text[spans[1][0]:spans[1][1]])

	assert.True(t, OverlapsPlaceholder(spans, 1, 3))
	assert.True(t, OverlapsPlaceholder(spans, 5, 11))
	assert.False(t, OverlapsPlaceholder(spans, 8, 12))

	assert.Nil(t, PlaceholderSpans("no markers"))
	assert.Empty(t, PlaceholderSpans("<lower> stays"))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \t\n"))
	assert.False(t, IsBlank(" x "))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	en := &recognizertest.Stub{RecName: "a", Language: "en", Entities: []string{"PERSON", "LOCATION"}}
	de := &recognizertest.Stub{RecName: "b", Language: "de", Entities: []string{"PERSON"}}
	en2 := &recognizertest.Stub{RecName: "c", Language: "EN", Entities: []string{"EMAIL_ADDRESS", "PERSON"}}

	require.NoError(t, r.Register(en))
	require.NoError(t, r.Register(de))
	require.NoError(t, r.Register(en2))
	assert.Error(t, r.Register(&recognizertest.Stub{RecName: "a"}), "duplicate names are rejected")

	assert.Equal(t, 3, r.Len())

	forEN := r.ForLanguage("en")
	require.Len(t, forEN, 2)
	assert.Equal(t, "a", forEN[0].Name())
	assert.Equal(t, "c", forEN[1].Name())

	assert.Equal(t, []string{"PERSON", "LOCATION", "EMAIL_ADDRESS"}, r.SupportedEntities("en"))
	assert.Empty(t, r.ForLanguage("fr"))

	forDE := r.ForLanguage("de")
	require.Len(t, forDE, 1)
	assert.Equal(t, "b", forDE[0].Name())

	all := r.All()
	all[0] = nil
	assert.NotNil(t, r.All()[0], "All returns a copy")
}

func TestSupports(t *testing.T) {
	rec := &recognizertest.Stub{Entities: []string{"PERSON"}}
	assert.True(t, Supports(rec, "PERSON"))
	assert.False(t, Supports(rec, "LOCATION"))
}

func TestCached(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"John": "PER"}}
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	rec := Cached(stub, c, time.Minute)

	assert.Equal(t, stub.Name(), rec.Name())
	assert.Equal(t, stub.SupportedEntities(), rec.SupportedEntities())

	for i := 0; i < 3; i++ {
		dets, err := rec.Detect(context.Background(), "John and John")
		require.NoError(t, err)
		require.Len(t, dets, 2)
		assert.Equal(t, "PER", dets[1].Label)
		assert.Equal(t, 9, dets[1].Start)
	}
	assert.Equal(t, 1, stub.Calls())

	_, err := rec.Detect(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Calls())
}

func TestCached_KeyIncludesConfiguration(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	narrow := &recognizertest.Stub{
		RecName:  "llm",
		Terms:    map[string]string{"Ann": "PERSON"},
		KeyParts: []string{"entities=PERSON"},
	}
	wide := &recognizertest.Stub{
		RecName:  "llm",
		Terms:    map[string]string{"Ann": "PERSON", "Berlin": "LOCATION"},
		KeyParts: []string{"entities=LOCATION,PERSON"},
	}

	dets, err := Cached(narrow, c, time.Minute).Detect(context.Background(), "Ann in Berlin")
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	limiter := worker.NewLimiter(100, 10)
	dets, err = Cached(RateLimited(wide, limiter), c, time.Minute).Detect(context.Background(), "Ann in Berlin")
	require.NoError(t, err)
	assert.Len(t, dets, 2, "a differently configured recognizer must not reuse the entry")
	assert.Equal(t, 1, wide.Calls())

	assert.Equal(t, []string{"entities=LOCATION,PERSON"}, CacheKeyParts(RateLimited(wide, limiter)))
	assert.Nil(t, CacheKeyParts(&recognizertest.Stub{}))
}

func TestCached_ErrorsNotCached(t *testing.T) {
	stub := &recognizertest.Stub{Err: errors.New("model offline")}
	rec := Cached(stub, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)

	for i := 0; i < 2; i++ {
		_, err := rec.Detect(context.Background(), "John")
		assert.Error(t, err)
	}
	assert.Equal(t, 2, stub.Calls())
}

func TestCached_NilCache(t *testing.T) {
	stub := &recognizertest.Stub{}
	assert.Same(t, stub, Cached(stub, nil, time.Minute))
}

func TestRateLimited(t *testing.T) {
	stub := &recognizertest.Stub{RecName: "ner", Terms: map[string]string{"Berlin": "LOC"}}
	limiter := worker.NewLimiter(0.001, 1)
	rec := RateLimited(stub, limiter)

	dets, err := rec.Detect(context.Background(), "Berlin")
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rec.Detect(ctx, "Berlin")
	assert.Error(t, err, "second call must wait past the deadline")
	assert.Equal(t, 1, stub.Calls())

	assert.Same(t, stub, RateLimited(stub, nil))
}
