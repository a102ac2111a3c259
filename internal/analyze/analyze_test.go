package analyze

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/recognizer/recognizertest"
	"github.com/ppiankov/deidentify/internal/reconcile"
)

func personStub() *recognizertest.Stub {
	return &recognizertest.Stub{
		RecName:  "people",
		Entities: []string{"PERSON", "LOCATION"},
		Terms:    map[string]string{"John Smith": "PER", "Berlin": "LOC"},
	}
}

func view(order []string, values map[string][]string) *model.ColumnView {
	return &model.ColumnView{Order: order, Values: values}
}

func TestAnalyze(t *testing.T) {
	stub := personStub()
	a := New([]recognizer.Recognizer{stub}, nil, Options{Language: "en", Entities: []string{"PERSON"}, Workers: 2})

	v := view([]string{"name", "city"}, map[string][]string{
		"name": {"John Smith", ""},
		"city": {"Berlin", "John Smith in Berlin"},
	})

	dets, warnings, err := a.Analyze(context.Background(), v, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, dets["name"], 2)
	require.Len(t, dets["name"][0].Detections, 1)
	d := dets["name"][0].Detections[0]
	assert.Equal(t, "PERSON", d.EntityType)
	assert.Equal(t, "PER", d.Label)
	assert.Equal(t, 0, d.Start)
	assert.Equal(t, 10, d.End)
	assert.Equal(t, "people", d.Recognizer)
	assert.Empty(t, dets["name"][1].Detections)

	require.Len(t, dets["city"], 2)
	assert.Empty(t, dets["city"][0].Detections, "LOCATION was not requested")
	require.Len(t, dets["city"][1].Detections, 1)
	assert.Equal(t, 1, dets["city"][1].Row)

	assert.Equal(t, 3, stub.Calls(), "blank cells are never sent to recognizers")
}

func TestAnalyze_DefaultEntitiesAreUnion(t *testing.T) {
	a := New([]recognizer.Recognizer{personStub()}, nil, Options{Language: "en"})
	assert.Equal(t, []string{"PERSON", "LOCATION"}, a.Entities())

	dets, _, err := a.Analyze(context.Background(), view([]string{"city"}, map[string][]string{"city": {"Berlin"}}), nil)
	require.NoError(t, err)
	require.Len(t, dets["city"][0].Detections, 1)
	assert.Equal(t, "LOCATION", dets["city"][0].Detections[0].EntityType)
}

func TestAnalyze_SkippedColumnsAbsent(t *testing.T) {
	stub := personStub()
	a := New([]recognizer.Recognizer{stub}, nil, Options{Language: "en"})

	v := view([]string{"id", "name"}, map[string][]string{
		"id":   {"John Smith"},
		"name": {"John Smith"},
	})
	dets, _, err := a.Analyze(context.Background(), v, map[string]bool{"id": true})
	require.NoError(t, err)

	_, ok := dets["id"]
	assert.False(t, ok)
	assert.Len(t, dets["name"], 1)
	assert.Equal(t, []string{"John Smith"}, stub.Seen())
}

func TestAnalyze_UnsupportedEntityWarns(t *testing.T) {
	a := New([]recognizer.Recognizer{personStub()}, nil, Options{Language: "en", Entities: []string{"PERSON", "CREDIT_CARD"}})

	_, warnings, err := a.Analyze(context.Background(), view([]string{"x"}, map[string][]string{"x": {"a"}}), nil)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "CREDIT_CARD")
}

func TestAnalyze_NoRecognizerForLanguage(t *testing.T) {
	a := New([]recognizer.Recognizer{personStub()}, nil, Options{Language: "de"})

	_, _, err := a.Analyze(context.Background(), view(nil, nil), nil)
	assert.True(t, errors.Is(err, ErrNoRecognizers))
}

func TestAnalyze_LanguageSelection(t *testing.T) {
	en := personStub()
	de := &recognizertest.Stub{RecName: "german", Language: "de", Entities: []string{"PERSON"}, Terms: map[string]string{"Hans": "PER"}}
	a := New([]recognizer.Recognizer{en, de}, nil, Options{Language: "DE"})

	require.Len(t, a.Recognizers(), 1)
	assert.Equal(t, "german", a.Recognizers()[0].Name())

	_, _, err := a.Analyze(context.Background(), view([]string{"n"}, map[string][]string{"n": {"Hans"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, en.Calls())
	assert.Equal(t, 1, de.Calls())
}

func TestAnalyze_ReconcilerRejectsLabel(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"Ann": "PER", "Acme": "MISC"}}
	r := reconcile.New([]model.EquivalenceGroup{{Targets: []string{"PERSON"}, Labels: []string{"PER", "PERSON"}}})
	a := New([]recognizer.Recognizer{stub}, r, Options{Language: "en"})

	dets, _, err := a.Analyze(context.Background(), view([]string{"c"}, map[string][]string{"c": {"Ann at Acme"}}), nil)
	require.NoError(t, err)
	require.Len(t, dets["c"][0].Detections, 1)
	assert.Equal(t, "Ann", "Ann at Acme"[dets["c"][0].Detections[0].Start:dets["c"][0].Detections[0].End])
}

func TestAnalyze_DropsUndeclaredCategory(t *testing.T) {
	// Reports LOC but only declares PERSON
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"Paris": "LOC", "Ann": "PER"}}
	other := &recognizertest.Stub{RecName: "other", Entities: []string{"LOCATION"}}
	a := New([]recognizer.Recognizer{stub, other}, nil, Options{Language: "en"})

	dets, _, err := a.Analyze(context.Background(), view([]string{"c"}, map[string][]string{"c": {"Ann from Paris"}}), nil)
	require.NoError(t, err)
	require.Len(t, dets["c"][0].Detections, 1)
	assert.Equal(t, "PERSON", dets["c"][0].Detections[0].EntityType)
}

func TestAnalyze_DropsPlaceholderOverlap(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"PERSON": "PER", "Bob": "PER"}}
	a := New([]recognizer.Recognizer{stub}, nil, Options{Language: "en"})

	dets, _, err := a.Analyze(context.Background(), view([]string{"c"}, map[string][]string{"c": {"<PERSON> and Bob"}}), nil)
	require.NoError(t, err)
	require.Len(t, dets["c"][0].Detections, 1)
	assert.Equal(t, 13, dets["c"][0].Detections[0].Start)
}

func TestAnalyze_KeepsOverlapsFromDifferentRecognizers(t *testing.T) {
	a1 := &recognizertest.Stub{RecName: "a", Entities: []string{"PERSON"}, Terms: map[string]string{"John Smith": "PER"}, Score: 0.9}
	a2 := &recognizertest.Stub{RecName: "b", Entities: []string{"PERSON"}, Terms: map[string]string{"Smith": "PERSON"}, Score: 0.6}
	a := New([]recognizer.Recognizer{a1, a2}, nil, Options{Language: "en"})

	dets, _, err := a.Analyze(context.Background(), view([]string{"c"}, map[string][]string{"c": {"John Smith"}}), nil)
	require.NoError(t, err)
	cell := dets["c"][0].Detections
	require.Len(t, cell, 2)
	assert.Equal(t, "a", cell[0].Recognizer)
	assert.Equal(t, "b", cell[1].Recognizer)
}

func TestAnalyze_RecognizerError(t *testing.T) {
	boom := errors.New("model offline")
	failing := &recognizertest.Stub{RecName: "remote", Entities: []string{"PERSON"}, Err: boom}
	a := New([]recognizer.Recognizer{failing}, nil, Options{Language: "en", Workers: 3})

	v := view([]string{"a", "b", "c"}, map[string][]string{
		"a": {"", ""},
		"b": {"", "x"},
		"c": {"y"},
	})
	_, _, err := a.Analyze(context.Background(), v, nil)
	require.Error(t, err)

	var failure *RecognizerFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "b", failure.Column, "first failing column in view order")
	assert.Equal(t, 1, failure.Row)
	assert.Equal(t, "remote", failure.Recognizer)
	assert.True(t, errors.Is(err, boom))
}

func TestAnalyze_MalformedOutput(t *testing.T) {
	bad := &recognizertest.Stub{
		Entities: []string{"PERSON"},
		Output: func(text string) []model.Detection {
			return []model.Detection{{Label: "PER", Start: 0, End: len(text) + 5, Score: 0.9}}
		},
	}
	a := New([]recognizer.Recognizer{bad}, nil, Options{Language: "en"})

	_, _, err := a.Analyze(context.Background(), view([]string{"c"}, map[string][]string{"c": {"Ann"}}), nil)
	var failure *RecognizerFailure
	require.True(t, errors.As(err, &failure))
	assert.True(t, errors.Is(err, recognizer.ErrInvalidDetection))
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New([]recognizer.Recognizer{personStub()}, nil, Options{Language: "en"})
	_, _, err := a.Analyze(ctx, view([]string{"c"}, map[string][]string{"c": {"John Smith"}}), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAnalyze_ManyColumns(t *testing.T) {
	stub := personStub()
	a := New([]recognizer.Recognizer{stub}, nil, Options{Language: "en", Workers: 4})

	order := make([]string, 50)
	values := make(map[string][]string, 50)
	for i := range order {
		name := string(rune('A'+i%26)) + string(rune('a'+i/26))
		order[i] = name
		values[name] = []string{"John Smith", "nobody"}
	}

	dets, _, err := a.Analyze(context.Background(), view(order, values), nil)
	require.NoError(t, err)
	assert.Len(t, dets, 50)
	assert.Equal(t, map[string]int{"PERSON": 50}, dets.Count())
}
