package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/deidentify/internal/analyze"
	"github.com/ppiankov/deidentify/internal/anonymize"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/recognizer/recognizertest"
	"github.com/ppiankov/deidentify/internal/table"
)

func newStub() *recognizertest.Stub {
	return &recognizertest.Stub{
		RecName:  "stub",
		Entities: []string{"PERSON", "LOCATION"},
		Terms:    map[string]string{"John Smith": "PER", "Berlin": "LOC", "PERSON": "PER", "Bob": "PER"},
	}
}

func newEngine(t *testing.T, stub *recognizertest.Stub, entities []string, lowerCase bool, skip map[string]bool) *Engine {
	t.Helper()
	a := analyze.New([]recognizer.Recognizer{stub}, nil, analyze.Options{Language: "en", Entities: entities, Workers: 2})
	anon, err := anonymize.New(model.AnonymizeConfig{})
	require.NoError(t, err)
	return NewEngine(a, anon, lowerCase, skip)
}

func TestDeidentify_EndToEnd(t *testing.T) {
	e := newEngine(t, newStub(), []string{"PERSON"}, false, nil)

	in := model.TableFromRecords([][]string{{"name", "city"}, {"John Smith", "Berlin"}})
	result, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"name", "city"}, {"<PERSON>", "Berlin"}}, result.Table.Records())
	assert.Equal(t, 1, result.Stats.Replaced)
	assert.Equal(t, map[string]int{"PERSON": 1}, result.Detections.Count())
}

func TestDeidentify_ShapePreserved(t *testing.T) {
	e := newEngine(t, newStub(), nil, false, nil)

	in := model.TableFromRecords([][]string{
		{"c", "a", "b"},
		{"John Smith", "", "x"},
		{"y", "Berlin", ""},
		{"", "", ""},
	})
	result, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, in.Header, result.Table.Header)
	require.Len(t, result.Table.Rows, 3)
	for _, row := range result.Table.Rows {
		assert.Len(t, row, 3)
	}
	assert.Equal(t, []string{"<PERSON>", "", "x"}, result.Table.Rows[0])
	assert.Equal(t, []string{"y", "<LOCATION>", ""}, result.Table.Rows[1])
}

func TestDeidentify_NoDetectionsIsIdentity(t *testing.T) {
	e := newEngine(t, newStub(), nil, false, nil)

	in := model.TableFromRecords([][]string{{"a", "b"}, {"Hello, World", "  spaced  "}, {"ünïcödé", ""}})
	result, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.Records(), result.Table.Records())
	assert.Zero(t, result.Stats.ChangedCells)
}

func TestDeidentify_Idempotent(t *testing.T) {
	e := newEngine(t, newStub(), nil, false, nil)

	in := model.TableFromRecords([][]string{{"note"}, {"John Smith met Bob in Berlin"}})
	first, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "<PERSON> met <PERSON> in <LOCATION>", first.Table.Rows[0][0])

	second, err := e.Deidentify(context.Background(), first.Table)
	require.NoError(t, err)
	assert.Equal(t, first.Table.Records(), second.Table.Records())
	assert.Zero(t, second.Stats.Replaced)
}

func TestDeidentify_LowerCaseProtectsPlaceholders(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Terms: map[string]string{"PERSON": "PER", "bob": "PER"}}
	e := newEngine(t, stub, nil, true, nil)

	in := model.TableFromRecords([][]string{{"Note", "Other"}, {"<PERSON> and Bob", "BOB"}})
	result, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"Note", "Other"}, result.Table.Header)
	assert.Equal(t, "<PERSON> and Bob", result.Table.Rows[0][0], "cells holding placeholders are not case-folded")
	assert.Equal(t, "<PERSON>", result.Table.Rows[0][1])
}

func TestDeidentify_SkipColumns(t *testing.T) {
	stub := newStub()
	e := newEngine(t, stub, nil, false, map[string]bool{"id": true})

	in := model.TableFromRecords([][]string{{"id", "name"}, {"John Smith", "John Smith"}})
	result, err := e.Deidentify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith", "<PERSON>"}, result.Table.Rows[0])
	assert.Equal(t, 1, stub.Calls())
}

func TestDeidentify_RaggedRowsRejectedFirst(t *testing.T) {
	stub := newStub()
	e := newEngine(t, stub, nil, false, nil)

	in := model.Table{Header: []string{"a", "b"}, Rows: [][]string{{"John Smith", "x"}, {"only one"}}}
	_, err := e.Deidentify(context.Background(), in)

	var malformed *table.MalformedTableError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Row)
	assert.Zero(t, stub.Calls(), "no recognizer runs on a malformed table")
}

func TestDeidentify_RecognizerFailure(t *testing.T) {
	stub := &recognizertest.Stub{Entities: []string{"PERSON"}, Err: errors.New("down")}
	e := newEngine(t, stub, nil, false, nil)

	_, err := e.Deidentify(context.Background(), model.TableFromRecords([][]string{{"a"}, {"x"}}))
	var failure *analyze.RecognizerFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "a", failure.Column)
}

// MockAnonymizer drops a column to exercise reassembly checks
type MockAnonymizer struct{}

func (MockAnonymizer) Anonymize(view *model.ColumnView, _ model.ColumnDetections) (*model.ColumnView, anonymize.Stats, error) {
	out := model.NewColumnView(view.Order)
	for _, name := range view.Order {
		values, _ := view.Column(name)
		out.Values[name] = values[:len(values)-1]
	}
	return out, anonymize.Stats{}, nil
}

func TestDeidentify_ReassemblyMismatchSurfaces(t *testing.T) {
	a := analyze.New([]recognizer.Recognizer{newStub()}, nil, analyze.Options{Language: "en"})
	e := NewEngine(a, MockAnonymizer{}, false, nil)

	_, err := e.Deidentify(context.Background(), model.TableFromRecords([][]string{{"a"}, {"x"}, {"y"}}))
	var mismatch *table.ReassemblyLengthMismatch
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 2, mismatch.Want)
	assert.Equal(t, 1, mismatch.Got)
}

func TestEngine_WithOptions(t *testing.T) {
	stub := newStub()
	base := newEngine(t, stub, nil, false, nil)
	e := base.WithOptions(false, map[string]bool{"a": true})

	result, err := e.Deidentify(context.Background(), model.TableFromRecords([][]string{{"a"}, {"John Smith"}}))
	require.NoError(t, err)
	assert.Equal(t, "John Smith", result.Table.Rows[0][0])
	assert.Zero(t, stub.Calls())
}
