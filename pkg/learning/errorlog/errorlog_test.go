package errorlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/model"
)

func TestCategorize_MissingParameter(t *testing.T) {
	cat := Categorize("ValidationError", "Parameter 'userId' is required")
	assert.Equal(t, model.CategoryMissingParameter, cat)
}

func TestCategorize_UnknownFallback(t *testing.T) {
	cat := Categorize("Weird", "something completely unclassified happened")
	assert.Equal(t, model.CategoryUnknown, cat)
}

func TestNormalize_ReplacesDigitsQuotesAndHex(t *testing.T) {
	got := Normalize(`retry 12 failed at 0xFF for "field1" and 'field2'`)
	assert.Equal(t, `retry N failed at 0xHEX for "X" and 'X'`, got)
}

func TestNormalize_TruncatesTo150Runes(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := Normalize(long)
	assert.Len(t, got, 150)
}

func TestCapture_SameErrorTwiceYieldsTwoEntriesOnePattern(t *testing.T) {
	l := New(nil)
	in := CaptureInput{ErrorType: "ValidationError", Message: "Parameter 'userId' is required"}

	e1 := l.Capture(context.Background(), in)
	e2 := l.Capture(context.Background(), in)

	require.NotEqual(t, e1.ID, e2.ID)
	assert.Equal(t, e1.PatternHash, e2.PatternHash)
	assert.Equal(t, 2, l.OccurrenceCount(e1.PatternHash))
	assert.Equal(t, 2, e2.Frequency.Total)
}

func TestCapture_SeverityEscalatesWithOccurrences(t *testing.T) {
	l := New(nil)
	in := CaptureInput{ErrorType: "X", Message: "boom"}

	var last model.ErrorLogEntry
	for i := 0; i < 11; i++ {
		last = l.Capture(context.Background(), in)
	}
	assert.Equal(t, model.SeverityCritical, last.Severity)
}

func TestCapture_PublishesErrorLoggedEvent(t *testing.T) {
	bus := newTestBus()
	l := New(bus.bus)
	l.Capture(context.Background(), CaptureInput{ErrorType: "X", Message: "boom"})
	bus.wait(t)
	assert.Len(t, bus.payloads, 1)
}

func TestMarkResolved_UpdatesEntry(t *testing.T) {
	l := New(nil)
	e := l.Capture(context.Background(), CaptureInput{ErrorType: "X", Message: "boom"})
	ok := l.MarkResolved(e.ID, "chg-1")
	require.True(t, ok)
	got, _ := l.Get(e.ID)
	assert.True(t, got.Resolved)
	assert.Equal(t, "chg-1", got.ResolutionID)
}

func TestNewWithClock_FrequencyUsesInjectedClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := base
	l := NewWithClock(nil, func() time.Time { return cur })

	e1 := l.Capture(context.Background(), CaptureInput{ErrorType: "X", Message: "boom"})
	assert.Equal(t, base, e1.Frequency.First)

	cur = base.Add(2 * time.Hour)
	e2 := l.Capture(context.Background(), CaptureInput{ErrorType: "X", Message: "boom"})
	assert.Equal(t, base, e2.Frequency.First)
	assert.Equal(t, cur, e2.Frequency.Last)
}
