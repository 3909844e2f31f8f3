// Package errorlog implements the Error Logger (spec §4.7.1): it captures
// every agent failure into a structured, normalised entry, tracks
// recurrence frequency by a pattern key, and escalates severity as
// occurrences grow.
package errorlog

import (
	"context"
	"crypto/md5" //nolint:gosec // non-cryptographic pattern key, not security sensitive
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// CaptureInput is everything a caller supplies when an agent failure
// occurs; the Logger fills in identification, normalisation, frequency,
// and categorisation.
type CaptureInput struct {
	BatchID   string
	Phase     int
	Agent     string
	Skill     string
	ErrorType string
	Message   string
	Code      string
	Stack     string
	Line      int
	Context   model.ErrorContext
	Learnable bool
	AutoFix   bool
}

type frequencyState struct {
	occurrences []time.Time
	first       time.Time
}

// Logger is the Error Logger. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	events   *events.Bus
	now      func() time.Time
	entries  map[string]model.ErrorLogEntry
	byPattern map[string][]string // pattern hash -> entry ids, insertion order
	patterns map[string]*frequencyState
}

// New constructs a Logger. eventBus may be nil, in which case captures are
// not published anywhere (useful for tests).
func New(eventBus *events.Bus) *Logger {
	return NewWithClock(eventBus, time.Now)
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(eventBus *events.Bus, now func() time.Time) *Logger {
	return &Logger{
		events:    eventBus,
		now:       now,
		entries:   make(map[string]model.ErrorLogEntry),
		byPattern: make(map[string][]string),
		patterns:  make(map[string]*frequencyState),
	}
}

// PatternHash computes the frequency-tracking pattern key of spec §4.7.1:
// MD5(errorType ∥ normalized(message) ∥ category).
func PatternHash(errorType, message string, category model.ErrorCategory) string {
	normalized := Normalize(message)
	sum := md5.Sum([]byte(errorType + "\x00" + normalized + "\x00" + string(category))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Capture records one error occurrence. Two calls with the same
// errorType/message/category yield two distinct entries sharing one
// pattern, with the pattern's occurrence counter incremented by two
// (spec §8 round-trip law).
func (l *Logger) Capture(ctx context.Context, in CaptureInput) model.ErrorLogEntry {
	now := l.now()
	category := Categorize(in.ErrorType, in.Message)
	hash := PatternHash(in.ErrorType, in.Message, category)

	l.mu.Lock()
	state, ok := l.patterns[hash]
	if !ok {
		state = &frequencyState{first: now}
		l.patterns[hash] = state
	}
	state.occurrences = append(state.occurrences, now)
	total := len(state.occurrences)
	recent := 0
	cutoff := now.Add(-24 * time.Hour)
	for _, t := range state.occurrences {
		if t.After(cutoff) {
			recent++
		}
	}
	days := now.Sub(state.first).Hours() / 24
	if days < 1 {
		days = 1
	}
	perDay := float64(total) / days

	entry := model.ErrorLogEntry{
		ID:        uuid.NewString(),
		BatchID:   in.BatchID,
		Phase:     in.Phase,
		Agent:     in.Agent,
		Skill:     in.Skill,
		ErrorType: in.ErrorType,
		Message:   in.Message,
		Code:      in.Code,
		Stack:     in.Stack,
		Line:      in.Line,
		Context:   in.Context,
		Frequency: model.FrequencyInfo{
			Total:  total,
			Recent: recent,
			PerDay: perDay,
			First:  state.first,
			Last:   now,
		},
		Category:    category,
		Severity:    model.SeverityForOccurrences(total),
		Learnable:   in.Learnable,
		AutoFix:     in.AutoFix,
		PatternHash: hash,
		OccurredAt:  now,
	}
	l.entries[entry.ID] = entry
	l.byPattern[hash] = append(l.byPattern[hash], entry.ID)
	l.mu.Unlock()

	if l.events != nil {
		l.events.Publish(ctx, events.Event{Topic: events.TopicErrorLogged, Payload: entry})
	}
	return entry
}

// Get returns a previously captured entry by id.
func (l *Logger) Get(id string) (model.ErrorLogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e, ok
}

// MarkResolved records that entry id was resolved by changeID.
func (l *Logger) MarkResolved(id, changeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return false
	}
	e.Resolved = true
	e.ResolutionID = changeID
	l.entries[id] = e
	return true
}

// ForPattern returns every entry captured under the given pattern hash, in
// capture order.
func (l *Logger) ForPattern(hash string) []model.ErrorLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := l.byPattern[hash]
	out := make([]model.ErrorLogEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entries[id])
	}
	return out
}

// OccurrenceCount returns the total recorded occurrences for a pattern hash.
func (l *Logger) OccurrenceCount(hash string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.patterns[hash]; ok {
		return len(s.occurrences)
	}
	return 0
}
