package analysis

import (
	"context"
	"time"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// Result bundles both analyses the engine runs against one error entry.
type Result struct {
	RootCause        RootCause
	Pattern          *model.ErrorPattern
	RelatedPatterns  []*model.ErrorPattern
	Confidence       float64
}

// Engine is the Analysis Engine (spec §4.7.2).
type Engine struct {
	registry *PatternRegistry
	events   *events.Bus
	now      func() time.Time
}

// New constructs an Engine. eventBus may be nil.
func New(eventBus *events.Bus) *Engine {
	return &Engine{registry: NewPatternRegistry(), events: eventBus, now: time.Now}
}

// Registry exposes the underlying pattern registry, e.g. so the Apply
// Engine can call RecordKnownFix once a fix proves effective.
func (e *Engine) Registry() *PatternRegistry {
	return e.registry
}

// Analyze runs the root-cause detector and pattern recogniser against
// entry and returns the combined result.
func (e *Engine) Analyze(ctx context.Context, entry model.ErrorLogEntry) Result {
	now := e.now()
	rootCause := DetectRootCause(entry)
	pattern := e.registry.Record(entry, now)
	related := e.registry.Related(pattern.Hash, 5)
	confidence := e.registry.ConfidenceWithKnownFix(pattern.Hash, rootCause.Confidence)

	result := Result{RootCause: rootCause, Pattern: pattern, RelatedPatterns: related, Confidence: confidence}

	if e.events != nil {
		e.events.Publish(ctx, events.Event{Topic: events.TopicPatternDetected, Payload: result})
	}
	return result
}
