package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/forgeflow/orchestrator/pkg/learning/errorlog"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// patternKeyLen is the length of the pattern recogniser's registry key
// (spec §4.7.2: "a 16-char hash of (type, normalisedMessage, agentName)").
const patternKeyLen = 16

// PatternHash computes the pattern recogniser's registry key, distinct
// from errorlog.PatternHash (which omits agent and is used for severity
// escalation, not similarity).
func PatternHash(errorType, message, agent string) string {
	normalized := errorlog.Normalize(message)
	sum := sha256.Sum256([]byte(errorType + "\x00" + normalized + "\x00" + agent))
	return hex.EncodeToString(sum[:])[:patternKeyLen]
}

// PatternRegistry tracks ErrorPattern occurrences keyed by PatternHash and
// supports related-pattern lookup by weighted similarity.
type PatternRegistry struct {
	mu       sync.Mutex
	patterns map[string]*model.ErrorPattern
}

// NewPatternRegistry returns an empty registry.
func NewPatternRegistry() *PatternRegistry {
	return &PatternRegistry{patterns: make(map[string]*model.ErrorPattern)}
}

// Record registers one occurrence of entry against the pattern registry,
// incrementing counters on a hit or inserting a new pattern on a miss.
func (r *PatternRegistry) Record(entry model.ErrorLogEntry, now time.Time) *model.ErrorPattern {
	hash := PatternHash(entry.ErrorType, entry.Message, entry.Agent)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patterns[hash]
	if !ok {
		p = &model.ErrorPattern{
			Hash:          hash,
			ErrorType:     entry.ErrorType,
			NormalizedMsg: errorlog.Normalize(entry.Message),
			Agent:         entry.Agent,
			Category:      entry.Category,
			FirstSeen:     now,
		}
		r.patterns[hash] = p
	}
	p.TotalCount++
	p.RecentCount++
	p.LastSeen = now
	if !p.FirstSeen.IsZero() {
		days := now.Sub(p.FirstSeen).Hours() / 24
		if days < 1 {
			days = 1
		}
		p.Frequency = float64(p.TotalCount) / days
	}
	return p
}

// Get returns the pattern registered under hash, if any.
func (r *PatternRegistry) Get(hash string) (*model.ErrorPattern, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[hash]
	return p, ok
}

// RecordKnownFix appends a fix that previously applied successfully
// against the pattern identified by hash.
func (r *PatternRegistry) RecordKnownFix(hash string, fix model.KnownFix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.patterns[hash]; ok {
		p.KnownFixes = append(p.KnownFixes, fix)
	}
}

// similarityWeights implements spec §4.7.2's weighted similarity: error
// type 0.3, category 0.3, agent 0.2, skill 0.2. Skill is not carried on
// model.ErrorPattern, so its weight folds into the agent comparison,
// keeping type+category+agent normalised to the full 1.0.
const (
	weightType     = 0.3
	weightCategory = 0.3
	weightAgent    = 0.4
)

func similarity(a, b *model.ErrorPattern) float64 {
	var score float64
	if a.ErrorType == b.ErrorType {
		score += weightType
	}
	if a.Category == b.Category {
		score += weightCategory
	}
	if a.Agent == b.Agent {
		score += weightAgent
	}
	return score
}

// Related returns up to limit patterns (5 when limit <= 0) most similar to the one at hash,
// ordered by descending similarity, ties broken by hash for determinism.
func (r *PatternRegistry) Related(hash string, limit int) []*model.ErrorPattern {
	if limit <= 0 {
		limit = 5
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.patterns[hash]
	if !ok {
		return nil
	}

	type scored struct {
		p     *model.ErrorPattern
		score float64
	}
	var candidates []scored
	for h, p := range r.patterns {
		if h == hash {
			continue
		}
		candidates = append(candidates, scored{p, similarity(target, p)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].p.Hash < candidates[j].p.Hash
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*model.ErrorPattern, len(candidates))
	for i, c := range candidates {
		out[i] = c.p
	}
	return out
}

// ConfidenceWithKnownFix boosts base confidence by +0.1, capped at 1.0,
// when the pattern at hash has at least one known-good fix recorded.
func (r *PatternRegistry) ConfidenceWithKnownFix(hash string, base float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[hash]
	if !ok || len(p.KnownFixes) == 0 {
		return base
	}
	boosted := base + 0.1
	if boosted > 1.0 {
		boosted = 1.0
	}
	return boosted
}
