package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ArtifactKind classifies the inferred nature of an Artifact's content.
type ArtifactKind string

const (
	ArtifactInfrastructure ArtifactKind = "infrastructure"
	ArtifactSourceCode     ArtifactKind = "source-code"
	ArtifactConfig         ArtifactKind = "config"
	ArtifactDocumentation  ArtifactKind = "documentation"
	ArtifactOther          ArtifactKind = "other"
)

// Artifact is a named, hashed output produced by an agent during a phase.
// Immutable once registered; a new version supersedes rather than mutates.
type Artifact struct {
	ID          string       `json:"id"`
	Execution   string       `json:"execution"`
	Phase       int          `json:"phase"`
	Agent       string       `json:"agent"`
	Name        string       `json:"name"`
	Kind        ArtifactKind `json:"kind"`
	Content     []byte       `json:"-"`
	ContentHash string       `json:"contentHash"`
	Size        int64        `json:"size"`
	Version     int          `json:"version"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// HashContent computes the spec's content hash (SHA-256, hex encoded).
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether the Artifact's ContentHash matches its Content
// (spec §8 universal invariant: SHA-256(content) == contentHash).
func (a *Artifact) VerifyHash() bool {
	return HashContent(a.Content) == a.ContentHash
}

// InferKind guesses an ArtifactKind from a logical name, in the absence of
// an agent-declared kind. Agents are free to set Kind explicitly; this is
// only the fallback the State Store applies when they don't.
func InferKind(name string) ArtifactKind {
	switch {
	case hasAnySuffix(name, ".tf", ".tfvars", ".bicep", ".yaml.infra"):
		return ArtifactInfrastructure
	case hasAnySuffix(name, ".go", ".ts", ".js", ".py", ".java", ".rb"):
		return ArtifactSourceCode
	case hasAnySuffix(name, ".yaml", ".yml", ".json", ".toml", ".ini", ".env"):
		return ArtifactConfig
	case hasAnySuffix(name, ".md", ".rst", ".txt"):
		return ArtifactDocumentation
	default:
		return ArtifactOther
	}
}

func hasAnySuffix(name string, suffixes ...string) bool {
	for _, s := range suffixes {
		if len(name) >= len(s) && name[len(name)-len(s):] == s {
			return true
		}
	}
	return false
}
