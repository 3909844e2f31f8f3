package agentregistry

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// InputEnvelope is what an agent receives for a phase invocation. Payload
// is intentionally opaque: the core never interprets it (spec §1).
type InputEnvelope struct {
	ExecutionID string         `json:"executionId"`
	Phase       int            `json:"phase"`
	AgentID     string         `json:"agentId"`
	Payload     map[string]any `json:"payload"`
}

// OutputEnvelope is what an agent returns: its own opaque payload plus
// zero or more artifact references (the artifact content itself is
// persisted by the State Store, not carried in the envelope).
type OutputEnvelope struct {
	AgentID        string         `json:"agentId"`
	Payload        map[string]any `json:"payload"`
	ArtifactNames  []string       `json:"artifactNames,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// EnvelopeSchema generates a JSON schema for type T using the same
// reflector settings as the teacher's tool-schema generator: inline
// definitions, required fields taken from jsonschema tags, no $schema/$id
// noise. Used to publish InputSchemaID/OutputSchemaID contracts for
// agents that validate their own envelopes.
func EnvelopeSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("agentregistry: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("agentregistry: unmarshal schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}
