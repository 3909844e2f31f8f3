package agentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSchema_OmitsSchemaMetadataKeys(t *testing.T) {
	schema, err := EnvelopeSchema[InputEnvelope]()
	require.NoError(t, err)
	_, hasSchema := schema["$schema"]
	_, hasID := schema["$id"]
	assert.False(t, hasSchema)
	assert.False(t, hasID)
	assert.Equal(t, "object", schema["type"])
}
