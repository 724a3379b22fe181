package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalHubFirstDeliveryWins(t *testing.T) {
	hub := NewSignalHub()

	assert.True(t, hub.Buffer("wf1", Signal{Name: "txn_1", Payload: map[string]any{"status": "approved"}}))
	assert.False(t, hub.Buffer("wf1", Signal{Name: "txn_1", Payload: map[string]any{"status": "declined"}}))

	sig, ok := hub.Take("wf1", "txn_1")
	assert.True(t, ok)
	assert.Equal(t, "approved", sig.Payload["status"])

	_, ok = hub.Take("wf1", "txn_1")
	assert.False(t, ok)
}

func TestSignalHubKeysByWorkflowAndName(t *testing.T) {
	hub := NewSignalHub()

	hub.Buffer("wf1", Signal{Name: "txn_1"})
	hub.Buffer("wf2", Signal{Name: "txn_1"})

	_, ok := hub.Take("wf1", "txn_1")
	assert.True(t, ok)
	_, ok = hub.Take("wf2", "txn_1")
	assert.True(t, ok)
}

func TestSignalHubDrop(t *testing.T) {
	hub := NewSignalHub()

	hub.Buffer("wf1", Signal{Name: "txn_1"})
	hub.Drop("wf1", "txn_1")

	_, ok := hub.Take("wf1", "txn_1")
	assert.False(t, ok)
}
