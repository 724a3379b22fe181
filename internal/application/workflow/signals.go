package workflow

import "sync"

// Signal is an out-of-band delivery that resumes a suspended workflow. The
// name is the external transaction id the suspended step registered.
type Signal struct {
	Name    string
	Payload map[string]any
}

// SignalHub buffers signals that arrive before the workflow's suspension is
// persisted. The callback endpoint may fire in the window between the
// processor issuing a transaction id and the engine parking the workflow; a
// one-slot buffer per (workflow, signal) closes that race. First delivery
// wins, duplicates are dropped.
type SignalHub struct {
	mu      sync.Mutex
	pending map[string]Signal
}

// NewSignalHub creates an empty hub.
func NewSignalHub() *SignalHub {
	return &SignalHub{pending: make(map[string]Signal)}
}

// Buffer stores a signal for a workflow that has not suspended yet. Returns
// false when a signal with the same name is already buffered.
func (h *SignalHub) Buffer(workflowID string, sig Signal) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := workflowID + "/" + sig.Name
	if _, exists := h.pending[k]; exists {
		return false
	}
	h.pending[k] = sig
	return true
}

// Take removes and returns the buffered signal for (workflow, name), if any.
func (h *SignalHub) Take(workflowID, name string) (Signal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := workflowID + "/" + name
	sig, ok := h.pending[k]
	if ok {
		delete(h.pending, k)
	}
	return sig, ok
}

// Drop discards any buffered signal for the workflow signal, used when the
// workflow reaches a terminal state without consuming it.
func (h *SignalHub) Drop(workflowID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, workflowID+"/"+name)
}
