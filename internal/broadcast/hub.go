package broadcast

import "sync"

// observerBuffer is the per-observer channel capacity. A slow or stalled
// observer loses messages once its buffer fills; delivery is best-effort.
const observerBuffer = 16

// Observer is a live subscription to one job's progress events.
type Observer struct {
	ch chan string
}

// Events returns the channel on which progress messages arrive.
func (o *Observer) Events() <-chan string {
	return o.ch
}

// Hub multiplexes progress messages to zero or more observers per job.
// Attach and Detach run on the control plane, Publish on the worker; the
// mutex guards the observer sets against both.
type Hub struct {
	mu        sync.Mutex
	observers map[string]map[*Observer]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{observers: make(map[string]map[*Observer]struct{})}
}

// Attach registers a new observer for the given job.
func (h *Hub) Attach(jobID string) *Observer {
	obs := &Observer{ch: make(chan string, observerBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.observers[jobID]
	if !ok {
		set = make(map[*Observer]struct{})
		h.observers[jobID] = set
	}
	set[obs] = struct{}{}
	return obs
}

// Detach removes the observer and closes its channel. Safe to call once per
// observer; unknown observers are ignored.
func (h *Hub) Detach(jobID string, obs *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.observers[jobID]
	if !ok {
		return
	}
	if _, ok := set[obs]; !ok {
		return
	}
	delete(set, obs)
	if len(set) == 0 {
		delete(h.observers, jobID)
	}
	close(obs.ch)
}

// Publish delivers text to every observer attached to the job. Delivery
// never blocks the caller: observers with full buffers drop the message,
// and a job with no observers is a no-op.
func (h *Hub) Publish(jobID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for obs := range h.observers[jobID] {
		select {
		case obs.ch <- text:
		default:
		}
	}
}
