// internal/bridge/ring.go
package bridge

import "sync"

// RingCapacity bounds the pending-request history.
const RingCapacity = 16

// Kind tags what a request is for.
type Kind uint8

const (
	KindSampling Kind = iota
	KindDiscovery
)

func (k Kind) String() string {
	if k == KindDiscovery {
		return "discovery"
	}
	return "sampling"
}

// PendingRequest describes an in-flight call. Token 0 marks a free slot.
type PendingRequest struct {
	Token    uint32
	DeviceID uint8
	SensorID uint8
	Function uint8
	Kind     Kind
}

// Ring is a fixed-capacity record of recent requests, overwritten oldest first.
// It is diagnostic only: completion routing does not depend on it.
type Ring struct {
	mu    sync.Mutex
	slots [RingCapacity]PendingRequest
	head  int
}

func (r *Ring) Put(p PendingRequest) {
	r.mu.Lock()
	r.slots[r.head] = p
	r.head = (r.head + 1) % RingCapacity
	r.mu.Unlock()
}

// Find returns the entry for token if it has not been overwritten or released.
func (r *Ring) Find(token uint32) (PendingRequest, bool) {
	if token == 0 {
		return PendingRequest{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.slots {
		if p.Token == token {
			return p, true
		}
	}
	return PendingRequest{}, false
}

// Release frees the slot holding token.
func (r *Ring) Release(token uint32) {
	if token == 0 {
		return
	}
	r.mu.Lock()
	for i := range r.slots {
		if r.slots[i].Token == token {
			r.slots[i] = PendingRequest{}
		}
	}
	r.mu.Unlock()
}

// Live counts occupied slots.
func (r *Ring) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.slots {
		if p.Token != 0 {
			n++
		}
	}
	return n
}
