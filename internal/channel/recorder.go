package channel

import (
	"context"
	"sync"
)

// Recorder implements Sender for tests. It records every payload and can be
// told to fail.
type Recorder struct {
	mu   sync.Mutex
	sent []Payload
	err  error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Send records p, or returns the configured error without recording.
func (r *Recorder) Send(ctx context.Context, p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, p)
	return nil
}

// FailWith makes subsequent sends return err. nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Payload, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentTo returns the payloads addressed to one recipient.
func (r *Recorder) SentTo(to string) []Payload {
	var out []Payload
	for _, p := range r.Sent() {
		if p.To == to {
			out = append(out, p)
		}
	}
	return out
}

// Reset forgets recorded payloads.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
