package dispatch

import (
	"context"
	"sync"
)

// Recorder is an in-memory Gateway for development and testing. It records
// every message and reports all tokens as delivered unless configured
// otherwise.
type Recorder struct {
	mu sync.Mutex

	sent []*Message

	// Err, when set, is returned by every Send.
	Err error

	// FailTokens marks tokens counted as failures.
	FailTokens map[string]bool
}

// NewRecorder creates a recording gateway.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, msg *Message) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	if len(msg.Tokens) == 0 {
		return nil, ErrEmptyMessage
	}

	copied := *msg
	copied.Tokens = append([]string(nil), msg.Tokens...)
	r.sent = append(r.sent, &copied)

	result := &Result{}
	for _, tok := range msg.Tokens {
		if r.FailTokens[tok] {
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
	}
	return result, nil
}

// Sent returns the recorded messages in send order.
func (r *Recorder) Sent() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.sent...)
}

// Ensure Recorder implements Gateway.
var _ Gateway = (*Recorder)(nil)
