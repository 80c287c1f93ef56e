package telegram

import (
	"context"
	"sync/atomic"
)

// sendCounter tallies successful outbound sends for one update so the
// handler summary can report how many messages the update produced.
type sendCounter struct {
	n atomic.Int64
}

type sendCounterKey struct{}

func withSendCounter(ctx context.Context) (context.Context, *sendCounter) {
	counter := &sendCounter{}
	return context.WithValue(ctx, sendCounterKey{}, counter), counter
}

// countSend records one successful delivery. Contexts without a counter are
// a no-op.
func countSend(ctx context.Context) {
	if counter, ok := ctx.Value(sendCounterKey{}).(*sendCounter); ok {
		counter.n.Add(1)
	}
}

func (s *sendCounter) total() int {
	return int(s.n.Load())
}
