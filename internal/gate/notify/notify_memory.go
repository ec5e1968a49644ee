package notify

import (
	"context"
	"sync"

	"allowgate/internal/gate/models"
)

// MemoryNotifier is an in-process change notifier for single-instance
// deployments and tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs []chan models.Change
}

// NewMemory constructs an in-process change notifier.
func NewMemory() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Publish(_ context.Context, change models.Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs {
		select {
		case sub <- change:
		default:
			// Subscriber lagging; polling covers the gap.
		}
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	sub := make(chan models.Change, subscribeBuffer)

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		for i, s := range n.subs {
			if s == sub {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		n.mu.Unlock()
		close(sub)
	}()

	return sub, nil
}
