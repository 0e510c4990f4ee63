package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-checkout/internal/notification"
)

// MockNotifier records every message it is asked to deliver.
type MockNotifier struct {
	mu       sync.Mutex
	Messages []notification.Message
	Err      error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return m.Err
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// OfKind returns recorded messages of kind k.
func (m *MockNotifier) OfKind(k notification.Kind) []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Message
	for _, msg := range m.Messages {
		if msg.Kind == k {
			out = append(out, msg)
		}
	}
	return out
}
