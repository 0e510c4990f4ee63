package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-checkout/internal/domain/payment"
)

// MockGateway answers hand-offs with a fixed redirect base.
type MockGateway struct {
	mu       sync.Mutex
	BaseURL  string
	Err      error
	Requests []payment.HandOffRequest
}

func NewMockGateway(baseURL string) *MockGateway {
	return &MockGateway{BaseURL: baseURL}
}

func (m *MockGateway) HandOff(ctx context.Context, req payment.HandOffRequest) (*payment.HandOff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &payment.HandOff{RedirectURL: m.BaseURL + "?ref=" + req.Reference}, nil
}

// LastRequest returns the most recent hand-off request.
func (m *MockGateway) LastRequest() (payment.HandOffRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return payment.HandOffRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
