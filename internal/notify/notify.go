// Package notify delivers engine notifications (expiry warnings, mission
// announcements, block events) to a configured channel.
//
// Delivery failures are a degradation, not a fault: callers log and move on.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stepfence/StepFence/internal/models"
)

// Notifier is the notification-emission interface consumed by the monitor
// and the mission manager.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// SlogNotifier writes notifications to the structured log. It is the default
// channel and always available.
type SlogNotifier struct{}

// NewSlogNotifier creates a log-backed notifier.
func NewSlogNotifier() *SlogNotifier {
	return &SlogNotifier{}
}

func (s *SlogNotifier) Send(ctx context.Context, n models.Notification) error {
	if n.Priority == models.PriorityHigh {
		slog.Warn("notification", "title", n.Title, "body", n.Body, "priority", n.Priority)
	} else {
		slog.Info("notification", "title", n.Title, "body", n.Body, "priority", n.Priority)
	}
	return nil
}

// MockNotifier records notifications for tests.
type MockNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

// NewMockNotifier creates an empty MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the notifications recorded so far.
func (m *MockNotifier) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}
