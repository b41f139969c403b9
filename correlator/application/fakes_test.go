package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"click-reply-correlator/correlator/domain"
)

// MockLookup is a mock implementation of domain.LookupClient
type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) ListEmails(ctx context.Context, req domain.ResolveRequest) ([]domain.Candidate, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

func (m *MockLookup) GetEmail(ctx context.Context, id, account string) (domain.Candidate, error) {
	args := m.Called(ctx, id, account)
	return args.Get(0).(domain.Candidate), args.Error(1)
}

// MockSender is a mock implementation of domain.ReplySender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendReply(ctx context.Context, r domain.Reply) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type countingLimiter struct {
	calls atomic.Int64
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.calls.Add(1)
	return l.err
}

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
