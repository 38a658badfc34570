// Package payment models charging a user for an unlock. Only a mock
// gateway exists; a real provider would implement Gateway.
package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/oggyb/blinddate/internal/db"
)

// Charge is one request to take money from a user.
type Charge struct {
	UserID      string
	MatchID     string
	AmountCents int64
	Type        db.PaymentType
}

// Outcome is the gateway's answer. Status is PENDING, COMPLETED or FAILED.
type Outcome struct {
	Status    db.PaymentStatus
	Reference string
	Reason    string
}

// Gateway charges users.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (Outcome, error)
}

// MockGateway completes every charge synchronously unless told otherwise.
type MockGateway struct {
	mu     sync.Mutex
	next   []db.PaymentStatus
	status db.PaymentStatus
	calls  []Charge
}

// NewMockGateway returns a gateway that answers COMPLETED.
func NewMockGateway() *MockGateway {
	return &MockGateway{status: db.PaymentCompleted}
}

// SetDefault changes the status returned once queued outcomes run out.
func (g *MockGateway) SetDefault(status db.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}

// Enqueue makes the next charges return the given statuses in order.
func (g *MockGateway) Enqueue(statuses ...db.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = append(g.next, statuses...)
}

// Calls returns the charges seen so far.
func (g *MockGateway) Calls() []Charge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Charge(nil), g.calls...)
}

func (g *MockGateway) Charge(ctx context.Context, c Charge) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, c)
	status := g.status
	if len(g.next) > 0 {
		status = g.next[0]
		g.next = g.next[1:]
	}

	out := Outcome{Status: status, Reference: "mock_" + uuid.NewString()}
	if status == db.PaymentFailed {
		out.Reason = "card declined"
	}
	return out, nil
}
