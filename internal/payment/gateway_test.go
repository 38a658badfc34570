package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/db"
)

func TestMockGateway(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway()

	out, err := g.Charge(ctx, Charge{UserID: "u", AmountCents: 2990})
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCompleted, out.Status)
	assert.NotEmpty(t, out.Reference)

	g.Enqueue(db.PaymentFailed, db.PaymentPending)
	out, _ = g.Charge(ctx, Charge{UserID: "u"})
	assert.Equal(t, db.PaymentFailed, out.Status)
	assert.NotEmpty(t, out.Reason)
	out, _ = g.Charge(ctx, Charge{UserID: "u"})
	assert.Equal(t, db.PaymentPending, out.Status)

	g.SetDefault(db.PaymentPending)
	out, _ = g.Charge(ctx, Charge{UserID: "u"})
	assert.Equal(t, db.PaymentPending, out.Status)

	assert.Len(t, g.Calls(), 4)
	assert.Equal(t, int64(2990), g.Calls()[0].AmountCents)
}

func TestMockGateway_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockGateway().Charge(ctx, Charge{})
	assert.ErrorIs(t, err, context.Canceled)
}
