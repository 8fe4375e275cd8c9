package billing

import (
	"context"
	"testing"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLedgerAuditHandlerEventTypes(t *testing.T) {
	h := NewLedgerAuditHandler(nil)
	assert.ElementsMatch(t, []string{
		billing.EventTypeStudentEnrolled,
		billing.EventTypePaymentGroupApproved,
		billing.EventTypePaymentGroupRejected,
		billing.EventTypeGatewayStatusDowngraded,
	}, h.EventTypes())
}

func TestLedgerAuditHandlerLogsApproval(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewLedgerAuditHandler(zap.New(core))

	event := billing.NewPaymentGroupApprovedEvent(
		uuid.New(), "CASH-x-1", billing.PaymentMethodCash,
		decimal.RequireFromString("1000.00"),
		billing.LedgerTotals{
			PaidAmount: decimal.RequireFromString("1000.00"),
			Balance:    decimal.RequireFromString("11000.00"),
		})

	require.NoError(t, h.Handle(context.Background(), event))

	entries := logs.FilterMessage("payment group approved").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestLedgerAuditHandlerWarnsOnDowngrade(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewLedgerAuditHandler(zap.New(core))

	event := billing.NewGatewayStatusDowngradedEvent(
		uuid.New(), "MP-777",
		billing.PaymentStatusApproved, billing.PaymentStatusRejected,
		decimal.RequireFromString("1000.00"))

	require.NoError(t, h.Handle(context.Background(), event))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}
