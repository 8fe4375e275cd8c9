package billing

import (
	"context"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LedgerAuditHandler writes an audit trail of every ledger-relevant event.
// Gateway downgrades are logged at warn level: the ledger was not reversed
// and someone has to look at the payment.
type LedgerAuditHandler struct {
	logger *zap.Logger
}

// NewLedgerAuditHandler creates a new LedgerAuditHandler
func NewLedgerAuditHandler(logger *zap.Logger) *LedgerAuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerAuditHandler{logger: logger.Named("ledger_audit")}
}

// EventTypes lists the events this handler subscribes to
func (h *LedgerAuditHandler) EventTypes() []string {
	return []string{
		billing.EventTypeStudentEnrolled,
		billing.EventTypePaymentGroupApproved,
		billing.EventTypePaymentGroupRejected,
		billing.EventTypeGatewayStatusDowngraded,
	}
}

// Handle implements event handling for audit logging
func (h *LedgerAuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.StudentEnrolledEvent:
		h.logger.Info("student enrolled",
			zap.String("student_id", e.AggregateID().String()),
			zap.String("dni", e.DNI),
			zap.String("total_amount", e.TotalAmount.String()),
			zap.Int("installments", e.Installments))

	case *billing.PaymentGroupApprovedEvent:
		h.logger.Info("payment group approved",
			zap.String("student_id", e.AggregateID().String()),
			zap.String("transaction_ref", e.TransactionRef),
			zap.String("method", string(e.Method)),
			zap.String("amount", e.Amount.String()),
			zap.String("new_balance", e.NewBalance.String()))

	case *billing.PaymentGroupRejectedEvent:
		h.logger.Info("payment group rejected",
			zap.String("student_id", e.AggregateID().String()),
			zap.String("transaction_ref", e.TransactionRef),
			zap.String("reason", e.RejectionReason))

	case *billing.GatewayStatusDowngradedEvent:
		h.logger.Warn("gateway payment downgraded after approval, ledger NOT reversed",
			zap.String("student_id", e.AggregateID().String()),
			zap.String("transaction_ref", e.TransactionRef),
			zap.String("from", string(e.FromStatus)),
			zap.String("to", string(e.ToStatus)),
			zap.String("amount", e.Amount.String()))

	default:
		h.logger.Debug("unhandled event type", zap.String("event_type", event.EventType()))
	}
	return nil
}
