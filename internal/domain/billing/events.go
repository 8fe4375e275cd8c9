package billing

import (
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types for the billing domain
const (
	EventTypeStudentEnrolled         = "billing.student.enrolled"
	EventTypePaymentGroupApproved    = "billing.payment_group.approved"
	EventTypePaymentGroupRejected    = "billing.payment_group.rejected"
	EventTypeGatewayStatusDowngraded = "billing.gateway_payment.downgraded"
)

// StudentEnrolledEvent is emitted when a student account is created
type StudentEnrolledEvent struct {
	shared.BaseDomainEvent
	DNI          string          `json:"dni"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Installments int             `json:"installments"`
}

// NewStudentEnrolledEvent creates a StudentEnrolledEvent
func NewStudentEnrolledEvent(s *Student) *StudentEnrolledEvent {
	return &StudentEnrolledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStudentEnrolled, "Student", s.ID),
		DNI:             s.DNI,
		TotalAmount:     s.TotalAmount,
		Installments:    s.Installments,
	}
}

// PaymentGroupApprovedEvent is emitted when all records sharing a
// transaction reference transition to APPROVED and the ledger is incremented
type PaymentGroupApprovedEvent struct {
	shared.BaseDomainEvent
	TransactionRef string          `json:"transaction_ref"`
	Method         PaymentMethod   `json:"method"`
	Amount         decimal.Decimal `json:"amount"`
	NewPaidAmount  decimal.Decimal `json:"new_paid_amount"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// NewPaymentGroupApprovedEvent creates a PaymentGroupApprovedEvent
func NewPaymentGroupApprovedEvent(studentID uuid.UUID, transactionRef string, method PaymentMethod, amount decimal.Decimal, totals LedgerTotals) *PaymentGroupApprovedEvent {
	return &PaymentGroupApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentGroupApproved, "Student", studentID),
		TransactionRef:  transactionRef,
		Method:          method,
		Amount:          amount,
		NewPaidAmount:   totals.PaidAmount,
		NewBalance:      totals.Balance,
	}
}

// PaymentGroupRejectedEvent is emitted when a payment group is rejected
type PaymentGroupRejectedEvent struct {
	shared.BaseDomainEvent
	TransactionRef  string `json:"transaction_ref"`
	RejectionReason string `json:"rejection_reason"`
}

// NewPaymentGroupRejectedEvent creates a PaymentGroupRejectedEvent
func NewPaymentGroupRejectedEvent(studentID uuid.UUID, transactionRef, reason string) *PaymentGroupRejectedEvent {
	return &PaymentGroupRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentGroupRejected, "Student", studentID),
		TransactionRef:  transactionRef,
		RejectionReason: reason,
	}
}

// GatewayStatusDowngradedEvent is emitted when the gateway moves an
// already-approved payment back to pending or rejected. The ledger is NOT
// reversed automatically; this event is the hook for manual reconciliation.
type GatewayStatusDowngradedEvent struct {
	shared.BaseDomainEvent
	TransactionRef string          `json:"transaction_ref"`
	FromStatus     PaymentStatus   `json:"from_status"`
	ToStatus       PaymentStatus   `json:"to_status"`
	Amount         decimal.Decimal `json:"amount"`
}

// NewGatewayStatusDowngradedEvent creates a GatewayStatusDowngradedEvent
func NewGatewayStatusDowngradedEvent(studentID uuid.UUID, transactionRef string, from, to PaymentStatus, amount decimal.Decimal) *GatewayStatusDowngradedEvent {
	return &GatewayStatusDowngradedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeGatewayStatusDowngraded, "Student", studentID),
		TransactionRef:  transactionRef,
		FromStatus:      from,
		ToStatus:        to,
		Amount:          amount,
	}
}
