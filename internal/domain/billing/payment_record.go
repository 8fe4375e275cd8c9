package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error codes shared by the reconciliation policy and the intake paths
const (
	ErrCodeInvalidInstallment = "INVALID_INSTALLMENT"
	ErrCodeInstallmentClaimed = "INSTALLMENT_ALREADY_CLAIMED"
	ErrCodeAmountMismatch     = "AMOUNT_MISMATCH"
	ErrCodeAlreadyReviewed    = "ALREADY_REVIEWED"
)

// PaymentMethod identifies the intake path a payment record came from
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"     // administrator-entered cash
	PaymentMethodTransfer PaymentMethod = "TRANSFER" // administrator-entered bank transfer
	PaymentMethodUpload   PaymentMethod = "UPLOAD"   // student-uploaded receipt
	PaymentMethodGateway  PaymentMethod = "GATEWAY"  // payment-gateway webhook
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodUpload, PaymentMethodGateway:
		return true
	}
	return false
}

// PaymentStatus represents the review status of a payment record
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	}
	return false
}

// IsActive returns true if the record claims its installment: a PENDING or
// APPROVED record blocks further claims on the same installment number.
func (s PaymentStatus) IsActive() bool {
	return s == PaymentStatusPending || s == PaymentStatusApproved
}

// canTransition is the single transition table for payment records.
// Administrator review only moves PENDING records. Gateway corrections can
// leave any terminal state: APPROVED can be downgraded to PENDING or REJECTED
// on a chargeback, and REJECTED can come back as PENDING or APPROVED when the
// gateway settles a payment it first declined. An administrator can never
// reopen a terminal record.
func (s PaymentStatus) canTransition(target PaymentStatus, viaGateway bool) bool {
	if s == target {
		return false
	}
	if s == PaymentStatusPending {
		return target == PaymentStatusApproved || target == PaymentStatusRejected
	}
	// APPROVED and REJECTED are terminal for the review path
	return viaGateway
}

// PaymentRecord represents one claim against one installment. Records created
// from a single submission share a TransactionRef and are reviewed as a unit.
type PaymentRecord struct {
	shared.BaseAggregateRoot
	StudentID         uuid.UUID       `json:"student_id"`
	InstallmentNumber *int            `json:"installment_number"` // nil only for legacy ungrouped rows
	Amount            decimal.Decimal `json:"amount"`             // this record's share, not the submission total
	Method            PaymentMethod   `json:"method"`
	Status            PaymentStatus   `json:"status"`
	TransactionRef    string          `json:"transaction_ref"`
	ReceiptURL        *string         `json:"receipt_url,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	RejectionReason   *string         `json:"rejection_reason,omitempty"`
	GatewayPaymentID  *string         `json:"gateway_payment_id,omitempty"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	PaymentDate       time.Time       `json:"payment_date"`
	ReviewedBy        *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
}

func newPaymentRecord(
	studentID uuid.UUID,
	installmentNumber int,
	amount decimal.Decimal,
	method PaymentMethod,
	transactionRef string,
	status PaymentStatus,
) (*PaymentRecord, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	if installmentNumber < 1 {
		return nil, shared.NewDomainError(ErrCodeInvalidInstallment, "Installment number must be at least 1")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_METHOD", "Payment method is not valid")
	}
	if strings.TrimSpace(transactionRef) == "" {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_REF", "Transaction reference cannot be empty")
	}

	now := time.Now()
	n := installmentNumber
	return &PaymentRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		StudentID:         studentID,
		InstallmentNumber: &n,
		Amount:            amount,
		Method:            method,
		Status:            status,
		TransactionRef:    transactionRef,
		SubmittedAt:       now,
		PaymentDate:       now,
	}, nil
}

// NewPendingPaymentRecord creates a record awaiting administrator review
// (upload path, and webhook payments the gateway reports as pending).
func NewPendingPaymentRecord(
	studentID uuid.UUID,
	installmentNumber int,
	amount decimal.Decimal,
	method PaymentMethod,
	transactionRef string,
) (*PaymentRecord, error) {
	return newPaymentRecord(studentID, installmentNumber, amount, method, transactionRef, PaymentStatusPending)
}

// NewApprovedPaymentRecord creates a record that is approved at submission
// time: cash and transfer intakes, where the administrator has already
// verified the money, and gateway payments reported as approved.
func NewApprovedPaymentRecord(
	studentID uuid.UUID,
	installmentNumber int,
	amount decimal.Decimal,
	method PaymentMethod,
	transactionRef string,
	reviewedBy uuid.UUID,
) (*PaymentRecord, error) {
	p, err := newPaymentRecord(studentID, installmentNumber, amount, method, transactionRef, PaymentStatusApproved)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if reviewedBy != uuid.Nil {
		p.ReviewedBy = &reviewedBy
	}
	p.ReviewedAt = &now
	return p, nil
}

// Approve transitions a PENDING record to APPROVED via administrator review
func (p *PaymentRecord) Approve(reviewer uuid.UUID) error {
	if !p.Status.canTransition(PaymentStatusApproved, false) {
		return shared.NewDomainError(ErrCodeAlreadyReviewed,
			fmt.Sprintf("Payment is %s, only pending payments can be approved", p.Status))
	}
	now := time.Now()
	p.Status = PaymentStatusApproved
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// Reject transitions a PENDING record to REJECTED. A reason is mandatory;
// rejected payments never count as paid.
func (p *PaymentRecord) Reject(reviewer uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("REJECTION_REASON_REQUIRED", "Rejection reason is required")
	}
	if !p.Status.canTransition(PaymentStatusRejected, false) {
		return shared.NewDomainError(ErrCodeAlreadyReviewed,
			fmt.Sprintf("Payment is %s, only pending payments can be rejected", p.Status))
	}
	now := time.Now()
	p.Status = PaymentStatusRejected
	p.RejectionReason = &reason
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// ApplyGatewayStatus follows a gateway correction for a gateway-originated
// record. Unlike administrator review this may leave APPROVED or REJECTED,
// because the gateway owns the truth about its own transactions.
func (p *PaymentRecord) ApplyGatewayStatus(target PaymentStatus) error {
	if p.Method != PaymentMethodGateway {
		return shared.NewDomainError("INVALID_METHOD", "Gateway status updates only apply to gateway payments")
	}
	if !target.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Target status is not valid")
	}
	if p.Status == target {
		return nil
	}
	if !p.Status.canTransition(target, true) {
		return shared.NewDomainError(ErrCodeAlreadyReviewed,
			fmt.Sprintf("Cannot move gateway payment from %s to %s", p.Status, target))
	}
	now := time.Now()
	p.Status = target
	p.ReviewedAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// IsActive returns true if this record claims its installment number
func (p *PaymentRecord) IsActive() bool {
	return p.Status.IsActive()
}

// WithReceiptURL attaches the stored receipt file URL
func (p *PaymentRecord) WithReceiptURL(url string) *PaymentRecord {
	p.ReceiptURL = &url
	return p
}

// WithNotes attaches free-text notes
func (p *PaymentRecord) WithNotes(notes string) *PaymentRecord {
	p.Notes = notes
	return p
}

// WithGatewayPaymentID attaches the gateway's payment identifier
func (p *PaymentRecord) WithGatewayPaymentID(id string) *PaymentRecord {
	p.GatewayPaymentID = &id
	return p
}

// WithPaymentDate overrides the payment date (e.g. the transfer date the
// administrator read off the bank statement)
func (p *PaymentRecord) WithPaymentDate(d time.Time) *PaymentRecord {
	p.PaymentDate = d
	return p
}

// Transaction reference formats, one per intake path. All records created
// from a single submission share one reference and are reviewed as a unit.

// CashTransactionRef builds the grouping key for a cash submission
func CashTransactionRef(studentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("CASH-%s-%d", studentID, at.UnixMilli())
}

// TransferTransactionRef builds the grouping key for a transfer submission
func TransferTransactionRef(studentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("TRANSFER-%s-%d", studentID, at.UnixMilli())
}

// UploadTransactionRef builds the grouping key for a receipt upload
func UploadTransactionRef(studentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s-%d", studentID, at.UnixMilli())
}

// GatewayTransactionRef builds the grouping key for webhook-originated
// records; keyed on the gateway payment id so redeliveries find the group.
func GatewayTransactionRef(gatewayPaymentID string) string {
	return fmt.Sprintf("MP-%s", gatewayPaymentID)
}
