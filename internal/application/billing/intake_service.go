package billing

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiptStorage stores uploaded receipt files. The upload intake stores the
// file before inserting payment records and removes it again if the insert
// fails, so storage never holds receipts without a matching record group.
type ReceiptStorage interface {
	Store(ctx context.Context, studentID uuid.UUID, filename string, content io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, url string) error
}

// PaymentIntakeService handles the three manual intake paths: cash and
// transfer entered by an administrator, and receipt uploads by students.
type PaymentIntakeService struct {
	txManager      billing.TransactionManager
	studentRepo    billing.StudentRepository
	paymentRepo    billing.PaymentRecordRepository
	receiptStorage ReceiptStorage
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewPaymentIntakeService creates a new PaymentIntakeService
func NewPaymentIntakeService(
	txManager billing.TransactionManager,
	studentRepo billing.StudentRepository,
	paymentRepo billing.PaymentRecordRepository,
	receiptStorage ReceiptStorage,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *PaymentIntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentIntakeService{
		txManager:      txManager,
		studentRepo:    studentRepo,
		paymentRepo:    paymentRepo,
		receiptStorage: receiptStorage,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// SubmitCashRequest represents an administrator-entered cash payment
type SubmitCashRequest struct {
	StudentID    uuid.UUID
	Installments []int
	Amount       decimal.Decimal
	Notes        string
	PaymentDate  *time.Time
}

// SubmitTransferRequest represents an administrator-entered bank transfer.
// Transfers are keyed on DNI: the administrator reads it off the bank
// statement reference, there is no student id on a transfer slip.
type SubmitTransferRequest struct {
	StudentDNI   string
	Installments []int
	Amount       decimal.Decimal
	Notes        string
	PaymentDate  *time.Time
}

// SubmitUploadRequest represents a student uploading a payment receipt
type SubmitUploadRequest struct {
	StudentID    uuid.UUID
	Installments []int
	Amount       decimal.Decimal
	Notes        string
	Filename     string
	ContentType  string
	Size         int64
	Content      io.Reader
}

// PaymentGroupResult is the outcome of one intake submission: the records
// created under a shared transaction reference, plus the new ledger totals
// when the submission was applied immediately (cash and transfer).
type PaymentGroupResult struct {
	TransactionRef string                   `json:"transaction_ref"`
	Records        []*billing.PaymentRecord `json:"records"`
	Totals         *billing.LedgerTotals    `json:"totals,omitempty"`
}

// SubmitCash records a cash payment. Cash is approved at submission time and
// the ledger increment happens in the same transaction as the record inserts.
// Notes are mandatory: they are the only audit trail of who handed over what
// at the front desk.
func (s *PaymentIntakeService) SubmitCash(ctx context.Context, actor Actor, req SubmitCashRequest) (*PaymentGroupResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_intake", "submit_cash")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if strings.TrimSpace(req.Notes) == "" {
		err := shared.NewDomainError("NOTES_REQUIRED", "Notes are required for cash payments")
		telemetry.RecordError(span, err)
		return nil, err
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return s.submitApproved(ctx, actor, billing.PaymentMethodCash, student, req.Installments, req.Amount, req.Notes, req.PaymentDate, false)
}

// SubmitTransfer records a bank transfer. Transfers additionally enforce the
// exact-amount rule: the submitted amount must match the nominal price of the
// selected installments within one cent, because transfers are irreversible
// and a mismatch means the administrator picked the wrong installments.
func (s *PaymentIntakeService) SubmitTransfer(ctx context.Context, actor Actor, req SubmitTransferRequest) (*PaymentGroupResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_intake", "submit_transfer")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	student, err := s.loadStudentByDNI(ctx, req.StudentDNI)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return s.submitApproved(ctx, actor, billing.PaymentMethodTransfer, student, req.Installments, req.Amount, req.Notes, req.PaymentDate, true)
}

func (s *PaymentIntakeService) submitApproved(
	ctx context.Context,
	actor Actor,
	method billing.PaymentMethod,
	student *billing.Student,
	installments []int,
	amount decimal.Decimal,
	notes string,
	paymentDate *time.Time,
	exactAmount bool,
) (*PaymentGroupResult, error) {
	studentID := student.ID
	span := telemetry.SpanFromContext(ctx)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrStudentID, studentID.String(),
		telemetry.SpanAttrPaymentMethod, string(method),
		telemetry.SpanAttrAmount, amount.String(),
	)

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	if err := s.validateSelection(ctx, student, installments); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if exactAmount {
		if err := billing.ValidateTransferAmount(student, len(installments), amount); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	now := time.Now()
	var transactionRef string
	switch method {
	case billing.PaymentMethodCash:
		transactionRef = billing.CashTransactionRef(studentID, now)
	case billing.PaymentMethodTransfer:
		transactionRef = billing.TransferTransactionRef(studentID, now)
	default:
		return nil, shared.NewDomainError("INVALID_METHOD", "Unsupported intake method")
	}

	shares := billing.SplitAmount(amount, len(installments))
	records := make([]*billing.PaymentRecord, 0, len(installments))
	for i, n := range installments {
		record, err := billing.NewApprovedPaymentRecord(studentID, n, shares[i], method, transactionRef, actor.ID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if notes != "" {
			record.WithNotes(notes)
		}
		if paymentDate != nil {
			record.WithPaymentDate(*paymentDate)
		}
		records = append(records, record)
	}

	// Record inserts and the ledger increment commit or roll back together,
	// so a duplicate-claim race can never leave a half-applied submission.
	var totals *billing.LedgerTotals
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, repos billing.RepositorySet) error {
		if err := repos.Payments.CreateAll(txCtx, records); err != nil {
			return err
		}
		t, err := repos.Students.IncrementPaid(txCtx, studentID, amount)
		if err != nil {
			return err
		}
		totals = t
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Payment group recorded",
		zap.String("transaction_ref", transactionRef),
		zap.String("method", string(method)),
		zap.String("student_id", studentID.String()),
		zap.Ints("installments", installments),
		zap.String("amount", amount.String()),
		zap.String("new_balance", totals.Balance.String()))

	s.publish(ctx, billing.NewPaymentGroupApprovedEvent(studentID, transactionRef, method, amount, *totals))

	return &PaymentGroupResult{
		TransactionRef: transactionRef,
		Records:        records,
		Totals:         totals,
	}, nil
}

// SubmitUpload stores the receipt file and creates a PENDING record group.
// The ledger is untouched until an administrator approves the group.
func (s *PaymentIntakeService) SubmitUpload(ctx context.Context, actor Actor, req SubmitUploadRequest) (*PaymentGroupResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_intake", "submit_upload")
	defer span.End()

	if !actor.CanActFor(req.StudentID) {
		telemetry.RecordError(span, shared.ErrForbidden)
		return nil, shared.ErrForbidden
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrStudentID, req.StudentID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if req.Content == nil || req.Filename == "" {
		return nil, shared.NewDomainError("INVALID_RECEIPT", "Receipt file is required")
	}
	if err := validateReceiptFile(req.Filename, req.ContentType, req.Size); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.validateSelection(ctx, student, req.Installments); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	receiptURL, err := s.receiptStorage.Store(ctx, req.StudentID, req.Filename, req.Content, req.Size, req.ContentType)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	now := time.Now()
	transactionRef := billing.UploadTransactionRef(req.StudentID, now)
	shares := billing.SplitAmount(req.Amount, len(req.Installments))
	records := make([]*billing.PaymentRecord, 0, len(req.Installments))
	for i, n := range req.Installments {
		record, err := billing.NewPendingPaymentRecord(req.StudentID, n, shares[i], billing.PaymentMethodUpload, transactionRef)
		if err != nil {
			s.removeReceipt(ctx, receiptURL)
			telemetry.RecordError(span, err)
			return nil, err
		}
		record.WithReceiptURL(receiptURL)
		if req.Notes != "" {
			record.WithNotes(req.Notes)
		}
		records = append(records, record)
	}

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, repos billing.RepositorySet) error {
		return repos.Payments.CreateAll(txCtx, records)
	})
	if err != nil {
		s.removeReceipt(ctx, receiptURL)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Receipt uploaded, payment group pending review",
		zap.String("transaction_ref", transactionRef),
		zap.String("student_id", req.StudentID.String()),
		zap.Ints("installments", req.Installments),
		zap.String("receipt_url", receiptURL))

	return &PaymentGroupResult{
		TransactionRef: transactionRef,
		Records:        records,
	}, nil
}

func (s *PaymentIntakeService) loadStudent(ctx context.Context, id uuid.UUID) (*billing.Student, error) {
	student, err := s.studentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, shared.NewDomainError("STUDENT_NOT_FOUND", "Student not found")
	}
	return student, nil
}

func (s *PaymentIntakeService) loadStudentByDNI(ctx context.Context, dni string) (*billing.Student, error) {
	dni = strings.TrimSpace(dni)
	if dni == "" {
		return nil, shared.NewDomainError("INVALID_DNI", "DNI cannot be empty")
	}
	student, err := s.studentRepo.FindByDNI(ctx, dni)
	if err != nil {
		return nil, fmt.Errorf("failed to load student by dni: %w", err)
	}
	if student == nil {
		return nil, shared.NewDomainError("STUDENT_NOT_FOUND", "No student with this DNI")
	}
	return student, nil
}

// Receipt upload limits. The HTTP layer also caps the body, but the rule
// belongs to the intake itself: a receipt is a PDF or a photo, nothing else.
const maxReceiptSize = 10 << 20

var allowedReceiptContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
}

var allowedReceiptExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

func validateReceiptFile(filename, contentType string, size int64) error {
	if size > maxReceiptSize {
		return shared.NewDomainError("RECEIPT_TOO_LARGE", "Receipt file exceeds the 10 MB limit")
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if allowedReceiptContentTypes[ct] {
		return nil
	}
	// Some clients send a generic content type; the extension decides then
	if ct == "" || ct == "application/octet-stream" {
		if allowedReceiptExtensions[strings.ToLower(filepath.Ext(filename))] {
			return nil
		}
	}
	return shared.NewDomainError("INVALID_RECEIPT_TYPE", "Receipt must be a PDF, JPEG, PNG or WEBP file")
}

// validateSelection runs the in-memory selection checks against the claims
// currently visible. The partial unique index remains the authority when two
// submissions race; CreateAll translates its violation into the same error.
func (s *PaymentIntakeService) validateSelection(ctx context.Context, student *billing.Student, installments []int) error {
	active, err := s.paymentRepo.FindActiveByInstallments(ctx, student.ID, installments)
	if err != nil {
		return fmt.Errorf("failed to check claimed installments: %w", err)
	}
	claimed := make([]int, 0, len(active))
	for _, r := range active {
		if r.InstallmentNumber != nil {
			claimed = append(claimed, *r.InstallmentNumber)
		}
	}
	return billing.ValidateSelection(student, installments, claimed)
}

func (s *PaymentIntakeService) removeReceipt(ctx context.Context, url string) {
	if err := s.receiptStorage.Remove(ctx, url); err != nil {
		s.logger.Warn("Failed to remove orphaned receipt", zap.String("url", url), zap.Error(err))
	}
}

func (s *PaymentIntakeService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}
