package billing

import (
	"context"
	"fmt"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentReviewService handles administrator review of pending payments.
// Approval is the only operation that moves money onto the ledger, and the
// record status change and the ledger increment always commit together.
type PaymentReviewService struct {
	txManager      billing.TransactionManager
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewPaymentReviewService creates a new PaymentReviewService
func NewPaymentReviewService(
	txManager billing.TransactionManager,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *PaymentReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentReviewService{
		txManager:      txManager,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// ReviewRequest carries the review decision for a record or group
type ReviewRequest struct {
	Approve bool
	Reason  string // required when rejecting
}

// ReviewResult is the outcome of a review decision
type ReviewResult struct {
	TransactionRef string                   `json:"transaction_ref"`
	Status         billing.PaymentStatus    `json:"status"`
	Records        []*billing.PaymentRecord `json:"records"`
	Totals         *billing.LedgerTotals    `json:"totals,omitempty"`
}

// Review applies a decision to a single payment record. When the record
// belongs to a multi-record group the caller almost always wants ReviewGroup;
// single review exists for legacy ungrouped rows and targeted corrections.
func (s *PaymentReviewService) Review(ctx context.Context, actor Actor, paymentID uuid.UUID, req ReviewRequest) (*ReviewResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_review", "review")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *ReviewResult
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, repos billing.RepositorySet) error {
		record, err := repos.Payments.FindByID(txCtx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if record == nil {
			return shared.ErrNotFound
		}

		r, err := s.decide(txCtx, actor, repos, []*billing.PaymentRecord{record}, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.afterReview(ctx, result, req)
	return result, nil
}

// ReviewGroup applies one decision to every record sharing a transaction
// reference. The group is all-or-nothing: if any record cannot transition,
// nothing changes and nothing is added to the ledger.
func (s *PaymentReviewService) ReviewGroup(ctx context.Context, actor Actor, transactionRef string, req ReviewRequest) (*ReviewResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_review", "review_group")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrTransactionRef, transactionRef)

	if err := requireAdmin(actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *ReviewResult
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, repos billing.RepositorySet) error {
		records, err := repos.Payments.FindByTransactionRef(txCtx, transactionRef)
		if err != nil {
			return fmt.Errorf("failed to load payment group: %w", err)
		}
		if len(records) == 0 {
			return shared.ErrNotFound
		}

		r, err := s.decide(txCtx, actor, repos, records, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.afterReview(ctx, result, req)
	return result, nil
}

// decide transitions the given records and, on approval, applies the single
// atomic ledger increment for the group total. Runs inside a transaction.
func (s *PaymentReviewService) decide(ctx context.Context, actor Actor, repos billing.RepositorySet, records []*billing.PaymentRecord, req ReviewRequest) (*ReviewResult, error) {
	studentID := records[0].StudentID
	total := decimal.Zero
	for _, record := range records {
		if record.StudentID != studentID {
			return nil, shared.NewDomainError("INVALID_GROUP", "Payment group spans multiple students")
		}
		total = total.Add(record.Amount)
	}

	for _, record := range records {
		var err error
		if req.Approve {
			err = record.Approve(actor.ID)
		} else {
			err = record.Reject(actor.ID, req.Reason)
		}
		if err != nil {
			return nil, err
		}
		if err := repos.Payments.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save payment: %w", err)
		}
	}

	result := &ReviewResult{
		TransactionRef: records[0].TransactionRef,
		Records:        records,
		Status:         records[0].Status,
	}

	if req.Approve {
		totals, err := repos.Students.IncrementPaid(ctx, studentID, total)
		if err != nil {
			return nil, fmt.Errorf("failed to update ledger: %w", err)
		}
		result.Totals = totals
	}

	return result, nil
}

func (s *PaymentReviewService) afterReview(ctx context.Context, result *ReviewResult, req ReviewRequest) {
	studentID := result.Records[0].StudentID
	total := decimal.Zero
	for _, record := range result.Records {
		total = total.Add(record.Amount)
	}

	if req.Approve {
		s.logger.Info("Payment group approved",
			zap.String("transaction_ref", result.TransactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("amount", total.String()),
			zap.String("new_balance", result.Totals.Balance.String()))
		s.publish(ctx, billing.NewPaymentGroupApprovedEvent(studentID, result.TransactionRef, result.Records[0].Method, total, *result.Totals))
	} else {
		s.logger.Info("Payment group rejected",
			zap.String("transaction_ref", result.TransactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("reason", req.Reason))
		s.publish(ctx, billing.NewPaymentGroupRejectedEvent(studentID, result.TransactionRef, req.Reason))
	}
}

func (s *PaymentReviewService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}
