package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewayPayment is a payment as reported by the payment gateway
type GatewayPayment struct {
	ID                string
	Status            string
	TransactionAmount decimal.Decimal
	ExternalReference string
	DateApproved      *time.Time
}

// GatewayClient fetches payment details from the payment gateway. The webhook
// notification only carries a payment id; the truth is always re-fetched.
type GatewayClient interface {
	GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// NotificationRequest is the payload of a gateway webhook notification
type NotificationRequest struct {
	Type   string // only "payment" notifications are processed
	DataID string // the gateway's payment id
}

// externalReference is the checkout metadata the frontend embeds in the
// gateway preference, identifying what the payer intended to pay.
type externalReference struct {
	UserID       string          `json:"userId"`
	Installments []int           `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
}

// GatewayWebhookService processes payment-gateway webhook notifications.
// Notifications may be duplicated, reordered or delayed by the gateway, so
// processing is idempotent and every decision is re-derived from a fresh
// fetch of the payment.
type GatewayWebhookService struct {
	txManager      billing.TransactionManager
	studentRepo    billing.StudentRepository
	paymentRepo    billing.PaymentRecordRepository
	gateway        GatewayClient
	idempotency    shared.IdempotencyStore
	idempotencyCfg shared.IdempotencyConfig
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewGatewayWebhookService creates a new GatewayWebhookService
func NewGatewayWebhookService(
	txManager billing.TransactionManager,
	studentRepo billing.StudentRepository,
	paymentRepo billing.PaymentRecordRepository,
	gateway GatewayClient,
	idempotency shared.IdempotencyStore,
	idempotencyCfg shared.IdempotencyConfig,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *GatewayWebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayWebhookService{
		txManager:      txManager,
		studentRepo:    studentRepo,
		paymentRepo:    paymentRepo,
		gateway:        gateway,
		idempotency:    idempotency,
		idempotencyCfg: idempotencyCfg,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// mapGatewayStatus translates the gateway's payment status vocabulary into a
// record status. Unknown statuses return false and the notification is
// acknowledged without effect.
func mapGatewayStatus(status string) (billing.PaymentStatus, bool) {
	switch status {
	case "approved":
		return billing.PaymentStatusApproved, true
	case "pending", "in_process", "authorized":
		return billing.PaymentStatusPending, true
	case "rejected", "cancelled", "refunded", "charged_back":
		return billing.PaymentStatusRejected, true
	}
	return "", false
}

// ProcessNotification handles one webhook delivery. The returned error is
// transient-only (gateway or database unavailable): the HTTP layer maps it to
// a 5xx so the gateway retries. Business-level problems are logged, consumed
// and acknowledged, because retrying them can never succeed.
func (s *GatewayWebhookService) ProcessNotification(ctx context.Context, req NotificationRequest) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "gateway_webhook", "process_notification")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrGatewayID, req.DataID)

	if req.Type != "payment" || req.DataID == "" {
		s.logger.Debug("Ignoring non-payment notification", zap.String("type", req.Type))
		return nil
	}

	payment, err := s.gateway.GetPayment(ctx, req.DataID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to fetch payment %s: %w", req.DataID, err)
	}

	target, ok := mapGatewayStatus(payment.Status)
	if !ok {
		s.logger.Info("Ignoring payment with unmapped gateway status",
			zap.String("gateway_payment_id", payment.ID),
			zap.String("status", payment.Status))
		return nil
	}

	// Keyed on (payment id, status): a redelivery of the same status is a
	// no-op, while a genuine status change processes normally.
	idempotencyKey := fmt.Sprintf("gateway:payment:%s:%s", payment.ID, payment.Status)
	if s.idempotencyCfg.Enabled && s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, idempotencyKey, s.idempotencyCfg.TTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("idempotency check failed: %w", err)
		}
		if !fresh {
			s.logger.Info("Notification already processed",
				zap.String("idempotency_key", idempotencyKey))
			return nil
		}
	}

	if err := s.applyPayment(ctx, payment, target); err != nil {
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			// A malformed reference or a claimed installment will not heal on
			// retry; acknowledge and leave the marker in place.
			s.logger.Error("Gateway payment could not be reconciled",
				zap.String("gateway_payment_id", payment.ID),
				zap.String("code", domainErr.Code),
				zap.Error(err))
			return nil
		}

		if s.idempotencyCfg.Enabled && s.idempotency != nil {
			if unmarkErr := s.idempotency.Unmark(ctx, idempotencyKey); unmarkErr != nil {
				s.logger.Warn("Failed to unmark notification for retry",
					zap.String("idempotency_key", idempotencyKey),
					zap.Error(unmarkErr))
			}
		}
		telemetry.RecordError(span, err)
		return err
	}

	return nil
}

func (s *GatewayWebhookService) applyPayment(ctx context.Context, payment *GatewayPayment, target billing.PaymentStatus) error {
	transactionRef := billing.GatewayTransactionRef(payment.ID)

	return s.txManager.InTransaction(ctx, func(txCtx context.Context, repos billing.RepositorySet) error {
		existing, err := repos.Payments.FindByTransactionRef(txCtx, transactionRef)
		if err != nil {
			return fmt.Errorf("failed to load payment group: %w", err)
		}
		if len(existing) > 0 {
			return s.updateGroup(txCtx, repos, payment, existing, target)
		}
		return s.createGroup(txCtx, repos, payment, target)
	})
}

// createGroup materializes a first-seen gateway payment as a record group
func (s *GatewayWebhookService) createGroup(ctx context.Context, repos billing.RepositorySet, payment *GatewayPayment, target billing.PaymentStatus) error {
	ref, err := parseExternalReference(payment.ExternalReference)
	if err != nil {
		return err
	}

	studentID, err := uuid.Parse(ref.UserID)
	if err != nil {
		return shared.NewDomainError("INVALID_EXTERNAL_REFERENCE",
			fmt.Sprintf("External reference userId %q is not a valid id", ref.UserID))
	}

	student, err := repos.Students.FindByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return shared.NewDomainError("STUDENT_NOT_FOUND", "Student referenced by gateway payment not found")
	}

	// Rejected payments never claim installments, so only active targets go
	// through selection validation against current claims.
	if target.IsActive() {
		active, err := repos.Payments.FindActiveByInstallments(ctx, studentID, ref.Installments)
		if err != nil {
			return fmt.Errorf("failed to check claimed installments: %w", err)
		}
		claimed := make([]int, 0, len(active))
		for _, r := range active {
			if r.InstallmentNumber != nil {
				claimed = append(claimed, *r.InstallmentNumber)
			}
		}
		if err := billing.ValidateSelection(student, ref.Installments, claimed); err != nil {
			return err
		}
	}

	amount := payment.TransactionAmount
	if amount.LessThanOrEqual(decimal.Zero) {
		amount = ref.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Gateway payment amount must be positive")
	}

	transactionRef := billing.GatewayTransactionRef(payment.ID)
	shares := billing.SplitAmount(amount, len(ref.Installments))
	records := make([]*billing.PaymentRecord, 0, len(ref.Installments))
	for i, n := range ref.Installments {
		var record *billing.PaymentRecord
		if target == billing.PaymentStatusApproved {
			record, err = billing.NewApprovedPaymentRecord(studentID, n, shares[i], billing.PaymentMethodGateway, transactionRef, uuid.Nil)
		} else {
			record, err = billing.NewPendingPaymentRecord(studentID, n, shares[i], billing.PaymentMethodGateway, transactionRef)
			if err == nil && target == billing.PaymentStatusRejected {
				err = record.ApplyGatewayStatus(billing.PaymentStatusRejected)
			}
		}
		if err != nil {
			return err
		}
		record.WithGatewayPaymentID(payment.ID)
		if payment.DateApproved != nil {
			record.WithPaymentDate(*payment.DateApproved)
		}
		records = append(records, record)
	}

	if err := repos.Payments.CreateAll(ctx, records); err != nil {
		return err
	}

	if target == billing.PaymentStatusApproved {
		totals, err := repos.Students.IncrementPaid(ctx, studentID, amount)
		if err != nil {
			return fmt.Errorf("failed to update ledger: %w", err)
		}
		s.logger.Info("Gateway payment approved",
			zap.String("transaction_ref", transactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("amount", amount.String()),
			zap.String("new_balance", totals.Balance.String()))
		s.publish(ctx, billing.NewPaymentGroupApprovedEvent(studentID, transactionRef, billing.PaymentMethodGateway, amount, *totals))
	} else {
		s.logger.Info("Gateway payment recorded",
			zap.String("transaction_ref", transactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("status", string(target)))
	}

	return nil
}

// updateGroup follows a gateway status change on an existing record group.
// The ledger is incremented exactly once, on the transition into APPROVED.
// A downgrade away from APPROVED never reverses the ledger automatically:
// the money question (refund? chargeback?) needs a human, so the service
// emits an event and keeps the totals as they are.
func (s *GatewayWebhookService) updateGroup(ctx context.Context, repos billing.RepositorySet, payment *GatewayPayment, records []*billing.PaymentRecord, target billing.PaymentStatus) error {
	prior := records[0].Status
	if prior == target {
		return nil
	}

	studentID := records[0].StudentID
	transactionRef := records[0].TransactionRef
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.Amount)
	}

	for _, record := range records {
		if err := record.ApplyGatewayStatus(target); err != nil {
			return err
		}
		if err := repos.Payments.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
	}

	switch {
	case target == billing.PaymentStatusApproved:
		totals, err := repos.Students.IncrementPaid(ctx, studentID, total)
		if err != nil {
			return fmt.Errorf("failed to update ledger: %w", err)
		}
		s.logger.Info("Gateway payment approved",
			zap.String("transaction_ref", transactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("amount", total.String()),
			zap.String("new_balance", totals.Balance.String()))
		s.publish(ctx, billing.NewPaymentGroupApprovedEvent(studentID, transactionRef, billing.PaymentMethodGateway, total, *totals))

	case prior == billing.PaymentStatusApproved:
		s.logger.Warn("Gateway downgraded an approved payment, ledger left untouched",
			zap.String("transaction_ref", transactionRef),
			zap.String("student_id", studentID.String()),
			zap.String("from", string(prior)),
			zap.String("to", string(target)),
			zap.String("amount", total.String()))
		s.publish(ctx, billing.NewGatewayStatusDowngradedEvent(studentID, transactionRef, prior, target, total))

	default:
		s.logger.Info("Gateway payment status updated",
			zap.String("transaction_ref", transactionRef),
			zap.String("from", string(prior)),
			zap.String("to", string(target)))
	}

	return nil
}

func parseExternalReference(raw string) (*externalReference, error) {
	if raw == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_REFERENCE", "Gateway payment carries no external reference")
	}
	var ref externalReference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_REFERENCE",
			fmt.Sprintf("External reference is not valid JSON: %v", err))
	}
	if ref.UserID == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_REFERENCE", "External reference is missing userId")
	}
	if len(ref.Installments) == 0 {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_REFERENCE", "External reference names no installments")
	}
	return &ref, nil
}

func (s *GatewayWebhookService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}
