package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/persistence/models"
)

const pgUniqueViolation = "23505"

// GormPaymentRecordRepository implements billing.PaymentRecordRepository
// using GORM
type GormPaymentRecordRepository struct {
	db *gorm.DB
}

// NewGormPaymentRecordRepository creates a new GORM-based payment record repository
func NewGormPaymentRecordRepository(db *gorm.DB) *GormPaymentRecordRepository {
	return &GormPaymentRecordRepository{db: db}
}

// FindByID finds a payment record by ID. Returns (nil, nil) when no row matches.
func (r *GormPaymentRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentRecord, error) {
	var model models.PaymentRecordModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment record by id: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByTransactionRef returns all records sharing a transaction reference,
// ordered by installment number
func (r *GormPaymentRecordRepository) FindByTransactionRef(ctx context.Context, transactionRef string) ([]*billing.PaymentRecord, error) {
	var rows []models.PaymentRecordModel
	err := r.db.WithContext(ctx).
		Where("transaction_ref = ?", transactionRef).
		Order("installment_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find payment records by transaction ref: %w", err)
	}
	return toDomainRecords(rows), nil
}

// FindActiveByInstallments returns the PENDING and APPROVED records of a
// student whose installment number is in the given set. Used to pre-check a
// selection; the partial unique index remains the authority under races.
func (r *GormPaymentRecordRepository) FindActiveByInstallments(ctx context.Context, studentID uuid.UUID, numbers []int) ([]*billing.PaymentRecord, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var rows []models.PaymentRecordModel
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND installment_number IN ? AND status IN ?",
			studentID, numbers,
			[]string{string(billing.PaymentStatusPending), string(billing.PaymentStatusApproved)}).
		Order("installment_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active payment records: %w", err)
	}
	return toDomainRecords(rows), nil
}

// ListByStudent returns the full payment history of a student, newest first
func (r *GormPaymentRecordRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*billing.PaymentRecord, error) {
	var rows []models.PaymentRecordModel
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("submitted_at DESC, installment_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment records: %w", err)
	}
	return toDomainRecords(rows), nil
}

// CreateAll inserts a batch of payment records in one statement. A violation
// of the active-installment partial unique index comes back as the
// INSTALLMENT_ALREADY_CLAIMED domain error, so concurrent submissions for the
// same installment lose cleanly instead of double-claiming it.
func (r *GormPaymentRecordRepository) CreateAll(ctx context.Context, records []*billing.PaymentRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]models.PaymentRecordModel, len(records))
	for i, rec := range records {
		rows[i].FromDomain(rec)
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError(billing.ErrCodeInstallmentClaimed,
				"One or more installments already have an active payment")
		}
		return fmt.Errorf("failed to create payment records: %w", err)
	}
	return nil
}

// Save updates an existing payment record
func (r *GormPaymentRecordRepository) Save(ctx context.Context, record *billing.PaymentRecord) error {
	var model models.PaymentRecordModel
	model.FromDomain(record)
	result := r.db.WithContext(ctx).
		Model(&models.PaymentRecordModel{}).
		Where("id = ?", model.ID).
		Select("status", "rejection_reason", "reviewed_by", "reviewed_at",
			"receipt_url", "notes", "version", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to save payment record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toDomainRecords(rows []models.PaymentRecordModel) []*billing.PaymentRecord {
	records := make([]*billing.PaymentRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
