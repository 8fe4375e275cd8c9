package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/persistence/models"
)

// GormStudentRepository implements billing.StudentRepository using GORM
type GormStudentRepository struct {
	db *gorm.DB
}

// NewGormStudentRepository creates a new GORM-based student repository
func NewGormStudentRepository(db *gorm.DB) *GormStudentRepository {
	return &GormStudentRepository{db: db}
}

// FindByID finds a student by ID. Returns (nil, nil) when no row matches;
// the caller decides whether absence is an error.
func (r *GormStudentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Student, error) {
	var model models.StudentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find student by id: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByDNI finds a student by DNI. Returns (nil, nil) when no row matches.
func (r *GormStudentRepository) FindByDNI(ctx context.Context, dni string) (*billing.Student, error) {
	var model models.StudentModel
	err := r.db.WithContext(ctx).Where("dni = ?", dni).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find student by dni: %w", err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new student
func (r *GormStudentRepository) Create(ctx context.Context, student *billing.Student) error {
	var model models.StudentModel
	model.FromDomain(student)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// Save updates an existing student. The ledger columns are deliberately not
// written here; IncrementPaid is the only path that touches them.
func (r *GormStudentRepository) Save(ctx context.Context, student *billing.Student) error {
	var model models.StudentModel
	model.FromDomain(student)
	result := r.db.WithContext(ctx).
		Model(&models.StudentModel{}).
		Where("id = ?", model.ID).
		Select("first_name", "last_name", "email", "school_id", "division_id",
			"credential_hash", "version", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to save student: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// IncrementPaid applies paid_amount += amount and balance -= amount in a
// single UPDATE and returns the resulting totals. The single statement makes
// concurrent approvals for the same student serialize on the row lock, so
// paid_amount + balance == total_amount holds without an explicit read.
func (r *GormStudentRepository) IncrementPaid(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal) (*billing.LedgerTotals, error) {
	var totals billing.LedgerTotals
	err := r.db.WithContext(ctx).Raw(
		`UPDATE students
		 SET paid_amount = paid_amount + ?,
		     balance = balance - ?,
		     updated_at = now()
		 WHERE id = ?
		 RETURNING paid_amount, balance`,
		amount, amount, studentID,
	).Row().Scan(&totals.PaidAmount, &totals.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment paid amount: %w", err)
	}
	return &totals, nil
}
