package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/cuotas/backend/internal/domain/billing"
)

// GormTransactionManager implements billing.TransactionManager on a GORM
// connection. Every invocation opens one database transaction and hands the
// callback repositories bound to it, so all writes commit or roll back together.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a new transaction manager
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// InTransaction runs fn inside a single database transaction
func (m *GormTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, repos billing.RepositorySet) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := billing.RepositorySet{
			Students: NewGormStudentRepository(tx),
			Payments: NewGormPaymentRecordRepository(tx),
		}
		return fn(ctx, repos)
	})
}
