package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerTotals is the result of the atomic ledger increment
type LedgerTotals struct {
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Balance    decimal.Decimal `json:"balance"`
}

// StudentRepository defines persistence operations for students.
// IncrementPaid is the ONLY ledger-mutating entry point in the system; no
// caller ever writes PaidAmount or Balance directly.
type StudentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Student, error)
	FindByDNI(ctx context.Context, dni string) (*Student, error)
	Create(ctx context.Context, student *Student) error
	Save(ctx context.Context, student *Student) error

	// IncrementPaid atomically applies paid_amount += amount and
	// balance -= amount in a single statement and returns the new totals.
	// Safe under concurrent approvals for the same student.
	IncrementPaid(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal) (*LedgerTotals, error)
}

// PaymentRecordRepository defines persistence operations for payment records.
// CreateAll must translate a violation of the active-installment uniqueness
// constraint into an INSTALLMENT_ALREADY_CLAIMED domain error, so the
// constraint (not a prior SELECT) is the authority under concurrency.
type PaymentRecordRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentRecord, error)
	FindByTransactionRef(ctx context.Context, transactionRef string) ([]*PaymentRecord, error)
	FindActiveByInstallments(ctx context.Context, studentID uuid.UUID, numbers []int) ([]*PaymentRecord, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*PaymentRecord, error)
	CreateAll(ctx context.Context, records []*PaymentRecord) error
	Save(ctx context.Context, record *PaymentRecord) error
}

// RepositorySet bundles the repositories participating in a transaction
type RepositorySet struct {
	Students StudentRepository
	Payments PaymentRecordRepository
}

// TransactionManager runs a function inside one database transaction.
// "Insert payment records + increment ledger" and grouped review run through
// it, so a failure anywhere rolls back everything (no compensating deletes).
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, repos RepositorySet) error) error
}
