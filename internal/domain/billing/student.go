package billing

import (
	"fmt"
	"strings"

	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Student represents a student account and its ledger.
// The ledger is the (TotalAmount, PaidAmount, Balance) triple; the invariant
// PaidAmount + Balance == TotalAmount must hold after every mutation.
type Student struct {
	shared.BaseAggregateRoot
	DNI            string          `json:"dni"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	SchoolID       uuid.UUID       `json:"school_id"`
	DivisionID     uuid.UUID       `json:"division_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Installments   int             `json:"installments"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Balance        decimal.Decimal `json:"balance"`
	CredentialHash string          `json:"-"`
}

// NewStudent creates a new student with an untouched ledger:
// PaidAmount = 0 and Balance = TotalAmount.
func NewStudent(
	dni string,
	firstName string,
	lastName string,
	email string,
	schoolID uuid.UUID,
	divisionID uuid.UUID,
	productID uuid.UUID,
	totalAmount valueobject.Money,
	installments int,
	credentialHash string,
) (*Student, error) {
	dni = strings.TrimSpace(dni)
	if dni == "" {
		return nil, shared.NewDomainError("INVALID_DNI", "DNI cannot be empty")
	}
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Student name cannot be empty")
	}
	if !totalAmount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Total amount must be positive")
	}
	if installments < 1 {
		return nil, shared.NewDomainError("INVALID_INSTALLMENTS", "Installment count must be at least 1")
	}
	if schoolID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SCHOOL", "School ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}

	s := &Student{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DNI:               dni,
		FirstName:         strings.TrimSpace(firstName),
		LastName:          strings.TrimSpace(lastName),
		Email:             strings.TrimSpace(email),
		SchoolID:          schoolID,
		DivisionID:        divisionID,
		ProductID:         productID,
		TotalAmount:       totalAmount.Amount(),
		Installments:      installments,
		PaidAmount:        decimal.Zero,
		Balance:           totalAmount.Amount(),
		CredentialHash:    credentialHash,
	}

	s.AddDomainEvent(NewStudentEnrolledEvent(s))

	return s, nil
}

// FullName returns "LastName, FirstName"
func (s *Student) FullName() string {
	return fmt.Sprintf("%s, %s", s.LastName, s.FirstName)
}

// InstallmentAmount returns the nominal value of a single installment
func (s *Student) InstallmentAmount() decimal.Decimal {
	return s.TotalAmount.Div(decimal.NewFromInt(int64(s.Installments)))
}

// RegisterApprovedPayment applies an approved payment to the in-memory ledger.
// The persisted mutation goes through StudentRepository.IncrementPaid; this
// method exists so the aggregate can express the same postcondition:
// PaidAmount' = PaidAmount + amount, Balance' = Balance - amount.
// No clamping: approving more than the outstanding balance drives Balance
// negative (operator error, surfaced by inspection, never silently fixed).
func (s *Student) RegisterApprovedPayment(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	s.PaidAmount = s.PaidAmount.Add(amount)
	s.Balance = s.Balance.Sub(amount)
	s.IncrementVersion()
	return nil
}

// LedgerConsistent reports whether PaidAmount + Balance == TotalAmount
func (s *Student) LedgerConsistent() bool {
	return s.PaidAmount.Add(s.Balance).Equal(s.TotalAmount)
}
