package billing

import (
	"testing"

	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers

func createTestStudent(t *testing.T) *Student {
	t.Helper()
	s, err := NewStudent(
		"30123456",
		"Ana",
		"Gomez",
		"ana@example.com",
		uuid.New(),
		uuid.New(),
		uuid.New(),
		valueobject.NewMoneyARSFromFloat(30000),
		3,
		"$2a$10$fakehash",
	)
	require.NoError(t, err)
	return s
}

func TestNewStudent(t *testing.T) {
	s := createTestStudent(t)

	assert.Equal(t, "30123456", s.DNI)
	assert.Equal(t, 3, s.Installments)
	assert.True(t, s.TotalAmount.Equal(decimal.NewFromInt(30000)))
	assert.True(t, s.PaidAmount.IsZero())
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(30000)))
	assert.True(t, s.LedgerConsistent())
	assert.Len(t, s.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeStudentEnrolled, s.GetDomainEvents()[0].EventType())
}

func TestNewStudent_Validation(t *testing.T) {
	schoolID := uuid.New()
	productID := uuid.New()
	total := valueobject.NewMoneyARSFromFloat(30000)

	tests := []struct {
		name         string
		dni          string
		firstName    string
		totalAmount  valueobject.Money
		installments int
		schoolID     uuid.UUID
		productID    uuid.UUID
		wantCode     string
	}{
		{"empty dni", "", "Ana", total, 3, schoolID, productID, "INVALID_DNI"},
		{"empty name", "30123456", "  ", total, 3, schoolID, productID, "INVALID_NAME"},
		{"zero amount", "30123456", "Ana", valueobject.NewMoneyARSFromFloat(0), 3, schoolID, productID, "INVALID_AMOUNT"},
		{"negative amount", "30123456", "Ana", valueobject.NewMoneyARSFromFloat(-1), 3, schoolID, productID, "INVALID_AMOUNT"},
		{"zero installments", "30123456", "Ana", total, 0, schoolID, productID, "INVALID_INSTALLMENTS"},
		{"nil school", "30123456", "Ana", total, 3, uuid.Nil, productID, "INVALID_SCHOOL"},
		{"nil product", "30123456", "Ana", total, 3, schoolID, uuid.Nil, "INVALID_PRODUCT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStudent(tt.dni, tt.firstName, "Gomez", "", tt.schoolID, uuid.New(), tt.productID, tt.totalAmount, tt.installments, "")
			require.Error(t, err)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.wantCode, domainErr.Code)
		})
	}
}

func TestStudent_InstallmentAmount(t *testing.T) {
	s := createTestStudent(t)
	assert.True(t, s.InstallmentAmount().Equal(decimal.NewFromInt(10000)))
}

func TestStudent_RegisterApprovedPayment(t *testing.T) {
	s := createTestStudent(t)

	err := s.RegisterApprovedPayment(decimal.NewFromInt(20000))
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.Equal(decimal.NewFromInt(20000)))
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(10000)))
	assert.True(t, s.LedgerConsistent())
}

func TestStudent_RegisterApprovedPayment_InvalidAmount(t *testing.T) {
	s := createTestStudent(t)

	assert.Error(t, s.RegisterApprovedPayment(decimal.Zero))
	assert.Error(t, s.RegisterApprovedPayment(decimal.NewFromInt(-5)))
	assert.True(t, s.PaidAmount.IsZero())
}

func TestStudent_RegisterApprovedPayment_NoClamping(t *testing.T) {
	s := createTestStudent(t)

	// Over-approval drives the balance negative; the invariant still holds.
	err := s.RegisterApprovedPayment(decimal.NewFromInt(35000))
	require.NoError(t, err)

	assert.True(t, s.Balance.IsNegative())
	assert.True(t, s.LedgerConsistent())
}

func TestStudent_RegisterApprovedPayment_FractionalSplits(t *testing.T) {
	s := createTestStudent(t)

	// Repeated uneven shares must never drift the invariant.
	for _, share := range SplitAmount(decimal.NewFromFloat(10000.01), 3) {
		require.NoError(t, s.RegisterApprovedPayment(share))
	}
	assert.True(t, s.LedgerConsistent())
	assert.True(t, s.PaidAmount.Equal(decimal.NewFromFloat(10000.01)))
}
