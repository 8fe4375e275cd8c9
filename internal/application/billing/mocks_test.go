package billing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

// =============================================================================
// Mock Repositories
// =============================================================================

type MockStudentRepository struct {
	mock.Mock
}

func (m *MockStudentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Student, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Student), args.Error(1)
}

func (m *MockStudentRepository) FindByDNI(ctx context.Context, dni string) (*billing.Student, error) {
	args := m.Called(ctx, dni)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Student), args.Error(1)
}

func (m *MockStudentRepository) Create(ctx context.Context, student *billing.Student) error {
	args := m.Called(ctx, student)
	return args.Error(0)
}

func (m *MockStudentRepository) Save(ctx context.Context, student *billing.Student) error {
	args := m.Called(ctx, student)
	return args.Error(0)
}

func (m *MockStudentRepository) IncrementPaid(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal) (*billing.LedgerTotals, error) {
	args := m.Called(ctx, studentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.LedgerTotals), args.Error(1)
}

type MockPaymentRecordRepository struct {
	mock.Mock
}

func (m *MockPaymentRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) FindByTransactionRef(ctx context.Context, transactionRef string) ([]*billing.PaymentRecord, error) {
	args := m.Called(ctx, transactionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) FindActiveByInstallments(ctx context.Context, studentID uuid.UUID, numbers []int) ([]*billing.PaymentRecord, error) {
	args := m.Called(ctx, studentID, numbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*billing.PaymentRecord, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) CreateAll(ctx context.Context, records []*billing.PaymentRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) Save(ctx context.Context, record *billing.PaymentRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// =============================================================================
// Mock Transaction Manager
// =============================================================================

// passthroughTxManager runs the transactional function directly against the
// given repositories, which is what the real manager does minus the SQL
// transaction boundaries.
type passthroughTxManager struct {
	repos billing.RepositorySet
}

func newPassthroughTxManager(students billing.StudentRepository, payments billing.PaymentRecordRepository) *passthroughTxManager {
	return &passthroughTxManager{repos: billing.RepositorySet{Students: students, Payments: payments}}
}

func (m *passthroughTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, repos billing.RepositorySet) error) error {
	return fn(ctx, m.repos)
}

// =============================================================================
// Mock Collaborators
// =============================================================================

type MockReceiptStorage struct {
	mock.Mock
}

func (m *MockReceiptStorage) Store(ctx context.Context, studentID uuid.UUID, filename string, content io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, studentID, filename, content, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockReceiptStorage) Remove(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayPayment), args.Error(1)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Unmark(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// =============================================================================
// Test fixtures
// =============================================================================

func newTestStudent(total int64, installments int) *billing.Student {
	student := &billing.Student{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DNI:               "30123456",
		FirstName:         "Ana",
		LastName:          "Gomez",
		Email:             "ana@example.com",
		SchoolID:          uuid.New(),
		DivisionID:        uuid.New(),
		ProductID:         uuid.New(),
		TotalAmount:       decimal.NewFromInt(total),
		Installments:      installments,
		PaidAmount:        decimal.Zero,
		Balance:           decimal.NewFromInt(total),
	}
	return student
}

func adminActor() Actor {
	return Actor{ID: uuid.New(), Role: RoleAdmin}
}

func studentActor(id uuid.UUID) Actor {
	return Actor{ID: id, Role: RoleStudent}
}
