package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared/valueobject"
	"github.com/cuotas/backend/internal/interfaces/http/dto"
	"github.com/cuotas/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// actorMiddleware injects an authenticated actor the way the JWT middleware
// would, so handlers can be exercised without real tokens.
func actorMiddleware(actor appbilling.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ActorKey, actor)
		c.Next()
	}
}

func adminActor() appbilling.Actor {
	return appbilling.Actor{ID: uuid.New(), Role: appbilling.RoleAdmin}
}

func studentActor(id uuid.UUID) appbilling.Actor {
	return appbilling.Actor{ID: id, Role: appbilling.RoleStudent}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
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

// MockTransactionManager runs the function against the same mocks the test
// configured, without any real transaction.
type MockTransactionManager struct {
	Students billing.StudentRepository
	Payments billing.PaymentRecordRepository
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, repos billing.RepositorySet) error) error {
	return fn(ctx, billing.RepositorySet{Students: m.Students, Payments: m.Payments})
}

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

func (m *MockGatewayClient) GetPayment(ctx context.Context, paymentID string) (*appbilling.GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.GatewayPayment), args.Error(1)
}

// =============================================================================
// Fixtures
// =============================================================================

func newTestStudent(t *testing.T, total string, installments int) *billing.Student {
	t.Helper()
	amount, err := decimal.NewFromString(total)
	require.NoError(t, err)
	student, err := billing.NewStudent(
		"30123456", "Ana", "Suarez", "ana@example.com",
		uuid.New(), uuid.New(), uuid.New(),
		valueobject.NewMoneyARS(amount), installments, "$2a$10$fakehash",
	)
	require.NoError(t, err)
	return student
}
