package billing

import (
	"context"
	"testing"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newStudentFixture() (*StudentService, *MockStudentRepository, *MockPaymentRecordRepository) {
	studentRepo := new(MockStudentRepository)
	paymentRepo := new(MockPaymentRecordRepository)
	svc := NewStudentService(studentRepo, paymentRepo, shared.NopEventPublisher{}, zap.NewNop())
	return svc, studentRepo, paymentRepo
}

func TestCreateStudent(t *testing.T) {
	svc, studentRepo, _ := newStudentFixture()

	studentRepo.On("FindByDNI", mock.Anything, "30123456").Return(nil, nil)
	studentRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	student, err := svc.Create(context.Background(), adminActor(), CreateStudentRequest{
		DNI:          "30123456",
		FirstName:    "Ana",
		LastName:     "Gomez",
		Email:        "ana@example.com",
		SchoolID:     uuid.New(),
		DivisionID:   uuid.New(),
		ProductID:    uuid.New(),
		TotalAmount:  decimal.NewFromInt(30000),
		Installments: 3,
	})

	require.NoError(t, err)
	assert.True(t, student.PaidAmount.IsZero())
	assert.True(t, student.Balance.Equal(decimal.NewFromInt(30000)))
	assert.True(t, student.LedgerConsistent())

	// Initial credential is the DNI
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(student.CredentialHash), []byte("30123456")))
	studentRepo.AssertExpectations(t)
}

func TestCreateStudent_DuplicateDNI(t *testing.T) {
	svc, studentRepo, _ := newStudentFixture()
	existing := newTestStudent(30000, 3)

	studentRepo.On("FindByDNI", mock.Anything, "30123456").Return(existing, nil)

	_, err := svc.Create(context.Background(), adminActor(), CreateStudentRequest{
		DNI:          "30123456",
		FirstName:    "Ana",
		LastName:     "Gomez",
		SchoolID:     uuid.New(),
		DivisionID:   uuid.New(),
		ProductID:    uuid.New(),
		TotalAmount:  decimal.NewFromInt(30000),
		Installments: 3,
	})

	assertDomainCode(t, err, "ALREADY_EXISTS")
	studentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateStudent_RequiresAdmin(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), studentActor(uuid.New()), CreateStudentRequest{DNI: "1"})

	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAuthenticate(t *testing.T) {
	svc, studentRepo, _ := newStudentFixture()
	student := newTestStudent(30000, 3)
	hash, err := bcrypt.GenerateFromPassword([]byte("30123456"), bcrypt.MinCost)
	require.NoError(t, err)
	student.CredentialHash = string(hash)

	studentRepo.On("FindByDNI", mock.Anything, "30123456").Return(student, nil)

	got, err := svc.Authenticate(context.Background(), "30123456", "30123456")
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), "30123456", "wrong")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestAuthenticate_UnknownDNI(t *testing.T) {
	svc, studentRepo, _ := newStudentFixture()

	studentRepo.On("FindByDNI", mock.Anything, "99999999").Return(nil, nil)

	_, err := svc.Authenticate(context.Background(), "99999999", "x")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetLedger(t *testing.T) {
	svc, studentRepo, paymentRepo := newStudentFixture()
	student := newTestStudent(30000, 3)
	record, err := billing.NewPendingPaymentRecord(student.ID, 1, decimal.NewFromInt(10000), billing.PaymentMethodUpload, "ref")
	require.NoError(t, err)

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("ListByStudent", mock.Anything, student.ID).Return([]*billing.PaymentRecord{record}, nil)

	view, err := svc.GetLedger(context.Background(), studentActor(student.ID), student.ID)

	require.NoError(t, err)
	assert.Equal(t, student.ID, view.Student.ID)
	require.Len(t, view.Records, 1)
}

func TestGetLedger_StudentCannotSeeOthers(t *testing.T) {
	svc, _, _ := newStudentFixture()
	student := newTestStudent(30000, 3)

	_, err := svc.GetLedger(context.Background(), studentActor(uuid.New()), student.ID)

	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestEstimateCoverage_Service(t *testing.T) {
	svc, studentRepo, _ := newStudentFixture()
	student := newTestStudent(30000, 3)

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)

	covered, err := svc.EstimateCoverage(context.Background(), adminActor(), student.ID, decimal.NewFromInt(20000))

	require.NoError(t, err)
	assert.Equal(t, 2, covered)
}
