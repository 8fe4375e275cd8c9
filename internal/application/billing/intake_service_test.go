package billing

import (
	"context"
	"strings"
	"testing"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIntakeFixture() (*PaymentIntakeService, *MockStudentRepository, *MockPaymentRecordRepository, *MockReceiptStorage) {
	studentRepo := new(MockStudentRepository)
	paymentRepo := new(MockPaymentRecordRepository)
	storage := new(MockReceiptStorage)
	svc := NewPaymentIntakeService(
		newPassthroughTxManager(studentRepo, paymentRepo),
		studentRepo,
		paymentRepo,
		storage,
		shared.NopEventPublisher{},
		zap.NewNop(),
	)
	return svc, studentRepo, paymentRepo, storage
}

func TestSubmitCash_ApprovesAndIncrementsLedger(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)
	amount := decimal.NewFromInt(20000)

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{1, 2}).
		Return([]*billing.PaymentRecord{}, nil)
	paymentRepo.On("CreateAll", mock.Anything, mock.Anything).Return(nil)
	studentRepo.On("IncrementPaid", mock.Anything, student.ID, amount).
		Return(&billing.LedgerTotals{PaidAmount: amount, Balance: decimal.NewFromInt(10000)}, nil)

	actor := adminActor()
	result, err := svc.SubmitCash(context.Background(), actor, SubmitCashRequest{
		StudentID:    student.ID,
		Installments: []int{1, 2},
		Amount:       amount,
		Notes:        "paid at front desk",
	})

	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.True(t, strings.HasPrefix(result.TransactionRef, "CASH-"+student.ID.String()))
	require.NotNil(t, result.Totals)
	assert.True(t, result.Totals.Balance.Equal(decimal.NewFromInt(10000)))

	for _, record := range result.Records {
		assert.Equal(t, billing.PaymentStatusApproved, record.Status)
		assert.Equal(t, billing.PaymentMethodCash, record.Method)
		assert.Equal(t, result.TransactionRef, record.TransactionRef)
		require.NotNil(t, record.ReviewedBy)
		assert.Equal(t, actor.ID, *record.ReviewedBy)
		assert.Equal(t, "paid at front desk", record.Notes)
	}
	assert.True(t, result.Records[0].Amount.Add(result.Records[1].Amount).Equal(amount))

	studentRepo.AssertExpectations(t)
	paymentRepo.AssertExpectations(t)
}

func TestSubmitCash_RequiresAdmin(t *testing.T) {
	svc, _, _, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)

	_, err := svc.SubmitCash(context.Background(), studentActor(student.ID), SubmitCashRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
	})

	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSubmitCash_ClaimedInstallment(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)

	claimed, err := billing.NewPendingPaymentRecord(student.ID, 2, decimal.NewFromInt(10000), billing.PaymentMethodUpload, "ref")
	require.NoError(t, err)

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{1, 2}).
		Return([]*billing.PaymentRecord{claimed}, nil)

	_, err = svc.SubmitCash(context.Background(), adminActor(), SubmitCashRequest{
		StudentID:    student.ID,
		Installments: []int{1, 2},
		Amount:       decimal.NewFromInt(20000),
		Notes:        "paid at front desk",
	})

	assertDomainCode(t, err, billing.ErrCodeInstallmentClaimed)
	paymentRepo.AssertNotCalled(t, "CreateAll", mock.Anything, mock.Anything)
}

func TestSubmitCash_NotesRequired(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)

	_, err := svc.SubmitCash(context.Background(), adminActor(), SubmitCashRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
		Notes:        "   ",
	})

	assertDomainCode(t, err, "NOTES_REQUIRED")
	studentRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	paymentRepo.AssertNotCalled(t, "CreateAll", mock.Anything, mock.Anything)
}

func TestSubmitCash_InsertFailureRollsBack(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)
	conflict := billing.NewInstallmentClaimedError([]int{1})

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{1}).
		Return([]*billing.PaymentRecord{}, nil)
	paymentRepo.On("CreateAll", mock.Anything, mock.Anything).Return(conflict)

	_, err := svc.SubmitCash(context.Background(), adminActor(), SubmitCashRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
		Notes:        "paid at front desk",
	})

	assertDomainCode(t, err, billing.ErrCodeInstallmentClaimed)
	studentRepo.AssertNotCalled(t, "IncrementPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitTransfer_ExactAmountEnforced(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)

	studentRepo.On("FindByDNI", mock.Anything, student.DNI).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{1, 2}).
		Return([]*billing.PaymentRecord{}, nil)

	_, err := svc.SubmitTransfer(context.Background(), adminActor(), SubmitTransferRequest{
		StudentDNI:   student.DNI,
		Installments: []int{1, 2},
		Amount:       decimal.NewFromInt(19000),
	})

	assertDomainCode(t, err, billing.ErrCodeAmountMismatch)
	paymentRepo.AssertNotCalled(t, "CreateAll", mock.Anything, mock.Anything)
}

func TestSubmitTransfer_UnknownDNI(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()

	studentRepo.On("FindByDNI", mock.Anything, "99999999").Return(nil, nil)

	_, err := svc.SubmitTransfer(context.Background(), adminActor(), SubmitTransferRequest{
		StudentDNI:   "99999999",
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
	})

	assertDomainCode(t, err, "STUDENT_NOT_FOUND")
	paymentRepo.AssertNotCalled(t, "CreateAll", mock.Anything, mock.Anything)
}

func TestSubmitTransfer_WithinTolerance(t *testing.T) {
	svc, studentRepo, paymentRepo, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)
	amount := decimal.NewFromFloat(19999.99)

	studentRepo.On("FindByDNI", mock.Anything, student.DNI).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{1, 2}).
		Return([]*billing.PaymentRecord{}, nil)
	paymentRepo.On("CreateAll", mock.Anything, mock.Anything).Return(nil)
	studentRepo.On("IncrementPaid", mock.Anything, student.ID, amount).
		Return(&billing.LedgerTotals{PaidAmount: amount, Balance: decimal.NewFromFloat(10000.01)}, nil)

	result, err := svc.SubmitTransfer(context.Background(), adminActor(), SubmitTransferRequest{
		StudentDNI:   student.DNI,
		Installments: []int{1, 2},
		Amount:       amount,
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.TransactionRef, "TRANSFER-"))
	assert.Equal(t, billing.PaymentMethodTransfer, result.Records[0].Method)
}

func TestSubmitUpload_CreatesPendingGroup(t *testing.T) {
	svc, studentRepo, paymentRepo, storage := newIntakeFixture()
	student := newTestStudent(30000, 3)
	content := strings.NewReader("fake receipt")

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{3}).
		Return([]*billing.PaymentRecord{}, nil)
	storage.On("Store", mock.Anything, student.ID, "receipt.pdf", content, int64(12), "application/pdf").
		Return("https://receipts.example.com/abc.pdf", nil)
	paymentRepo.On("CreateAll", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.SubmitUpload(context.Background(), studentActor(student.ID), SubmitUploadRequest{
		StudentID:    student.ID,
		Installments: []int{3},
		Amount:       decimal.NewFromInt(10000),
		Filename:     "receipt.pdf",
		ContentType:  "application/pdf",
		Size:         12,
		Content:      content,
	})

	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Nil(t, result.Totals)
	assert.Equal(t, billing.PaymentStatusPending, result.Records[0].Status)
	assert.Equal(t, billing.PaymentMethodUpload, result.Records[0].Method)
	require.NotNil(t, result.Records[0].ReceiptURL)
	assert.Equal(t, "https://receipts.example.com/abc.pdf", *result.Records[0].ReceiptURL)

	studentRepo.AssertNotCalled(t, "IncrementPaid", mock.Anything, mock.Anything, mock.Anything)
	storage.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestSubmitUpload_RemovesReceiptOnInsertFailure(t *testing.T) {
	svc, studentRepo, paymentRepo, storage := newIntakeFixture()
	student := newTestStudent(30000, 3)
	content := strings.NewReader("fake receipt")
	conflict := billing.NewInstallmentClaimedError([]int{3})

	studentRepo.On("FindByID", mock.Anything, student.ID).Return(student, nil)
	paymentRepo.On("FindActiveByInstallments", mock.Anything, student.ID, []int{3}).
		Return([]*billing.PaymentRecord{}, nil)
	storage.On("Store", mock.Anything, student.ID, "receipt.pdf", content, int64(12), "application/pdf").
		Return("https://receipts.example.com/abc.pdf", nil)
	paymentRepo.On("CreateAll", mock.Anything, mock.Anything).Return(conflict)
	storage.On("Remove", mock.Anything, "https://receipts.example.com/abc.pdf").Return(nil)

	_, err := svc.SubmitUpload(context.Background(), studentActor(student.ID), SubmitUploadRequest{
		StudentID:    student.ID,
		Installments: []int{3},
		Amount:       decimal.NewFromInt(10000),
		Filename:     "receipt.pdf",
		ContentType:  "application/pdf",
		Size:         12,
		Content:      content,
	})

	assertDomainCode(t, err, billing.ErrCodeInstallmentClaimed)
	storage.AssertExpectations(t)
}

func TestSubmitUpload_RejectsExecutableFile(t *testing.T) {
	svc, studentRepo, _, storage := newIntakeFixture()
	student := newTestStudent(30000, 3)

	_, err := svc.SubmitUpload(context.Background(), studentActor(student.ID), SubmitUploadRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
		Filename:     "informe.exe",
		ContentType:  "application/x-msdownload",
		Size:         512,
		Content:      strings.NewReader("MZ"),
	})

	assertDomainCode(t, err, "INVALID_RECEIPT_TYPE")
	studentRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	storage.AssertNotCalled(t, "Store",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitUpload_AcceptsReceiptTypes(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
	}{
		{"pdf", "comprobante.pdf", "application/pdf"},
		{"jpeg", "foto.jpg", "image/jpeg"},
		{"png", "captura.png", "image/png"},
		{"webp", "captura.webp", "image/webp"},
		{"content type with charset", "comprobante.pdf", "application/pdf; charset=binary"},
		{"generic type with known extension", "comprobante.pdf", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, validateReceiptFile(tt.filename, tt.contentType, 1024))
		})
	}
}

func TestSubmitUpload_RejectsOversizedFile(t *testing.T) {
	svc, _, _, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)

	_, err := svc.SubmitUpload(context.Background(), studentActor(student.ID), SubmitUploadRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
		Filename:     "comprobante.pdf",
		ContentType:  "application/pdf",
		Size:         maxReceiptSize + 1,
		Content:      strings.NewReader("x"),
	})

	assertDomainCode(t, err, "RECEIPT_TOO_LARGE")
}

func TestSubmitUpload_StudentCannotUploadForOthers(t *testing.T) {
	svc, _, _, _ := newIntakeFixture()
	student := newTestStudent(30000, 3)
	other := newTestStudent(30000, 3)

	_, err := svc.SubmitUpload(context.Background(), studentActor(other.ID), SubmitUploadRequest{
		StudentID:    student.ID,
		Installments: []int{1},
		Amount:       decimal.NewFromInt(10000),
		Filename:     "receipt.pdf",
		Content:      strings.NewReader("x"),
	})

	assert.ErrorIs(t, err, shared.ErrForbidden)
}
