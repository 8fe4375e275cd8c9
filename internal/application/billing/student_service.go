package billing

import (
	"context"
	"fmt"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/domain/shared/valueobject"
	"github.com/cuotas/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// StudentService handles student enrollment, authentication and ledger views
type StudentService struct {
	studentRepo    billing.StudentRepository
	paymentRepo    billing.PaymentRecordRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewStudentService creates a new StudentService
func NewStudentService(
	studentRepo billing.StudentRepository,
	paymentRepo billing.PaymentRecordRepository,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		studentRepo:    studentRepo,
		paymentRepo:    paymentRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// CreateStudentRequest represents a request to enroll a student
type CreateStudentRequest struct {
	DNI          string
	FirstName    string
	LastName     string
	Email        string
	SchoolID     uuid.UUID
	DivisionID   uuid.UUID
	ProductID    uuid.UUID
	TotalAmount  decimal.Decimal
	Installments int
}

// Create enrolls a student with an untouched ledger. The initial credential
// is the student's DNI; families log in with it and are expected to change it.
func (s *StudentService) Create(ctx context.Context, actor Actor, req CreateStudentRequest) (*billing.Student, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "student", "create")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrStudentDNI, req.DNI)

	if err := requireAdmin(actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	existing, err := s.studentRepo.FindByDNI(ctx, req.DNI)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check existing student: %w", err)
	}
	if existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A student with this DNI already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.DNI), bcrypt.DefaultCost)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	student, err := billing.NewStudent(
		req.DNI,
		req.FirstName,
		req.LastName,
		req.Email,
		req.SchoolID,
		req.DivisionID,
		req.ProductID,
		valueobject.NewMoneyARS(req.TotalAmount),
		req.Installments,
		string(hash),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.studentRepo.Create(ctx, student); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Student enrolled",
		zap.String("student_id", student.ID.String()),
		zap.String("dni", student.DNI),
		zap.String("total_amount", student.TotalAmount.String()),
		zap.Int("installments", student.Installments))

	for _, event := range student.GetDomainEvents() {
		if s.eventPublisher == nil {
			break
		}
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}
	student.ClearDomainEvents()

	return student, nil
}

// Authenticate verifies a student's DNI and credential for login
func (s *StudentService) Authenticate(ctx context.Context, dni, credential string) (*billing.Student, error) {
	student, err := s.studentRepo.FindByDNI(ctx, dni)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, shared.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(student.CredentialHash), []byte(credential)); err != nil {
		return nil, shared.ErrUnauthorized
	}
	return student, nil
}

// LedgerView is a student's account as shown to families and administrators
type LedgerView struct {
	Student *billing.Student         `json:"student"`
	Records []*billing.PaymentRecord `json:"records"`
}

// GetLedger returns the student's ledger totals and payment history
func (s *StudentService) GetLedger(ctx context.Context, actor Actor, studentID uuid.UUID) (*LedgerView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "student", "get_ledger")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrStudentID, studentID.String())

	if !actor.CanActFor(studentID) {
		return nil, shared.ErrForbidden
	}

	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, shared.ErrNotFound
	}

	records, err := s.paymentRepo.ListByStudent(ctx, studentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	return &LedgerView{Student: student, Records: records}, nil
}

// ListPayments returns the student's payment history, newest first
func (s *StudentService) ListPayments(ctx context.Context, actor Actor, studentID uuid.UUID) ([]*billing.PaymentRecord, error) {
	if !actor.CanActFor(studentID) {
		return nil, shared.ErrForbidden
	}

	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, shared.ErrNotFound
	}

	return s.paymentRepo.ListByStudent(ctx, studentID)
}

// EstimateCoverage estimates how many installments an amount would cover for
// the given student. Pure advisory, used by review screens for pre-selection.
func (s *StudentService) EstimateCoverage(ctx context.Context, actor Actor, studentID uuid.UUID, amount decimal.Decimal) (int, error) {
	if !actor.CanActFor(studentID) {
		return 0, shared.ErrForbidden
	}

	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return 0, shared.ErrNotFound
	}

	return billing.EstimateCoverage(amount, student.TotalAmount, student.Installments), nil
}
