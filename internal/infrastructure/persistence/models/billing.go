package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cuotas/backend/internal/domain/billing"
)

// StudentModel is the GORM model for the students table
type StudentModel struct {
	AggregateModel
	DNI            string          `gorm:"type:varchar(16);not null;uniqueIndex:ux_students_dni"`
	FirstName      string          `gorm:"type:varchar(128);not null"`
	LastName       string          `gorm:"type:varchar(128);not null"`
	Email          string          `gorm:"type:varchar(256)"`
	SchoolID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	DivisionID     uuid.UUID       `gorm:"type:uuid"`
	ProductID      uuid.UUID       `gorm:"type:uuid;not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Installments   int             `gorm:"not null"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Balance        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CredentialHash string          `gorm:"type:varchar(128);not null"`
}

// TableName returns the table name for StudentModel
func (StudentModel) TableName() string {
	return "students"
}

// ToDomain converts the model to a domain student
func (m *StudentModel) ToDomain() *billing.Student {
	s := &billing.Student{
		DNI:            m.DNI,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Email:          m.Email,
		SchoolID:       m.SchoolID,
		DivisionID:     m.DivisionID,
		ProductID:      m.ProductID,
		TotalAmount:    m.TotalAmount,
		Installments:   m.Installments,
		PaidAmount:     m.PaidAmount,
		Balance:        m.Balance,
		CredentialHash: m.CredentialHash,
	}
	s.ID = m.ID
	s.CreatedAt = m.CreatedAt
	s.UpdatedAt = m.UpdatedAt
	s.Version = m.Version
	return s
}

// FromDomain populates the model from a domain student
func (m *StudentModel) FromDomain(s *billing.Student) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.DNI = s.DNI
	m.FirstName = s.FirstName
	m.LastName = s.LastName
	m.Email = s.Email
	m.SchoolID = s.SchoolID
	m.DivisionID = s.DivisionID
	m.ProductID = s.ProductID
	m.TotalAmount = s.TotalAmount
	m.Installments = s.Installments
	m.PaidAmount = s.PaidAmount
	m.Balance = s.Balance
	m.CredentialHash = s.CredentialHash
}

// PaymentRecordModel is the GORM model for the payment_records table.
// The active-installment uniqueness is enforced by a partial unique index
// (see migrations), which GORM tags cannot express.
type PaymentRecordModel struct {
	AggregateModel
	StudentID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	InstallmentNumber *int            `gorm:""`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Method            string          `gorm:"type:varchar(16);not null"`
	Status            string          `gorm:"type:varchar(16);not null;index"`
	TransactionRef    string          `gorm:"type:varchar(128);not null;index:ix_payment_records_transaction_ref"`
	ReceiptURL        *string         `gorm:"type:varchar(512)"`
	Notes             string          `gorm:"type:text"`
	RejectionReason   *string         `gorm:"type:text"`
	GatewayPaymentID  *string         `gorm:"type:varchar(64);index"`
	SubmittedAt       time.Time       `gorm:"not null"`
	PaymentDate       time.Time       `gorm:"not null"`
	ReviewedBy        *uuid.UUID      `gorm:"type:uuid"`
	ReviewedAt        *time.Time      `gorm:""`
}

// TableName returns the table name for PaymentRecordModel
func (PaymentRecordModel) TableName() string {
	return "payment_records"
}

// ToDomain converts the model to a domain payment record
func (m *PaymentRecordModel) ToDomain() *billing.PaymentRecord {
	p := &billing.PaymentRecord{
		StudentID:         m.StudentID,
		InstallmentNumber: m.InstallmentNumber,
		Amount:            m.Amount,
		Method:            billing.PaymentMethod(m.Method),
		Status:            billing.PaymentStatus(m.Status),
		TransactionRef:    m.TransactionRef,
		ReceiptURL:        m.ReceiptURL,
		Notes:             m.Notes,
		RejectionReason:   m.RejectionReason,
		GatewayPaymentID:  m.GatewayPaymentID,
		SubmittedAt:       m.SubmittedAt,
		PaymentDate:       m.PaymentDate,
		ReviewedBy:        m.ReviewedBy,
		ReviewedAt:        m.ReviewedAt,
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	p.Version = m.Version
	return p
}

// FromDomain populates the model from a domain payment record
func (m *PaymentRecordModel) FromDomain(p *billing.PaymentRecord) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.StudentID = p.StudentID
	m.InstallmentNumber = p.InstallmentNumber
	m.Amount = p.Amount
	m.Method = string(p.Method)
	m.Status = string(p.Status)
	m.TransactionRef = p.TransactionRef
	m.ReceiptURL = p.ReceiptURL
	m.Notes = p.Notes
	m.RejectionReason = p.RejectionReason
	m.GatewayPaymentID = p.GatewayPaymentID
	m.SubmittedAt = p.SubmittedAt
	m.PaymentDate = p.PaymentDate
	m.ReviewedBy = p.ReviewedBy
	m.ReviewedAt = p.ReviewedAt
}
