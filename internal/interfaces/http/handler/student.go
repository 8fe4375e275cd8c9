package handler

import (
	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/cuotas/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StudentHandler handles student enrollment and ledger endpoints
type StudentHandler struct {
	BaseHandler
	studentService *appbilling.StudentService
}

// NewStudentHandler creates a new StudentHandler
func NewStudentHandler(studentService *appbilling.StudentService) *StudentHandler {
	return &StudentHandler{studentService: studentService}
}

// CreateStudentRequest represents a request to enroll a student
type CreateStudentRequest struct {
	DNI          string          `json:"dni" binding:"required,dni"`
	FirstName    string          `json:"first_name" binding:"required"`
	LastName     string          `json:"last_name" binding:"required"`
	Email        string          `json:"email" binding:"required,email"`
	SchoolID     uuid.UUID       `json:"school_id" binding:"required"`
	DivisionID   uuid.UUID       `json:"division_id" binding:"required"`
	ProductID    uuid.UUID       `json:"product_id" binding:"required"`
	TotalAmount  decimal.Decimal `json:"total_amount" binding:"required,gt=0"`
	Installments int             `json:"installments" binding:"required,min=1"`
}

// CreateStudent enrolls a student. POST /api/v1/students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var req CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	student, err := h.studentService.Create(c.Request.Context(), actor, appbilling.CreateStudentRequest{
		DNI:          req.DNI,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		SchoolID:     req.SchoolID,
		DivisionID:   req.DivisionID,
		ProductID:    req.ProductID,
		TotalAmount:  req.TotalAmount,
		Installments: req.Installments,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, student)
}

// GetLedger returns the student's ledger and payment history.
// GET /api/v1/students/:id/ledger
func (h *StudentHandler) GetLedger(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid student ID")
		return
	}
	studentID := uuid.MustParse(uri.ID)

	ledger, err := h.studentService.GetLedger(c.Request.Context(), actor, studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ledger)
}

// ListPayments returns the student's payment records.
// GET /api/v1/students/:id/payments
func (h *StudentHandler) ListPayments(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid student ID")
		return
	}
	studentID := uuid.MustParse(uri.ID)

	records, err := h.studentService.ListPayments(c.Request.Context(), actor, studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, records)
}

// CoverageResponse reports how many installments an amount would cover
type CoverageResponse struct {
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments"`
}

// EstimateCoverage estimates installment coverage for an amount.
// GET /api/v1/students/:id/coverage?amount=
func (h *StudentHandler) EstimateCoverage(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid student ID")
		return
	}
	studentID := uuid.MustParse(uri.ID)

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		h.BadRequest(c, "Invalid amount")
		return
	}

	count, err := h.studentService.EstimateCoverage(c.Request.Context(), actor, studentID, amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CoverageResponse{Amount: amount, Installments: count})
}
