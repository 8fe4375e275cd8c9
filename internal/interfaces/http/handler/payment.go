package handler

import (
	"time"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/cuotas/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Review actions accepted by the PATCH endpoints
const (
	ReviewActionApprove = "APPROVE"
	ReviewActionReject  = "REJECT"
)

// PaymentHandler handles payment intake and review endpoints
type PaymentHandler struct {
	BaseHandler
	intakeService *appbilling.PaymentIntakeService
	reviewService *appbilling.PaymentReviewService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(
	intakeService *appbilling.PaymentIntakeService,
	reviewService *appbilling.PaymentReviewService,
) *PaymentHandler {
	return &PaymentHandler{
		intakeService: intakeService,
		reviewService: reviewService,
	}
}

// CashPaymentRequest represents an administrator-entered cash payment. Notes
// are mandatory, they record who handed the money over at the front desk.
type CashPaymentRequest struct {
	StudentID    uuid.UUID       `json:"student_id" binding:"required"`
	Installments []int           `json:"installments" binding:"required,min=1,dive,min=1"`
	Amount       decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Notes        string          `json:"notes" binding:"required"`
	PaymentDate  *time.Time      `json:"payment_date"`
}

// TransferPaymentRequest represents an administrator-entered bank transfer.
// Transfers are keyed on the student's DNI as it appears on the bank
// statement, not on an internal id.
type TransferPaymentRequest struct {
	StudentDNI   string          `json:"student_dni" binding:"required,dni"`
	Installments []int           `json:"installments" binding:"required,min=1,dive,min=1"`
	Amount       decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Notes        string          `json:"notes"`
	PaymentDate  *time.Time      `json:"payment_date"`
}

// SubmitCash records a cash payment. POST /api/v1/payments/cash
func (h *PaymentHandler) SubmitCash(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var req CashPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.intakeService.SubmitCash(c.Request.Context(), actor, appbilling.SubmitCashRequest{
		StudentID:    req.StudentID,
		Installments: req.Installments,
		Amount:       req.Amount,
		Notes:        req.Notes,
		PaymentDate:  req.PaymentDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// SubmitTransfer records a bank transfer payment.
// POST /api/v1/payments/transfer
func (h *PaymentHandler) SubmitTransfer(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var req TransferPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.intakeService.SubmitTransfer(c.Request.Context(), actor, appbilling.SubmitTransferRequest{
		StudentDNI:   req.StudentDNI,
		Installments: req.Installments,
		Amount:       req.Amount,
		Notes:        req.Notes,
		PaymentDate:  req.PaymentDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// UploadPaymentForm is the multipart form for a student receipt upload. The
// receipt file itself travels in the "receipt" file field.
type UploadPaymentForm struct {
	StudentID    uuid.UUID       `form:"student_id" binding:"required"`
	Installments []int           `form:"installments" binding:"required,min=1,dive,min=1"`
	Amount       decimal.Decimal `form:"amount" binding:"required,gt=0"`
	Notes        string          `form:"notes"`
}

// SubmitUpload accepts a student's receipt upload.
// POST /api/v1/payments/upload (multipart)
func (h *PaymentHandler) SubmitUpload(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var form UploadPaymentForm
	if err := c.ShouldBind(&form); err != nil {
		h.BadRequest(c, "Invalid form data: "+err.Error())
		return
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		h.BadRequest(c, "Receipt file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.InternalError(c, "Failed to read receipt file")
		return
	}
	defer file.Close()

	result, err := h.intakeService.SubmitUpload(c.Request.Context(), actor, appbilling.SubmitUploadRequest{
		StudentID:    form.StudentID,
		Installments: form.Installments,
		Amount:       form.Amount,
		Notes:        form.Notes,
		Filename:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Size:         fileHeader.Size,
		Content:      file,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// ReviewPaymentRequest represents an approve/reject decision
type ReviewPaymentRequest struct {
	Action          string `json:"action" binding:"required,oneof=APPROVE REJECT"`
	RejectionReason string `json:"rejection_reason"`
}

// ReviewPayment applies a decision to a single payment record.
// PATCH /api/v1/payments/:id
func (h *PaymentHandler) ReviewPayment(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid payment ID")
		return
	}
	paymentID := uuid.MustParse(uri.ID)

	var req ReviewPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.reviewService.Review(c.Request.Context(), actor, paymentID, appbilling.ReviewRequest{
		Approve: req.Action == ReviewActionApprove,
		Reason:  req.RejectionReason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// ReviewGroup applies a decision to every record sharing a transaction
// reference. PATCH /api/v1/payments/groups/:transactionRef
func (h *PaymentHandler) ReviewGroup(c *gin.Context) {
	actor, ok := h.getActor(c)
	if !ok {
		return
	}

	transactionRef := c.Param("transactionRef")
	if transactionRef == "" {
		h.BadRequest(c, "Transaction reference is required")
		return
	}

	var req ReviewPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.reviewService.ReviewGroup(c.Request.Context(), actor, transactionRef, appbilling.ReviewRequest{
		Approve: req.Action == ReviewActionApprove,
		Reason:  req.RejectionReason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
