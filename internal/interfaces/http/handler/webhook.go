package handler

import (
	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler handles payment gateway notification endpoints. These are
// called by the gateway itself and do not require authentication; the
// notification is verified by re-fetching the payment from the gateway API.
type WebhookHandler struct {
	BaseHandler
	webhookService *appbilling.GatewayWebhookService
	logger         *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhookService *appbilling.GatewayWebhookService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// gatewayNotification is the gateway's webhook payload. Newer notifications
// carry a JSON body; older ones put topic and id in the query string.
type gatewayNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HandleGatewayNotification processes a payment gateway notification.
// POST /api/v1/webhooks/gateway
//
// The gateway treats any non-2xx as a delivery failure and retries with
// backoff. The service consumes business-level reconciliation failures
// itself (retrying those can never succeed), so an error here is transient
// and answered with 500 to trigger the gateway's retry.
func (h *WebhookHandler) HandleGatewayNotification(c *gin.Context) {
	req, ok := h.parseNotification(c)
	if !ok {
		h.BadRequest(c, "Malformed notification payload")
		return
	}

	if err := h.webhookService.ProcessNotification(c.Request.Context(), req); err != nil {
		h.logger.Error("Gateway notification processing failed",
			zap.String("notification_type", req.Type),
			zap.String("payment_id", req.DataID),
			zap.Error(err))
		h.InternalError(c, "Notification processing failed")
		return
	}

	h.Success(c, gin.H{"received": true})
}

// parseNotification extracts the notification from body or query parameters
func (h *WebhookHandler) parseNotification(c *gin.Context) (appbilling.NotificationRequest, bool) {
	var body gatewayNotification
	if err := c.ShouldBindJSON(&body); err == nil && body.Data.ID != "" {
		return appbilling.NotificationRequest{Type: body.Type, DataID: body.Data.ID}, true
	}

	topic := c.Query("topic")
	if topic == "" {
		topic = c.Query("type")
	}
	id := c.Query("id")
	if id == "" {
		id = c.Query("data.id")
	}
	if id == "" {
		return appbilling.NotificationRequest{}, false
	}
	return appbilling.NotificationRequest{Type: topic, DataID: id}, true
}
