package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/meridianpay/meridian/app/dto"
	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/meridianpay/meridian/utils"
)

type WebhookHandlerInterface interface {
	XMoney(c fiber.Ctx) error
}

type WebhookHandler struct {
	flow businessflow.WebhookFlow
}

func NewWebhookHandler(flow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{flow: flow}
}

// XMoney receives payment event callbacks from the xMoney gateway.
// Every verified delivery is acknowledged with 200, including no-ops
// and unknown references, so the gateway stops retrying. Only a failed
// signature check returns 401.
// @Summary xMoney Webhook
// @Description Receives xMoney payment events and reconciles deposit orders
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Signature header string false "HMAC-SHA256 payload signature; falls back to the body signature field"
// @Success 200 {object} dto.APIResponse{data=businessflow.WebhookOutcome}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/webhooks/xmoney [post]
func (h *WebhookHandler) XMoney(c fiber.Ctx) error {
	signature := c.Get("X-Signature")
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	outcome, err := h.flow.HandleDelivery(h.requestCtx(c), c.Body(), signature, meta)
	if err != nil {
		if businessflow.IsInvalidSignature(err) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Invalid webhook signature", Error: dto.ErrorDetail{Code: "INVALID_SIGNATURE"}})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Webhook processing failed", Error: dto.ErrorDetail{Code: "WEBHOOK_PROCESSING_FAILED"}})
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Webhook processed", Data: outcome})
}

func (h *WebhookHandler) requestCtx(c fiber.Ctx) context.Context {
	return context.WithValue(context.Background(), utils.EndpointKey, "/api/v1/webhooks/xmoney")
}
