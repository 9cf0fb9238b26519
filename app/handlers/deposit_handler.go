// Package handlers contains HTTP request handlers for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/meridianpay/meridian/app/dto"
	"github.com/meridianpay/meridian/app/middleware"
	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/utils"
)

type DepositHandlerInterface interface {
	Create(c fiber.Ctx) error
	GetStatus(c fiber.Ctx) error
	History(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

type DepositHandler struct {
	flow      businessflow.DepositFlow
	validator *validator.Validate
}

func NewDepositHandler(flow businessflow.DepositFlow) *DepositHandler {
	return &DepositHandler{flow: flow, validator: validator.New()}
}

// Create opens a new deposit order against the payment gateway
// @Summary Create Deposit Order
// @Description Create a fiat-denominated deposit order and receive the gateway payment URL
// @Tags Deposits
// @Accept json
// @Produce json
// @Param request body dto.CreateDepositRequest true "Deposit order payload"
// @Success 201 {object} dto.APIResponse{data=dto.DepositOrderResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 502 {object} dto.APIResponse
// @Router /api/v1/deposits [post]
func (h *DepositHandler) Create(c fiber.Ctx) error {
	var req dto.CreateDepositRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	req.UserID = userID
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	order, err := h.flow.CreateDeposit(h.requestCtx(c, "/api/v1/deposits"), &businessflow.CreateDepositRequest{
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		ReturnURL:   req.ReturnURL,
	}, meta)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{Success: true, Message: "Deposit order created", Data: dto.NewDepositOrderResponse(order)})
}

// GetStatus returns the current status of a deposit order
// @Summary Get Deposit Status
// @Description Get the current status of a deposit order by reference
// @Tags Deposits
// @Produce json
// @Param reference path string true "Deposit order reference"
// @Success 200 {object} dto.APIResponse{data=dto.DepositOrderResponse}
// @Failure 401 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/deposits/{reference} [get]
func (h *DepositHandler) GetStatus(c fiber.Ctx) error {
	reference := c.Params("reference")
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	order, err := h.flow.GetStatus(h.requestCtx(c, "/api/v1/deposits/"+reference), userID, reference)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposit order status", Data: dto.NewDepositOrderResponse(order)})
}

// History returns the caller's deposit orders, newest first
// @Summary List Deposit Orders
// @Description Paginated deposit order history with optional status and date filters
// @Tags Deposits
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, paid, expired, cancelled)
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.DepositHistoryResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/deposits [get]
func (h *DepositHandler) History(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	filter, err := historyFilterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid query parameters", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	orders, total, err := h.flow.History(h.requestCtx(c, "/api/v1/deposits"), userID, filter)
	if err != nil {
		return mapDepositErr(c, err)
	}
	items := make([]dto.DepositOrderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, dto.NewDepositOrderResponse(order))
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposit history", Data: dto.DepositHistoryResponse{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}})
}

// Export downloads the caller's deposit history as an xlsx file
// @Summary Export Deposit Orders
// @Description Download deposit order history as an Excel file
// @Tags Deposits
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Filter by status" Enums(pending, paid, expired, cancelled)
// @Success 200 {file} file
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/deposits/export [get]
func (h *DepositHandler) Export(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	filter, err := historyFilterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid query parameters", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	content, filename, err := h.flow.Export(h.requestCtx(c, "/api/v1/deposits/export"), userID, filter)
	if err != nil {
		return mapDepositErr(c, err)
	}
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}

func historyFilterFromQuery(c fiber.Ctx) (*businessflow.HistoryFilter, error) {
	filter := &businessflow.HistoryFilter{
		Page:     fiber.Query(c, "page", 1),
		PageSize: fiber.Query(c, "page_size", 20),
	}
	if status := c.Query("status"); status != "" {
		s := models.DepositOrderStatus(status)
		filter.Status = &s
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, err
		}
		filter.CreatedAfter = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, err
		}
		filter.CreatedBefore = &t
	}
	return filter, nil
}

func (h *DepositHandler) requestCtx(c fiber.Ctx, endpoint string) context.Context {
	return context.WithValue(context.Background(), utils.EndpointKey, endpoint)
}

func mapDepositErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsUserNotFound(err):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "User not found", Error: dto.ErrorDetail{Code: "USER_NOT_FOUND"}})
	case businessflow.IsWalletNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Wallet not found", Error: dto.ErrorDetail{Code: "WALLET_NOT_FOUND"}})
	case businessflow.IsOrderNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Deposit order not found", Error: dto.ErrorDetail{Code: "ORDER_NOT_FOUND"}})
	case businessflow.IsDuplicateReference(err):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{Success: false, Message: "Duplicate deposit reference", Error: dto.ErrorDetail{Code: "DUPLICATE_REFERENCE"}})
	case businessflow.IsValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid deposit request", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	case businessflow.IsGatewayUnavailable(err):
		return c.Status(fiber.StatusBadGateway).JSON(dto.APIResponse{Success: false, Message: "Payment gateway unavailable", Error: dto.ErrorDetail{Code: "GATEWAY_UNAVAILABLE"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Deposit operation failed", Error: dto.ErrorDetail{Code: "DEPOSIT_OPERATION_FAILED", Details: err.Error()}})
	}
}
