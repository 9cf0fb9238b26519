package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/meridianpay/meridian/app/dto"
	"github.com/meridianpay/meridian/app/middleware"
	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/meridianpay/meridian/utils"
)

type WalletHandlerInterface interface {
	GetWallet(c fiber.Ctx) error
	GetLedger(c fiber.Ctx) error
}

type WalletHandler struct {
	flow businessflow.WalletFlow
}

func NewWalletHandler(flow businessflow.WalletFlow) *WalletHandler {
	return &WalletHandler{flow: flow}
}

// GetWallet returns the caller's wallet balance
// @Summary Get Wallet
// @Description Get the current wallet balance
// @Tags Wallet
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.WalletResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/wallet [get]
func (h *WalletHandler) GetWallet(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	wallet, err := h.flow.GetWallet(h.requestCtx(c, "/api/v1/wallet"), userID)
	if err != nil {
		return mapWalletErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Wallet", Data: dto.NewWalletResponse(wallet)})
}

// GetLedger returns the caller's ledger entries, newest first
// @Summary Get Wallet Ledger
// @Description Paginated list of ledger entries for the caller's wallet
// @Tags Wallet
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.APIResponse{data=[]dto.LedgerEntryResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/wallet/ledger [get]
func (h *WalletHandler) GetLedger(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Unauthorized", Error: dto.ErrorDetail{Code: "MISSING_USER_ID"}})
	}
	limit := fiber.Query(c, "limit", 20)
	offset := fiber.Query(c, "offset", 0)
	entries, err := h.flow.GetLedger(h.requestCtx(c, "/api/v1/wallet/ledger"), userID, limit, offset)
	if err != nil {
		return mapWalletErr(c, err)
	}
	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewLedgerEntryResponse(entry))
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Wallet ledger", Data: items})
}

func (h *WalletHandler) requestCtx(c fiber.Ctx, endpoint string) context.Context {
	return context.WithValue(context.Background(), utils.EndpointKey, endpoint)
}

func mapWalletErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsUserNotFound(err):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "User not found", Error: dto.ErrorDetail{Code: "USER_NOT_FOUND"}})
	case businessflow.IsWalletNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Wallet not found", Error: dto.ErrorDetail{Code: "WALLET_NOT_FOUND"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Wallet operation failed", Error: dto.ErrorDetail{Code: "WALLET_OPERATION_FAILED", Details: err.Error()}})
	}
}
