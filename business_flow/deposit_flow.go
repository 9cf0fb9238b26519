package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridianpay/meridian/app/services"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"github.com/meridianpay/meridian/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// DepositFlow handles the deposit order lifecycle
type DepositFlow interface {
	CreateDeposit(ctx context.Context, req *CreateDepositRequest, metadata *ClientMetadata) (*models.DepositOrder, error)
	GetStatus(ctx context.Context, userID uint, reference string) (*models.DepositOrder, error)
	History(ctx context.Context, userID uint, filter *HistoryFilter) ([]*models.DepositOrder, int64, error)
	Export(ctx context.Context, userID uint, filter *HistoryFilter) ([]byte, string, error)
}

type CreateDepositRequest struct {
	UserID      uint
	AmountCents int64
	Currency    string
	ReturnURL   string
}

type HistoryFilter struct {
	Status        *models.DepositOrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Page          int
	PageSize      int
}

// DepositConfig bounds deposit creation
type DepositConfig struct {
	MinAmountCents int64
	MaxAmountCents int64
	OrderTTL       time.Duration
	CallbackURL    string
	ReturnURL      string
}

type depositFlowImpl struct {
	userRepo   repository.UserRepository
	walletRepo repository.WalletRepository
	orderRepo  repository.DepositOrderRepository
	txRepo     repository.CryptoTransactionRepository
	gateway    services.XMoneyClient
	fees       *FeeCalculator
	cfg        DepositConfig
	db         *gorm.DB
}

func NewDepositFlow(
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	orderRepo repository.DepositOrderRepository,
	txRepo repository.CryptoTransactionRepository,
	gateway services.XMoneyClient,
	fees *FeeCalculator,
	cfg DepositConfig,
	db *gorm.DB,
) DepositFlow {
	if cfg.MinAmountCents <= 0 {
		cfg.MinAmountCents = utils.MinDepositAmountCents
	}
	if cfg.MaxAmountCents <= 0 {
		cfg.MaxAmountCents = utils.MaxDepositAmountCents
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = utils.DefaultDepositTTL
	}
	return &depositFlowImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		orderRepo:  orderRepo,
		txRepo:     txRepo,
		gateway:    gateway,
		fees:       fees,
		cfg:        cfg,
		db:         db,
	}
}

func (f *depositFlowImpl) CreateDeposit(ctx context.Context, req *CreateDepositRequest, metadata *ClientMetadata) (*models.DepositOrder, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.AmountCents < f.cfg.MinAmountCents {
		return nil, ErrAmountTooLow
	}
	if req.AmountCents > f.cfg.MaxAmountCents {
		return nil, ErrAmountTooHigh
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = utils.USDCurrency
	}
	if currency != utils.USDCurrency {
		return nil, ErrUnsupportedCurrency
	}

	user, err := getActiveUser(ctx, f.userRepo, req.UserID)
	if err != nil {
		return nil, err
	}
	wallet, err := getWallet(ctx, f.walletRepo, user.ID)
	if err != nil {
		return nil, err
	}

	breakdown, err := f.fees.Calculate(req.AmountCents, user.FeeTier)
	if err != nil {
		return nil, err
	}

	reference := utils.NewDepositReference()
	expiresAt := utils.UTCNowAdd(f.cfg.OrderTTL)

	// Persist the pending row before touching the gateway: a remote
	// order must never exist without a local reference to resolve its
	// webhook against. A gateway failure leaves the row pending with no
	// gateway ID; the sweeper expires it.
	order := &models.DepositOrder{
		UserID:      user.ID,
		WalletID:    wallet.ID,
		Reference:   reference,
		AmountCents: breakdown.AmountCents,
		Currency:    currency,
		FeeCents:    breakdown.FeeCents,
		NetCents:    breakdown.NetCents,
		FeePercent:  breakdown.FeePercent,
		Status:      models.DepositOrderStatusPending,
		ExpiresAt:   &expiresAt,
	}
	if err := f.orderRepo.Save(ctx, order); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateReference
		}
		return nil, NewBusinessError("ORDER_PERSIST_FAILED", "Failed to persist deposit order", err)
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = f.cfg.ReturnURL
	}

	gwOrder, err := f.gateway.CreateOrder(ctx, services.XMoneyCreateOrderInput{
		Reference:   reference,
		AmountCents: breakdown.AmountCents,
		Currency:    currency,
		CallbackURL: f.cfg.CallbackURL,
		ReturnURL:   returnURL,
		CustomerRef: user.UUID.String(),
		Description: "deposit " + reference,
		LifetimeMin: int(f.cfg.OrderTTL / time.Minute),
	})
	if err != nil {
		return nil, NewBusinessError("GATEWAY_ORDER_FAILED", "Failed to create gateway order", errors.Join(ErrGatewayUnavailable, err))
	}

	order.GatewayOrderID = gwOrder.GatewayOrderID
	order.RedirectURL = gwOrder.RedirectURL
	if gwOrder.ExpiresAt != nil {
		t := gwOrder.ExpiresAt.UTC()
		order.ExpiresAt = &t
	}
	if err := f.orderRepo.Update(ctx, order); err != nil {
		return nil, NewBusinessError("ORDER_PERSIST_FAILED", "Failed to persist deposit order", err)
	}
	return order, nil
}

// GetStatus returns the caller's order by reference together with its
// crypto transactions. For pending orders it refreshes expiry lazily and
// attempts a best-effort gateway lookup; gateway failures never fail the
// read.
func (f *depositFlowImpl) GetStatus(ctx context.Context, userID uint, reference string) (*models.DepositOrder, error) {
	order, err := f.orderRepo.ByReference(ctx, reference)
	if err != nil {
		return nil, NewBusinessError("ORDER_LOOKUP_FAILED", "Failed to load deposit order", err)
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}

	if order.IsPending() && order.IsExpired() {
		res, err := f.orderRepo.Transition(ctx, order.ID,
			models.DepositOrderStatusPending, models.DepositOrderStatusExpired,
			map[string]any{"status_reason": "ttl elapsed"})
		if err != nil {
			return nil, NewBusinessError("ORDER_EXPIRE_FAILED", "Failed to expire deposit order", err)
		}
		order = res.Order
	} else if order.IsPending() && order.GatewayOrderID != "" {
		if gwOrder, err := f.gateway.GetOrder(ctx, order.GatewayOrderID); err == nil {
			f.absorbGatewayDetails(ctx, order, gwOrder)
		}
	}

	if err := f.attachTransactions(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (f *depositFlowImpl) attachTransactions(ctx context.Context, order *models.DepositOrder) error {
	txs, err := f.txRepo.ByOrderID(ctx, order.ID)
	if err != nil {
		return NewBusinessError("TRANSACTION_LOOKUP_FAILED", "Failed to load order transactions", err)
	}
	order.Transactions = make([]models.CryptoTransaction, 0, len(txs))
	for _, tx := range txs {
		order.Transactions = append(order.Transactions, *tx)
	}
	return nil
}

// absorbGatewayDetails copies crypto details reported by the gateway
// onto a pending order. Status transitions stay webhook-driven; only
// informational fields are updated here.
func (f *depositFlowImpl) absorbGatewayDetails(ctx context.Context, order *models.DepositOrder, gwOrder *services.XMoneyOrder) {
	changed := false
	if gwOrder.CryptoCurrency != "" && gwOrder.CryptoCurrency != order.CryptoCurrency {
		order.CryptoCurrency = gwOrder.CryptoCurrency
		changed = true
	}
	if gwOrder.CryptoAmount != "" && gwOrder.CryptoAmount != order.CryptoAmount {
		order.CryptoAmount = gwOrder.CryptoAmount
		changed = true
	}
	if gwOrder.TxHash != "" && gwOrder.TxHash != order.TxHash {
		order.TxHash = gwOrder.TxHash
		changed = true
	}
	if changed {
		_ = f.orderRepo.Update(ctx, order)
	}
}

func (f *depositFlowImpl) History(ctx context.Context, userID uint, filter *HistoryFilter) ([]*models.DepositOrder, int64, error) {
	if filter == nil {
		filter = &HistoryFilter{}
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	orderFilter := models.DepositOrderFilter{
		UserID:        &userID,
		Status:        filter.Status,
		CreatedAfter:  filter.CreatedAfter,
		CreatedBefore: filter.CreatedBefore,
	}
	total, err := f.orderRepo.Count(ctx, orderFilter)
	if err != nil {
		return nil, 0, NewBusinessError("ORDER_COUNT_FAILED", "Failed to count deposit orders", err)
	}
	offset := (filter.Page - 1) * filter.PageSize
	orders, err := f.orderRepo.ByFilter(ctx, orderFilter, "created_at DESC", filter.PageSize, offset)
	if err != nil {
		return nil, 0, NewBusinessError("ORDER_LIST_FAILED", "Failed to list deposit orders", err)
	}
	return orders, total, nil
}

var exportHeaders = []string{"Reference", "Status", "Amount", "Fee", "Net", "Currency", "Crypto", "Tx Hash", "Created At", "Paid At"}

func (f *depositFlowImpl) Export(ctx context.Context, userID uint, filter *HistoryFilter) ([]byte, string, error) {
	if filter == nil {
		filter = &HistoryFilter{}
	}
	orderFilter := models.DepositOrderFilter{
		UserID:        &userID,
		Status:        filter.Status,
		CreatedAfter:  filter.CreatedAfter,
		CreatedBefore: filter.CreatedBefore,
	}
	orders, err := f.orderRepo.ByFilter(ctx, orderFilter, "created_at DESC", 10000, 0)
	if err != nil {
		return nil, "", NewBusinessError("ORDER_EXPORT_FAILED", "Failed to load deposit orders for export", err)
	}

	file := excelize.NewFile()
	defer file.Close()
	sheet := "Deposits"
	file.SetSheetName("Sheet1", sheet)
	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}
	for row, order := range orders {
		paidAt := ""
		if order.PaidAt != nil {
			paidAt = order.PaidAt.Format(time.RFC3339)
		}
		values := []any{
			order.Reference,
			string(order.Status),
			centsToDecimal(order.AmountCents),
			centsToDecimal(order.FeeCents),
			centsToDecimal(order.NetCents),
			order.Currency,
			order.CryptoCurrency,
			order.TxHash,
			order.CreatedAt.Format(time.RFC3339),
			paidAt,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, "", NewBusinessError("ORDER_EXPORT_FAILED", "Failed to write export file", err)
	}
	filename := fmt.Sprintf("deposits-%d.xlsx", utils.UTCNowUnix())
	return buf.Bytes(), filename, nil
}

func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
