package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianpay/meridian/app/services"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"github.com/meridianpay/meridian/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// xMoney webhook event types
const (
	EventPaymentDetected  = "ORDER.PAYMENT.DETECTED"
	EventPaymentReceived  = "ORDER.PAYMENT.RECEIVED"
	EventPaymentCancelled = "ORDER.PAYMENT.CANCELLED"
)

// Webhook outcome labels for metrics and responses
const (
	OutcomeApplied      = "applied"
	OutcomeNoop         = "noop"
	OutcomeUnknownRef   = "unknown_reference"
	OutcomeUnknownEvent = "unknown_event"
)

var (
	webhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_webhook_events_total",
		Help: "Webhook deliveries by event type and outcome",
	}, []string{"event", "outcome"})

	webhookDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_webhook_duplicate_deliveries_total",
		Help: "Webhook deliveries whose event ID was already seen",
	})
)

// WebhookPayload is the parsed xMoney webhook body. The signature
// travels inside the body and is stripped before canonicalization.
type WebhookPayload struct {
	EventID   string          `json:"event_id,omitempty"`
	EventType string          `json:"event_type"`
	Resource  WebhookResource `json:"resource"`
	Signature string          `json:"signature,omitempty"`
	State     string          `json:"state,omitempty"`
}

// WebhookResource is the payment snapshot inside a webhook delivery.
// Amount and currency describe the crypto leg as the gateway saw it.
type WebhookResource struct {
	Reference      string `json:"reference"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	GatewayOrderID string `json:"order_id,omitempty"`
	ExchangeRate   string `json:"exchange_rate,omitempty"`
	TxHash         string `json:"transaction_hash,omitempty"`
	Confirmations  int    `json:"confirmations,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// WebhookOutcome reports what the reconciler did with a verified delivery
type WebhookOutcome struct {
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Outcome   string `json:"outcome"`
}

// WebhookFlow reconciles gateway payment events against deposit orders.
// Verified deliveries are always acknowledged: unknown references,
// unknown events and already-final orders are no-ops, never errors.
type WebhookFlow interface {
	HandleDelivery(ctx context.Context, body []byte, signature string, metadata *ClientMetadata) (*WebhookOutcome, error)
	// ReconcileUncredited repairs paid orders whose ledger credit never
	// landed, e.g. after a crash between the paid transition and the
	// wallet update. Returns how many orders were scanned and repaired.
	ReconcileUncredited(ctx context.Context, limit int) (scanned, repaired int, err error)
}

type webhookFlowImpl struct {
	orderRepo repository.DepositOrderRepository
	txRepo    repository.CryptoTransactionRepository
	ledger    LedgerService
	verifier  *services.WebhookVerifier
	redis     redis.UniversalClient
	db        *gorm.DB
}

func NewWebhookFlow(
	orderRepo repository.DepositOrderRepository,
	txRepo repository.CryptoTransactionRepository,
	ledger LedgerService,
	verifier *services.WebhookVerifier,
	redisClient redis.UniversalClient,
	db *gorm.DB,
) WebhookFlow {
	return &webhookFlowImpl{
		orderRepo: orderRepo,
		txRepo:    txRepo,
		ledger:    ledger,
		verifier:  verifier,
		redis:     redisClient,
		db:        db,
	}
}

func (f *webhookFlowImpl) HandleDelivery(ctx context.Context, body []byte, signature string, metadata *ClientMetadata) (*WebhookOutcome, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewBusinessError("WEBHOOK_MALFORMED", "Webhook payload is not valid JSON", ErrInvalidSignature)
	}

	// The signature usually arrives in the body; an X-Signature header
	// takes precedence when the gateway sends both.
	if signature == "" {
		signature = payload.Signature
	}
	if err := f.verifier.Verify(body, signature); err != nil {
		return nil, NewBusinessError("WEBHOOK_SIGNATURE_INVALID", "Webhook signature verification failed", ErrInvalidSignature)
	}

	f.trackDelivery(ctx, &payload)

	outcome, err := f.dispatch(ctx, &payload)
	if err != nil {
		return nil, err
	}
	webhookOutcomes.WithLabelValues(payload.EventType, outcome.Outcome).Inc()
	return outcome, nil
}

// trackDelivery records the event ID in Redis for duplicate-delivery
// observability. Best effort; idempotency never depends on it.
func (f *webhookFlowImpl) trackDelivery(ctx context.Context, payload *WebhookPayload) {
	if f.redis == nil || payload.EventID == "" {
		return
	}
	key := "webhook:delivery:" + payload.EventID
	set, err := f.redis.SetNX(ctx, key, utils.UTCNowUnix(), 24*time.Hour).Result()
	if err == nil && !set {
		webhookDuplicates.Inc()
	}
}

func (f *webhookFlowImpl) dispatch(ctx context.Context, payload *WebhookPayload) (*WebhookOutcome, error) {
	reference := payload.Resource.Reference
	order, err := f.resolveOrder(ctx, payload)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return &WebhookOutcome{Event: payload.EventType, Reference: reference, Outcome: OutcomeUnknownRef}, nil
	}

	switch payload.EventType {
	case EventPaymentDetected:
		return f.handleDetected(ctx, order, payload)
	case EventPaymentReceived:
		return f.handleReceived(ctx, order, payload)
	case EventPaymentCancelled:
		return f.handleCancelled(ctx, order, payload)
	default:
		return &WebhookOutcome{Event: payload.EventType, Reference: order.Reference, Outcome: OutcomeUnknownEvent}, nil
	}
}

func (f *webhookFlowImpl) resolveOrder(ctx context.Context, payload *WebhookPayload) (*models.DepositOrder, error) {
	if payload.Resource.Reference != "" {
		order, err := f.orderRepo.ByReference(ctx, payload.Resource.Reference)
		if err != nil {
			return nil, NewBusinessError("ORDER_LOOKUP_FAILED", "Failed to resolve order by reference", err)
		}
		if order != nil {
			return order, nil
		}
	}
	if payload.Resource.GatewayOrderID != "" {
		order, err := f.orderRepo.ByGatewayOrderID(ctx, payload.Resource.GatewayOrderID)
		if err != nil {
			return nil, NewBusinessError("ORDER_LOOKUP_FAILED", "Failed to resolve order by gateway ID", err)
		}
		return order, nil
	}
	return nil, nil
}

// handleDetected records on-chain payment details on a pending order.
// The order status does not change; only PAYMENT.RECEIVED marks paid.
func (f *webhookFlowImpl) handleDetected(ctx context.Context, order *models.DepositOrder, payload *WebhookPayload) (*WebhookOutcome, error) {
	if !order.IsPending() {
		return &WebhookOutcome{Event: payload.EventType, Reference: order.Reference, Outcome: OutcomeNoop}, nil
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		order.CryptoCurrency = payload.Resource.Currency
		order.CryptoAmount = payload.Resource.Amount
		order.TxHash = payload.Resource.TxHash
		if err := f.orderRepo.Update(txCtx, order); err != nil {
			return err
		}

		// Resolve within the order only; tx hashes from the gateway may
		// be absent or repeated across orders.
		txs, err := f.txRepo.ByOrderID(txCtx, order.ID)
		if err != nil {
			return err
		}
		var existing *models.CryptoTransaction
		for _, tx := range txs {
			if tx.TxHash == payload.Resource.TxHash {
				existing = tx
				break
			}
		}
		if existing != nil {
			existing.Confirmations = payload.Resource.Confirmations
			if existing.Status == models.CryptoTransactionStatusPending {
				existing.Status = models.CryptoTransactionStatusConfirming
			}
			return f.txRepo.Save(txCtx, existing)
		}

		tx := &models.CryptoTransaction{
			OrderID:        order.ID,
			UserID:         order.UserID,
			CryptoCurrency: payload.Resource.Currency,
			CryptoAmount:   payload.Resource.Amount,
			ExchangeRate:   payload.Resource.ExchangeRate,
			FiatCurrency:   order.Currency,
			FiatCents:      order.AmountCents,
			FeeCents:       order.FeeCents,
			TxHash:         payload.Resource.TxHash,
			Confirmations:  payload.Resource.Confirmations,
			Status:         models.CryptoTransactionStatusConfirming,
		}
		return f.txRepo.Save(txCtx, tx)
	})
	if err != nil {
		return nil, NewBusinessError("DETECTION_RECORD_FAILED", "Failed to record payment detection", err)
	}
	return &WebhookOutcome{Event: payload.EventType, Reference: order.Reference, Outcome: OutcomeApplied}, nil
}

// handleReceived is the crediting path. The conditional pending->paid
// update decides the winner under concurrent deliveries; only the
// winning delivery writes the completed transaction and ledger credit.
func (f *webhookFlowImpl) handleReceived(ctx context.Context, order *models.DepositOrder, payload *WebhookPayload) (*WebhookOutcome, error) {
	outcome := &WebhookOutcome{Event: payload.EventType, Reference: order.Reference}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		now := utils.UTCNow()
		patch := map[string]any{
			"paid_at":       now,
			"status_reason": "payment received",
		}
		if payload.Resource.Currency != "" {
			patch["crypto_currency"] = payload.Resource.Currency
		}
		if payload.Resource.Amount != "" {
			patch["crypto_amount"] = payload.Resource.Amount
		}
		if payload.Resource.TxHash != "" {
			patch["tx_hash"] = payload.Resource.TxHash
		}

		res, err := f.orderRepo.Transition(txCtx, order.ID,
			models.DepositOrderStatusPending, models.DepositOrderStatusPaid, patch)
		if err != nil {
			return err
		}
		if !res.Applied {
			outcome.Outcome = OutcomeNoop
			return nil
		}

		if err := f.recordCompletedTransaction(txCtx, res.Order, payload); err != nil {
			return err
		}
		if err := f.creditOrder(txCtx, res.Order); err != nil {
			return err
		}
		outcome.Outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("CREDIT_FAILED", "Failed to credit deposit", err)
	}
	return outcome, nil
}

// recordCompletedTransaction upgrades the confirming transaction when
// one exists, otherwise creates the completed row directly. At most one
// completed transaction exists per order because only the winning
// transition reaches this point.
func (f *webhookFlowImpl) recordCompletedTransaction(ctx context.Context, order *models.DepositOrder, payload *WebhookPayload) error {
	existing, err := f.txRepo.CompletedForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	txs, err := f.txRepo.ByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if tx.Status == models.CryptoTransactionStatusConfirming || tx.Status == models.CryptoTransactionStatusPending {
			tx.Status = models.CryptoTransactionStatusCompleted
			tx.Confirmations = payload.Resource.Confirmations
			if payload.Resource.TxHash != "" {
				tx.TxHash = payload.Resource.TxHash
			}
			return f.txRepo.Save(ctx, tx)
		}
	}

	tx := &models.CryptoTransaction{
		OrderID:        order.ID,
		UserID:         order.UserID,
		CryptoCurrency: payload.Resource.Currency,
		CryptoAmount:   payload.Resource.Amount,
		ExchangeRate:   payload.Resource.ExchangeRate,
		FiatCurrency:   order.Currency,
		FiatCents:      order.AmountCents,
		FeeCents:       order.FeeCents,
		TxHash:         payload.Resource.TxHash,
		Confirmations:  payload.Resource.Confirmations,
		Status:         models.CryptoTransactionStatusCompleted,
	}
	return f.txRepo.Save(ctx, tx)
}

// creditOrder writes the gross credit and the fee debit so the wallet
// ends up with the net amount and the ledger shows the fee explicitly.
func (f *webhookFlowImpl) creditOrder(ctx context.Context, order *models.DepositOrder) error {
	correlationID := order.CorrelationID

	_, err := f.ledger.Credit(ctx, &LedgerMutation{
		WalletID:      order.WalletID,
		UserID:        order.UserID,
		AmountCents:   order.AmountCents,
		Type:          models.LedgerEntryTypeDeposit,
		ReferenceType: models.LedgerReferenceTypeOrder,
		ReferenceID:   order.ID,
		Description:   fmt.Sprintf("deposit %s", order.Reference),
		CorrelationID: correlationID,
	})
	if err != nil {
		return err
	}
	if order.FeeCents == 0 {
		return nil
	}
	_, err = f.ledger.Debit(ctx, &LedgerMutation{
		WalletID:      order.WalletID,
		UserID:        order.UserID,
		AmountCents:   order.FeeCents,
		Type:          models.LedgerEntryTypeFee,
		ReferenceType: models.LedgerReferenceTypeOrder,
		ReferenceID:   order.ID,
		Description:   fmt.Sprintf("deposit fee %s (%.2f%%)", order.Reference, order.FeePercent),
		CorrelationID: correlationID,
	})
	return err
}

// ReconcileUncredited scans paid orders missing their completed
// transaction and replays the crediting step for each. The normal path
// writes both in one transaction, so hits here point at manual
// interventions or partial restores.
func (f *webhookFlowImpl) ReconcileUncredited(ctx context.Context, limit int) (scanned, repaired int, err error) {
	orders, err := f.orderRepo.PaidUncredited(ctx, limit)
	if err != nil {
		return 0, 0, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to scan paid uncredited orders", err)
	}

	for _, order := range orders {
		scanned++
		o := order
		txErr := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
			existing, err := f.txRepo.CompletedForOrder(txCtx, o.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			payload := &WebhookPayload{
				Resource: WebhookResource{
					Reference: o.Reference,
					Currency:  o.CryptoCurrency,
					Amount:    o.CryptoAmount,
					TxHash:    o.TxHash,
				},
			}
			if err := f.recordCompletedTransaction(txCtx, o, payload); err != nil {
				return err
			}
			return f.creditOrder(txCtx, o)
		})
		if txErr != nil {
			return scanned, repaired, NewBusinessError("RECONCILE_REPAIR_FAILED", "Failed to repair uncredited order", txErr)
		}
		repaired++
	}
	return scanned, repaired, nil
}

func (f *webhookFlowImpl) handleCancelled(ctx context.Context, order *models.DepositOrder, payload *WebhookPayload) (*WebhookOutcome, error) {
	reason := payload.Resource.Reason
	if reason == "" {
		reason = "cancelled by gateway"
	}
	res, err := f.orderRepo.Transition(ctx, order.ID,
		models.DepositOrderStatusPending, models.DepositOrderStatusCancelled,
		map[string]any{
			"cancelled_at":  utils.UTCNow(),
			"status_reason": reason,
		})
	if err != nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Failed to cancel deposit order", err)
	}
	outcome := OutcomeNoop
	if res.Applied {
		outcome = OutcomeApplied
	}
	return &WebhookOutcome{Event: payload.EventType, Reference: order.Reference, Outcome: outcome}, nil
}
