package businessflow_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	businessflow "github.com/meridianpay/meridian/business_flow"

	"github.com/meridianpay/meridian/app/services"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	testingutil "github.com/meridianpay/meridian/testing"
	"github.com/meridianpay/meridian/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_flow_test"

type webhookTestEnv struct {
	db       *testingutil.TestDB
	fixtures *testingutil.TestFixtures
	verifier *services.WebhookVerifier

	orderRepo  repository.DepositOrderRepository
	txRepo     repository.CryptoTransactionRepository
	walletRepo repository.WalletRepository
	ledgerRepo repository.LedgerEntryRepository

	flow businessflow.WebhookFlow
}

func setupWebhookTest(t *testing.T) *webhookTestEnv {
	t.Helper()
	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("teardown: %v", err)
		}
	})

	env := &webhookTestEnv{
		db:         testDB,
		fixtures:   testingutil.NewTestFixtures(testDB),
		verifier:   services.NewWebhookVerifier(testWebhookSecret),
		orderRepo:  repository.NewDepositOrderRepository(testDB.DB),
		txRepo:     repository.NewCryptoTransactionRepository(testDB.DB),
		walletRepo: repository.NewWalletRepository(testDB.DB),
		ledgerRepo: repository.NewLedgerEntryRepository(testDB.DB),
	}
	ledger := businessflow.NewLedgerService(env.walletRepo, env.ledgerRepo, testDB.DB)
	env.flow = businessflow.NewWebhookFlow(env.orderRepo, env.txRepo, ledger, env.verifier, nil, testDB.DB)
	return env
}

// deliver signs and submits a webhook body the way the gateway would
func (env *webhookTestEnv) deliver(t *testing.T, body string) (*businessflow.WebhookOutcome, error) {
	t.Helper()
	sig, err := env.verifier.Sign([]byte(body))
	require.NoError(t, err)
	return env.flow.HandleDelivery(testingutil.CreateTestContext(), []byte(body), sig, nil)
}

func receivedBody(eventID, reference, txHash string) string {
	return fmt.Sprintf(`{"event_id":%q,"event_type":"ORDER.PAYMENT.RECEIVED","resource":{"reference":%q,"amount":"0.0015","currency":"BTC","exchange_rate":"66000.00","transaction_hash":%q,"confirmations":6}}`,
		eventID, reference, txHash)
}

func TestWebhookFlowPaymentReceived(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
	require.NoError(t, err)

	t.Run("FirstDeliveryCredits", func(t *testing.T) {
		outcome, err := env.deliver(t, receivedBody("evt_1", order.Reference, "0xfeed"))
		require.NoError(t, err)
		assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)
		assert.Equal(t, order.Reference, outcome.Reference)

		updated, err := env.orderRepo.ByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositOrderStatusPaid, updated.Status)
		require.NotNil(t, updated.PaidAt)
		assert.Equal(t, "0xfeed", updated.TxHash)

		// Wallet holds the net amount: 100.00 gross minus the 2% fee
		w, err := env.walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, order.NetCents, w.BalanceCents)
		assert.Equal(t, int64(9800), w.BalanceCents)

		completed, err := env.txRepo.CompletedForOrder(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, completed)
		assert.Equal(t, "BTC", completed.CryptoCurrency)
		assert.Equal(t, 6, completed.Confirmations)
	})

	t.Run("RedeliveriesAreNoops", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			outcome, err := env.deliver(t, receivedBody("evt_1", order.Reference, "0xfeed"))
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeNoop, outcome.Outcome)
		}

		// Balance and transaction count are unchanged
		w, err := env.walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, order.NetCents, w.BalanceCents)

		txs, err := env.txRepo.ByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("LedgerShowsGrossCreditAndFeeDebit", func(t *testing.T) {
		entries, err := env.ledgerRepo.ByReference(ctx, models.LedgerReferenceTypeOrder, order.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		byType := map[models.LedgerEntryType]*models.LedgerEntry{}
		for _, e := range entries {
			byType[e.Type] = e
			assert.True(t, e.Balanced())
			assert.Equal(t, order.CorrelationID, e.CorrelationID)
		}

		deposit := byType[models.LedgerEntryTypeDeposit]
		require.NotNil(t, deposit)
		assert.Equal(t, order.AmountCents, deposit.AmountCents)
		assert.Equal(t, int64(0), deposit.BalanceBeforeCents)

		fee := byType[models.LedgerEntryTypeFee]
		require.NotNil(t, fee)
		assert.Equal(t, -order.FeeCents, fee.AmountCents)
		assert.Equal(t, order.NetCents, fee.BalanceAfterCents)
	})
}

func TestWebhookFlowDetectedThenReceived(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierVIP)
	require.NoError(t, err)
	order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 20000)
	require.NoError(t, err)

	detected := fmt.Sprintf(`{"event_id":"evt_d1","event_type":"ORDER.PAYMENT.DETECTED","resource":{"reference":%q,"amount":"0.08","currency":"ETH","exchange_rate":"2500.00","transaction_hash":"0xbeef","confirmations":1}}`, order.Reference)
	outcome, err := env.deliver(t, detected)
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)

	// Detection records the payment but never changes the order status
	updated, err := env.orderRepo.ByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositOrderStatusPending, updated.Status)
	assert.Equal(t, "ETH", updated.CryptoCurrency)

	txs, err := env.txRepo.ByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.CryptoTransactionStatusConfirming, txs[0].Status)

	w, err := env.walletRepo.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.BalanceCents, "detection must not credit")

	// The received event upgrades the confirming row instead of adding one
	outcome, err = env.deliver(t, receivedBody("evt_d2", order.Reference, "0xbeef"))
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)

	txs, err = env.txRepo.ByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.CryptoTransactionStatusCompleted, txs[0].Status)
	assert.Equal(t, 6, txs[0].Confirmations)
}

func TestWebhookFlowConcurrentDeliveries(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
	require.NoError(t, err)

	body := receivedBody("evt_race", order.Reference, "0xrace")
	sig, err := env.verifier.Sign([]byte(body))
	require.NoError(t, err)

	const deliveries = 4
	outcomes := make([]*businessflow.WebhookOutcome, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = env.flow.HandleDelivery(testingutil.CreateTestContext(), []byte(body), sig, nil)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outcomes[i])
		if outcomes[i].Outcome == businessflow.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "exactly one delivery wins the transition")

	// The losers are no-ops: one credit, one completed transaction
	w, err := env.walletRepo.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, order.NetCents, w.BalanceCents)

	txs, err := env.txRepo.ByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.CryptoTransactionStatusCompleted, txs[0].Status)

	entries, err := env.ledgerRepo.ByWalletID(ctx, wallet.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWebhookFlowDetectedWithoutHash(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	orderA, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
	require.NoError(t, err)
	orderB, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 20000)
	require.NoError(t, err)

	hashless := func(eventID, reference string) string {
		return fmt.Sprintf(`{"event_id":%q,"event_type":"ORDER.PAYMENT.DETECTED","resource":{"reference":%q,"amount":"0.01","currency":"BTC","confirmations":1}}`, eventID, reference)
	}

	outcome, err := env.deliver(t, hashless("evt_h1", orderA.Reference))
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)

	outcome, err = env.deliver(t, hashless("evt_h2", orderB.Reference))
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)

	// Each order gets its own confirming row; a hashless detection on
	// one order must never resolve to another order's transaction.
	txsA, err := env.txRepo.ByOrderID(ctx, orderA.ID)
	require.NoError(t, err)
	require.Len(t, txsA, 1)
	assert.Equal(t, orderA.ID, txsA[0].OrderID)

	txsB, err := env.txRepo.ByOrderID(ctx, orderB.ID)
	require.NoError(t, err)
	require.Len(t, txsB, 1)
	assert.Equal(t, orderB.ID, txsB[0].OrderID)

	// Redelivery with the same empty hash updates the same order's row
	redelivered := fmt.Sprintf(`{"event_id":"evt_h3","event_type":"ORDER.PAYMENT.DETECTED","resource":{"reference":%q,"amount":"0.01","currency":"BTC","confirmations":2}}`, orderA.Reference)
	_, err = env.deliver(t, redelivered)
	require.NoError(t, err)

	txsA, err = env.txRepo.ByOrderID(ctx, orderA.ID)
	require.NoError(t, err)
	require.Len(t, txsA, 1)
	assert.Equal(t, 2, txsA[0].Confirmations)
}

func TestWebhookFlowCancelled(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
	require.NoError(t, err)

	cancelled := fmt.Sprintf(`{"event_id":"evt_c1","event_type":"ORDER.PAYMENT.CANCELLED","resource":{"reference":%q,"reason":"underpaid"}}`, order.Reference)
	outcome, err := env.deliver(t, cancelled)
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)

	updated, err := env.orderRepo.ByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositOrderStatusCancelled, updated.Status)
	assert.Equal(t, "underpaid", updated.StatusReason)
	require.NotNil(t, updated.CancelledAt)

	// A late received event on the cancelled order must not credit
	outcome, err = env.deliver(t, receivedBody("evt_c2", order.Reference, "0xdead"))
	require.NoError(t, err)
	assert.Equal(t, businessflow.OutcomeNoop, outcome.Outcome)

	w, err := env.walletRepo.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.BalanceCents)
}

func TestWebhookFlowEdgeDeliveries(t *testing.T) {
	env := setupWebhookTest(t)

	t.Run("InvalidSignature", func(t *testing.T) {
		body := receivedBody("evt_x", "dep_whatever", "0x0")
		_, err := env.flow.HandleDelivery(testingutil.CreateTestContext(), []byte(body), "deadbeef", nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidSignature(err))
	})

	t.Run("BodyCarriedSignature", func(t *testing.T) {
		user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
		require.NoError(t, err)
		order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
		require.NoError(t, err)

		unsigned := receivedBody("evt_b", order.Reference, "0xb")
		sig, err := env.verifier.Sign([]byte(unsigned))
		require.NoError(t, err)

		// Embed the signature in the body, deliver without a header
		signed := strings.TrimSuffix(unsigned, "}") + fmt.Sprintf(`,"signature":%q}`, sig)
		outcome, err := env.flow.HandleDelivery(testingutil.CreateTestContext(), []byte(signed), "", nil)
		require.NoError(t, err)
		assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)
	})

	t.Run("TamperedAmountRejected", func(t *testing.T) {
		user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
		require.NoError(t, err)
		order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
		require.NoError(t, err)

		body := receivedBody("evt_t", order.Reference, "0xt")
		sig, err := env.verifier.Sign([]byte(body))
		require.NoError(t, err)

		tampered := strings.Replace(body, `"amount":"0.0015"`, `"amount":"99.0"`, 1)
		_, err = env.flow.HandleDelivery(testingutil.CreateTestContext(), []byte(tampered), sig, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidSignature(err))

		// Zero state mutated by the rejected delivery
		ctx := testingutil.CreateTestContext()
		untouched, err := env.orderRepo.ByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositOrderStatusPending, untouched.Status)

		w, err := env.walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), w.BalanceCents)
	})

	t.Run("UnknownReference", func(t *testing.T) {
		outcome, err := env.deliver(t, receivedBody("evt_y", "dep_unknown", "0x0"))
		require.NoError(t, err)
		assert.Equal(t, businessflow.OutcomeUnknownRef, outcome.Outcome)
	})

	t.Run("UnknownEvent", func(t *testing.T) {
		user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
		require.NoError(t, err)
		order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
		require.NoError(t, err)

		body := fmt.Sprintf(`{"event_id":"evt_z","event_type":"ORDER.REFUND.ISSUED","resource":{"reference":%q}}`, order.Reference)
		outcome, err := env.deliver(t, body)
		require.NoError(t, err)
		assert.Equal(t, businessflow.OutcomeUnknownEvent, outcome.Outcome)
	})

	t.Run("ResolvesByGatewayOrderID", func(t *testing.T) {
		user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
		require.NoError(t, err)
		order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
		require.NoError(t, err)

		body := fmt.Sprintf(`{"event_id":"evt_g","event_type":"ORDER.PAYMENT.RECEIVED","resource":{"order_id":%q,"amount":"0.0015","currency":"BTC","transaction_hash":"0xg","confirmations":6}}`, order.GatewayOrderID)
		outcome, err := env.deliver(t, body)
		require.NoError(t, err)
		assert.Equal(t, businessflow.OutcomeApplied, outcome.Outcome)
		assert.Equal(t, order.Reference, outcome.Reference)
	})
}

func TestWebhookFlowReconcileUncredited(t *testing.T) {
	env := setupWebhookTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	order, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 10000)
	require.NoError(t, err)

	// Force the gap: the order is paid but the crediting step never ran
	res, err := env.orderRepo.Transition(ctx, order.ID,
		models.DepositOrderStatusPending, models.DepositOrderStatusPaid,
		map[string]any{"paid_at": utils.UTCNow(), "tx_hash": "0xgap", "crypto_currency": "BTC", "crypto_amount": "0.0015"})
	require.NoError(t, err)
	require.True(t, res.Applied)

	scanned, repaired, err := env.flow.ReconcileUncredited(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, scanned)
	assert.Equal(t, 1, repaired)

	w, err := env.walletRepo.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, order.NetCents, w.BalanceCents)

	completed, err := env.txRepo.CompletedForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, "0xgap", completed.TxHash)

	// Repaired orders drop out of the scan
	scanned, repaired, err = env.flow.ReconcileUncredited(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, scanned)
	assert.Equal(t, 0, repaired)
}
