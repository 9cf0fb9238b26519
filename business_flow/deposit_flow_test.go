package businessflow_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	businessflow "github.com/meridianpay/meridian/business_flow"

	"github.com/meridianpay/meridian/app/services"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	testingutil "github.com/meridianpay/meridian/testing"
	"github.com/meridianpay/meridian/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeXMoneyClient records the last create call and serves canned orders
type fakeXMoneyClient struct {
	lastCreate *services.XMoneyCreateOrderInput
	createErr  error
	orders     map[string]*services.XMoneyOrder
	seq        int
}

func newFakeXMoneyClient() *fakeXMoneyClient {
	return &fakeXMoneyClient{orders: map[string]*services.XMoneyOrder{}}
}

func (f *fakeXMoneyClient) Name() string { return "xmoney-fake" }

func (f *fakeXMoneyClient) CreateOrder(ctx context.Context, in services.XMoneyCreateOrderInput) (*services.XMoneyOrder, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastCreate = &in
	f.seq++
	order := &services.XMoneyOrder{
		GatewayOrderID: fmt.Sprintf("xm_fake_%d", f.seq),
		Reference:      in.Reference,
		Status:         services.XMoneyStatusPending,
		RedirectURL:    "https://pay.xmoney.test/" + in.Reference,
	}
	f.orders[order.GatewayOrderID] = order
	return order, nil
}

func (f *fakeXMoneyClient) GetOrder(ctx context.Context, gatewayOrderID string) (*services.XMoneyOrder, error) {
	order, ok := f.orders[gatewayOrderID]
	if !ok {
		return nil, &services.GatewayError{StatusCode: 404, Message: "order not found"}
	}
	return order, nil
}

type depositTestEnv struct {
	db       *testingutil.TestDB
	fixtures *testingutil.TestFixtures
	gateway  *fakeXMoneyClient
	flow     businessflow.DepositFlow
	orders   repository.DepositOrderRepository
}

func setupDepositTest(t *testing.T) *depositTestEnv {
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

	gateway := newFakeXMoneyClient()
	env := &depositTestEnv{
		db:       testDB,
		fixtures: testingutil.NewTestFixtures(testDB),
		gateway:  gateway,
		orders:   repository.NewDepositOrderRepository(testDB.DB),
	}
	env.flow = businessflow.NewDepositFlow(
		repository.NewUserRepository(testDB.DB),
		repository.NewWalletRepository(testDB.DB),
		env.orders,
		repository.NewCryptoTransactionRepository(testDB.DB),
		gateway,
		businessflow.NewFeeCalculator(nil),
		businessflow.DepositConfig{
			MinAmountCents: 100,
			MaxAmountCents: 5_000_000,
			OrderTTL:       time.Hour,
			CallbackURL:    "https://api.meridian.test/api/v1/webhooks/xmoney",
		},
		testDB.DB,
	)
	return env
}

func TestDepositFlowCreate(t *testing.T) {
	env := setupDepositTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierSilver)
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		order, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{
			UserID:      user.ID,
			AmountCents: 10000,
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, models.DepositOrderStatusPending, order.Status)
		assert.Equal(t, user.ID, order.UserID)
		assert.Equal(t, wallet.ID, order.WalletID)
		assert.True(t, strings.HasPrefix(order.Reference, utils.DepositReferencePrefix))

		// Silver tier: 1.5% of 100.00 USD
		assert.Equal(t, int64(150), order.FeeCents)
		assert.Equal(t, int64(9850), order.NetCents)
		assert.Equal(t, 1.5, order.FeePercent)

		assert.NotEmpty(t, order.GatewayOrderID)
		assert.NotEmpty(t, order.RedirectURL)
		require.NotNil(t, order.ExpiresAt)
		assert.WithinDuration(t, utils.UTCNow().Add(time.Hour), *order.ExpiresAt, time.Minute)

		// The gateway was asked for the gross amount with the webhook callback
		require.NotNil(t, env.gateway.lastCreate)
		assert.Equal(t, order.Reference, env.gateway.lastCreate.Reference)
		assert.Equal(t, int64(10000), env.gateway.lastCreate.AmountCents)
		assert.Equal(t, "https://api.meridian.test/api/v1/webhooks/xmoney", env.gateway.lastCreate.CallbackURL)
		assert.Equal(t, 60, env.gateway.lastCreate.LifetimeMin)
	})

	t.Run("AmountBounds", func(t *testing.T) {
		_, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{UserID: user.ID, AmountCents: 0}, nil)
		assert.ErrorIs(t, err, businessflow.ErrInvalidAmount)

		_, err = env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{UserID: user.ID, AmountCents: 99}, nil)
		assert.ErrorIs(t, err, businessflow.ErrAmountTooLow)

		_, err = env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{UserID: user.ID, AmountCents: 5_000_001}, nil)
		assert.ErrorIs(t, err, businessflow.ErrAmountTooHigh)
	})

	t.Run("UnsupportedCurrency", func(t *testing.T) {
		_, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{
			UserID:      user.ID,
			AmountCents: 10000,
			Currency:    "EUR",
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrUnsupportedCurrency)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{
			UserID:      99999,
			AmountCents: 10000,
		}, nil)
		assert.True(t, businessflow.IsUserNotFound(err))
	})

	t.Run("GatewayDown", func(t *testing.T) {
		env.gateway.createErr = &services.GatewayError{StatusCode: 503, Message: "maintenance"}
		defer func() { env.gateway.createErr = nil }()

		_, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{
			UserID:      user.ID,
			AmountCents: 10000,
		}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsGatewayUnavailable(err))

		// The local row survives the gateway failure, pending and
		// without a gateway order ID, for the sweeper to expire.
		pending := models.DepositOrderStatusPending
		orders, err := env.orders.ByFilter(ctx, models.DepositOrderFilter{UserID: &user.ID, Status: &pending}, "created_at DESC", 10, 0)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		var stranded *models.DepositOrder
		for _, o := range orders {
			if o.GatewayOrderID == "" {
				stranded = o
			}
		}
		require.NotNil(t, stranded)
		assert.Empty(t, stranded.RedirectURL)
	})
}

func TestDepositFlowGetStatus(t *testing.T) {
	env := setupDepositTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	other, _, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)

	order, err := env.flow.CreateDeposit(ctx, &businessflow.CreateDepositRequest{
		UserID:      user.ID,
		AmountCents: 10000,
	}, nil)
	require.NoError(t, err)

	t.Run("OwnerSeesOrder", func(t *testing.T) {
		found, err := env.flow.GetStatus(ctx, user.ID, order.Reference)
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)
		assert.Empty(t, found.Transactions)
	})

	t.Run("IncludesTransactions", func(t *testing.T) {
		txRepo := repository.NewCryptoTransactionRepository(env.db.DB)
		err := txRepo.Save(ctx, &models.CryptoTransaction{
			CorrelationID:  order.CorrelationID,
			OrderID:        order.ID,
			UserID:         user.ID,
			CryptoCurrency: "BTC",
			CryptoAmount:   "0.0015",
			FiatCurrency:   utils.USDCurrency,
			FiatCents:      order.NetCents,
			FeeCents:       order.FeeCents,
			TxHash:         "0xstatus",
			Confirmations:  6,
			Status:         models.CryptoTransactionStatusCompleted,
		})
		require.NoError(t, err)

		found, err := env.flow.GetStatus(ctx, user.ID, order.Reference)
		require.NoError(t, err)
		require.Len(t, found.Transactions, 1)
		assert.Equal(t, "0xstatus", found.Transactions[0].TxHash)
		assert.Equal(t, models.CryptoTransactionStatusCompleted, found.Transactions[0].Status)
	})

	t.Run("OtherUserGetsNotFound", func(t *testing.T) {
		_, err := env.flow.GetStatus(ctx, other.ID, order.Reference)
		assert.True(t, businessflow.IsOrderNotFound(err))
	})

	t.Run("UnknownReference", func(t *testing.T) {
		_, err := env.flow.GetStatus(ctx, user.ID, "DEP-0-XXXXX")
		assert.True(t, businessflow.IsOrderNotFound(err))
	})

	t.Run("LazyExpiry", func(t *testing.T) {
		stale, err := env.fixtures.CreateExpiredDepositOrder(user.ID, wallet.ID, 10000)
		require.NoError(t, err)

		found, err := env.flow.GetStatus(ctx, user.ID, stale.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.DepositOrderStatusExpired, found.Status)
		assert.Equal(t, "ttl elapsed", found.StatusReason)
	})

	t.Run("AbsorbsGatewayDetails", func(t *testing.T) {
		gw := env.gateway.orders[order.GatewayOrderID]
		gw.Status = services.XMoneyStatusDetected
		gw.CryptoCurrency = "BTC"
		gw.CryptoAmount = "0.0015"
		gw.TxHash = "0xseen"

		found, err := env.flow.GetStatus(ctx, user.ID, order.Reference)
		require.NoError(t, err)
		// Informational fields come through but the status stays
		// pending until the webhook lands
		assert.Equal(t, models.DepositOrderStatusPending, found.Status)
		assert.Equal(t, "BTC", found.CryptoCurrency)
		assert.Equal(t, "0xseen", found.TxHash)
	})
}

func TestDepositFlowHistory(t *testing.T) {
	env := setupDepositTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, int64(1000*(i+1)))
		require.NoError(t, err)
	}

	t.Run("Paginates", func(t *testing.T) {
		orders, total, err := env.flow.History(ctx, user.ID, &businessflow.HistoryFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, orders, 2)

		orders, _, err = env.flow.History(ctx, user.ID, &businessflow.HistoryFilter{Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, orders, 1)
	})

	t.Run("FiltersByStatus", func(t *testing.T) {
		paid := models.DepositOrderStatusPaid
		orders, total, err := env.flow.History(ctx, user.ID, &businessflow.HistoryFilter{Status: &paid})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, orders)
	})

	t.Run("ScopedToUser", func(t *testing.T) {
		stranger, _, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
		require.NoError(t, err)

		orders, total, err := env.flow.History(ctx, stranger.ID, nil)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, orders)
	})
}

func TestDepositFlowExport(t *testing.T) {
	env := setupDepositTest(t)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := env.fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestDepositOrder(user.ID, wallet.ID, 12345)
	require.NoError(t, err)

	data, filename, err := env.flow.Export(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))
	require.NotEmpty(t, data)

	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}
