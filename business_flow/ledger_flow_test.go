package businessflow_test

import (
	"testing"

	businessflow "github.com/meridianpay/meridian/business_flow"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	testingutil "github.com/meridianpay/meridian/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService(t *testing.T) {
	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("teardown: %v", err)
		}
	})

	fixtures := testingutil.NewTestFixtures(testDB)
	walletRepo := repository.NewWalletRepository(testDB.DB)
	ledger := businessflow.NewLedgerService(walletRepo, repository.NewLedgerEntryRepository(testDB.DB), testDB.DB)
	ctx := testingutil.CreateTestContext()

	user, wallet, err := fixtures.CreateTestUserWithWallet(models.FeeTierStandard)
	require.NoError(t, err)

	mutation := func(amount int64, typ models.LedgerEntryType) *businessflow.LedgerMutation {
		return &businessflow.LedgerMutation{
			WalletID:      wallet.ID,
			UserID:        user.ID,
			AmountCents:   amount,
			Type:          typ,
			ReferenceType: models.LedgerReferenceTypeOrder,
			ReferenceID:   1,
			Description:   "test entry",
		}
	}

	t.Run("CreditMovesBalance", func(t *testing.T) {
		entry, err := ledger.Credit(ctx, mutation(10000, models.LedgerEntryTypeDeposit))
		require.NoError(t, err)
		assert.Equal(t, int64(10000), entry.AmountCents)
		assert.Equal(t, int64(0), entry.BalanceBeforeCents)
		assert.Equal(t, int64(10000), entry.BalanceAfterCents)
		assert.True(t, entry.Balanced())

		w, err := walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), w.BalanceCents)
	})

	t.Run("DebitMovesBalanceDown", func(t *testing.T) {
		entry, err := ledger.Debit(ctx, mutation(200, models.LedgerEntryTypeFee))
		require.NoError(t, err)
		assert.Equal(t, int64(-200), entry.AmountCents)
		assert.Equal(t, int64(9800), entry.BalanceAfterCents)

		w, err := walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(9800), w.BalanceCents)
	})

	t.Run("DebitBelowZeroRejected", func(t *testing.T) {
		_, err := ledger.Debit(ctx, mutation(1_000_000, models.LedgerEntryTypeDebit))
		assert.ErrorIs(t, err, businessflow.ErrInsufficientFunds)

		// Balance untouched after the rejected debit
		w, err := walletRepo.ByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(9800), w.BalanceCents)
	})

	t.Run("RejectsNonPositiveAmounts", func(t *testing.T) {
		_, err := ledger.Credit(ctx, mutation(0, models.LedgerEntryTypeDeposit))
		assert.ErrorIs(t, err, businessflow.ErrInvalidAmount)

		_, err = ledger.Debit(ctx, mutation(-100, models.LedgerEntryTypeDebit))
		assert.ErrorIs(t, err, businessflow.ErrInvalidAmount)
	})

	t.Run("UnknownWallet", func(t *testing.T) {
		m := mutation(100, models.LedgerEntryTypeDeposit)
		m.WalletID = 99999
		_, err := ledger.Credit(ctx, m)
		assert.True(t, businessflow.IsWalletNotFound(err))
	})

	t.Run("EntriesNewestFirst", func(t *testing.T) {
		entries, err := ledger.Entries(ctx, wallet.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.LedgerEntryTypeFee, entries[0].Type)
		assert.Equal(t, models.LedgerEntryTypeDeposit, entries[1].Type)

		// Before/after amounts chain across consecutive entries
		assert.Equal(t, entries[1].BalanceAfterCents, entries[0].BalanceBeforeCents)
	})
}
