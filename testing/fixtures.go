// Package testing provides test utilities and database setup for testing the deposit system
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/utils"

	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active user on the given fee tier
func (tf *TestFixtures) CreateTestUser(tier models.FeeTier) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	user := &models.User{
		Email:        fmt.Sprintf("jane.doe.%s@example.com", randomDigits),
		PasswordHash: string(hashedPassword),
		FirstName:    "Jane",
		LastName:     "Doe",
		FeeTier:      tier,
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	return user, nil
}

// CreateTestWallet creates a USD wallet for the user with the given starting balance
func (tf *TestFixtures) CreateTestWallet(userID uint, balanceCents int64) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:       userID,
		BalanceCents: balanceCents,
		Currency:     "USD",
	}

	if err := tf.DB.DB.Create(wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create test wallet: %w", err)
	}

	return wallet, nil
}

// CreateTestUserWithWallet creates a user and an empty wallet in one call
func (tf *TestFixtures) CreateTestUserWithWallet(tier models.FeeTier) (*models.User, *models.Wallet, error) {
	user, err := tf.CreateTestUser(tier)
	if err != nil {
		return nil, nil, err
	}
	wallet, err := tf.CreateTestWallet(user.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	return user, wallet, nil
}

// CreateTestDepositOrder creates a pending deposit order for the user's wallet.
// Amount is gross cents; the fee breakdown is fixed at 2% like the standard tier.
func (tf *TestFixtures) CreateTestDepositOrder(userID, walletID uint, amountCents int64) (*models.DepositOrder, error) {
	feeCents := (amountCents*200 + 5000) / 10000
	expiresAt := time.Now().UTC().Add(time.Hour)

	order := &models.DepositOrder{
		UserID:         userID,
		WalletID:       walletID,
		Reference:      utils.NewDepositReference(),
		AmountCents:    amountCents,
		Currency:       "USD",
		FeeCents:       feeCents,
		NetCents:       amountCents - feeCents,
		FeePercent:     2.0,
		GatewayOrderID: fmt.Sprintf("xm_%09d", rand.Intn(900000000)+100000000),
		RedirectURL:    "https://pay.example.com/checkout",
		Status:         models.DepositOrderStatusPending,
		ExpiresAt:      &expiresAt,
	}

	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create test deposit order: %w", err)
	}

	return order, nil
}

// CreateExpiredDepositOrder creates a pending order whose payment window has already elapsed
func (tf *TestFixtures) CreateExpiredDepositOrder(userID, walletID uint, amountCents int64) (*models.DepositOrder, error) {
	order, err := tf.CreateTestDepositOrder(userID, walletID, amountCents)
	if err != nil {
		return nil, err
	}

	expiredAt := time.Now().UTC().Add(-time.Minute)
	err = tf.DB.DB.Model(order).Update("expires_at", expiredAt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to backdate test deposit order: %w", err)
	}
	order.ExpiresAt = &expiredAt

	return order, nil
}
