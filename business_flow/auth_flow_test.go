package businessflow_test

import (
	"fmt"
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

type authTestEnv struct {
	db      *testingutil.TestDB
	flow    businessflow.AuthFlow
	tokens  services.TokenService
	wallets repository.WalletRepository
	users   repository.UserRepository
}

func setupAuthTest(t *testing.T) *authTestEnv {
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

	tokens, err := services.NewTokenService(15*time.Minute, 24*time.Hour, "meridian-test", "meridian-api", "auth-flow-test-secret")
	require.NoError(t, err)

	users := repository.NewUserRepository(testDB.DB)
	wallets := repository.NewWalletRepository(testDB.DB)
	return &authTestEnv{
		db:      testDB,
		flow:    businessflow.NewAuthFlow(users, wallets, tokens, testDB.DB),
		tokens:  tokens,
		wallets: wallets,
		users:   users,
	}
}

func TestAuthFlowSignup(t *testing.T) {
	env := setupAuthTest(t)
	ctx := testingutil.CreateTestContext()

	t.Run("CreatesUserAndWallet", func(t *testing.T) {
		result, err := env.flow.Signup(ctx, &businessflow.SignupRequest{
			Email:     "New.User@Example.com",
			Password:  "S3curePass!word",
			FirstName: "New",
			LastName:  "User",
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, result.User)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)

		// Email is normalized, tier defaults to standard
		assert.Equal(t, "new.user@example.com", result.User.Email)
		assert.Equal(t, models.FeeTierStandard, result.User.FeeTier)

		wallet, err := env.wallets.ByUserID(ctx, result.User.ID)
		require.NoError(t, err)
		require.NotNil(t, wallet)
		assert.Equal(t, utils.USDCurrency, wallet.Currency)
		assert.Equal(t, int64(0), wallet.BalanceCents)

		claims, err := env.tokens.ValidateToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, claims.UserID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		req := &businessflow.SignupRequest{Email: "dup@example.com", Password: "S3curePass!word"}
		_, err := env.flow.Signup(ctx, req, nil)
		require.NoError(t, err)

		_, err = env.flow.Signup(ctx, req, nil)
		assert.ErrorIs(t, err, businessflow.ErrEmailTaken)
	})
}

func TestAuthFlowLogin(t *testing.T) {
	env := setupAuthTest(t)
	ctx := testingutil.CreateTestContext()

	signup := func(email string) *models.User {
		result, err := env.flow.Signup(ctx, &businessflow.SignupRequest{
			Email:    email,
			Password: "S3curePass!word",
		}, nil)
		require.NoError(t, err)
		return result.User
	}

	t.Run("ValidCredentials", func(t *testing.T) {
		user := signup("login@example.com")

		result, err := env.flow.Login(ctx, &businessflow.LoginRequest{
			Email:    "Login@Example.COM",
			Password: "S3curePass!word",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.User.ID)
		assert.NotEmpty(t, result.AccessToken)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		signup("wrongpass@example.com")

		_, err := env.flow.Login(ctx, &businessflow.LoginRequest{
			Email:    "wrongpass@example.com",
			Password: "not-the-password",
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrInvalidCredentials)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := env.flow.Login(ctx, &businessflow.LoginRequest{
			Email:    "nobody@example.com",
			Password: "whatever",
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrInvalidCredentials)
	})

	t.Run("InactiveAccount", func(t *testing.T) {
		user := signup("inactive@example.com")
		require.NoError(t, env.db.DB.Model(user).Update("is_active", false).Error)

		_, err := env.flow.Login(ctx, &businessflow.LoginRequest{
			Email:    "inactive@example.com",
			Password: "S3curePass!word",
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrUserInactive)
	})
}

func TestAuthFlowRefresh(t *testing.T) {
	env := setupAuthTest(t)
	ctx := testingutil.CreateTestContext()

	result, err := env.flow.Signup(ctx, &businessflow.SignupRequest{
		Email:    fmt.Sprintf("refresh.%d@example.com", time.Now().UnixNano()),
		Password: "S3curePass!word",
	}, nil)
	require.NoError(t, err)

	refreshed, err := env.flow.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)

	claims, err := env.tokens.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)

	// An access token is not accepted in place of the refresh token
	_, err = env.flow.Refresh(ctx, result.AccessToken)
	assert.Error(t, err)
}
