package businessflow

import (
	"context"
	"errors"
	"strings"

	"github.com/meridianpay/meridian/app/services"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"github.com/meridianpay/meridian/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AuthFlow handles account registration and login
type AuthFlow interface {
	Signup(ctx context.Context, req *SignupRequest, metadata *ClientMetadata) (*AuthResult, error)
	Login(ctx context.Context, req *LoginRequest, metadata *ClientMetadata) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
}

type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginRequest struct {
	Email    string
	Password string
}

type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type authFlowImpl struct {
	userRepo   repository.UserRepository
	walletRepo repository.WalletRepository
	tokens     services.TokenService
	db         *gorm.DB
}

func NewAuthFlow(
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	tokens services.TokenService,
	db *gorm.DB,
) AuthFlow {
	return &authFlowImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		tokens:     tokens,
		db:         db,
	}
}

// Signup creates the user together with an empty USD wallet.
func (f *authFlowImpl) Signup(ctx context.Context, req *SignupRequest, metadata *ClientMetadata) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := f.userRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to check email", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		FeeTier:      models.FeeTierStandard,
		IsActive:     utils.ToPtr(true),
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.userRepo.Save(txCtx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		wallet := &models.Wallet{
			UserID:   user.ID,
			Currency: utils.USDCurrency,
		}
		return f.walletRepo.Save(txCtx, wallet)
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, NewBusinessError("SIGNUP_FAILED", "Failed to create account", err)
	}

	return f.issueTokens(user)
}

func (f *authFlowImpl) Login(ctx context.Context, req *LoginRequest, metadata *ClientMetadata) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := f.userRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to load user", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, ErrUserInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return f.issueTokens(user)
}

func (f *authFlowImpl) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	access, refresh, err := f.tokens.RefreshToken(refreshToken)
	if err != nil {
		return nil, NewBusinessError("TOKEN_REFRESH_FAILED", "Failed to refresh tokens", err)
	}
	return &AuthResult{AccessToken: access, RefreshToken: refresh}, nil
}

func (f *authFlowImpl) issueTokens(user *models.User) (*AuthResult, error) {
	access, refresh, err := f.tokens.GenerateTokens(user.ID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_ISSUE_FAILED", "Failed to issue tokens", err)
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}
