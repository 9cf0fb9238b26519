package businessflow

import (
	"context"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
)

// ClientMetadata carries request-level information for audit purposes
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// NewClientMetadata creates client metadata from request information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

func getActiveUser(ctx context.Context, repo repository.UserRepository, userID uint) (*models.User, error) {
	user, err := repo.ByID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func getWallet(ctx context.Context, repo repository.WalletRepository, userID uint) (*models.Wallet, error) {
	wallet, err := repo.ByUserID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("WALLET_LOOKUP_FAILED", "Failed to load wallet", err)
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}
