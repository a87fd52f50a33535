package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

// Keyer generates and decrypts custody keys. Implemented by wallet.Vault.
type Keyer interface {
	Generate() (publicKey string, encrypted string, err error)
	Open(encrypted string) (solana.PrivateKey, error)
}

// UserServiceConfig caps registration and wallet fan-out.
type UserServiceConfig struct {
	MaxUsers          int
	MaxWalletsPerUser int
}

// UserService manages registration, per-user settings, and wallet custody.
type UserService struct {
	cfg     UserServiceConfig
	users   domain.UserStore
	wallets domain.WalletStore
	keys    Keyer
	logger  *slog.Logger
}

func NewUserService(
	cfg UserServiceConfig,
	users domain.UserStore,
	wallets domain.WalletStore,
	keys Keyer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		cfg:     cfg,
		users:   users,
		wallets: wallets,
		keys:    keys,
		logger:  logger.With(slog.String("component", "user_service")),
	}
}

// Register creates a user for the telegram account along with their first
// wallet, which becomes active. Registering twice returns the existing user.
func (s *UserService) Register(ctx context.Context, telegramID int64) (domain.User, domain.Wallet, error) {
	if existing, err := s.users.GetByTelegramID(ctx, telegramID); err == nil {
		w, werr := s.wallets.GetActive(ctx, existing.ID)
		if werr != nil {
			return domain.User{}, domain.Wallet{}, fmt.Errorf("service: load active wallet: %w", werr)
		}
		return existing, w, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.Wallet{}, fmt.Errorf("service: lookup user: %w", err)
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return domain.User{}, domain.Wallet{}, fmt.Errorf("service: count users: %w", err)
	}
	if count >= s.cfg.MaxUsers {
		return domain.User{}, domain.Wallet{}, domain.ErrUserLimit
	}

	user := domain.User{
		ID:             uuid.New().String(),
		TelegramID:     telegramID,
		AutoTakeProfit: true,
		AutoStopLoss:   true,
		CreatedAt:      time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, domain.Wallet{}, fmt.Errorf("service: create user: %w", err)
	}

	wallet, err := s.addWallet(ctx, user.ID, "main", true)
	if err != nil {
		return domain.User{}, domain.Wallet{}, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("wallet", wallet.PublicKey),
	)
	return user, wallet, nil
}

// Get resolves a telegram account to its user, or ErrNotRegistered.
func (s *UserService) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrNotRegistered
	}
	return u, err
}

// GetByID returns a user by internal ID.
func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// SetPin hashes and stores the user's PIN.
func (s *UserService) SetPin(ctx context.Context, userID, pin string) error {
	hash, err := wallet.HashPin(pin)
	if err != nil {
		return fmt.Errorf("service: hash pin: %w", err)
	}
	if err := s.users.UpdateSettings(ctx, userID, domain.UserPatch{PinHash: &hash}); err != nil {
		return fmt.Errorf("service: store pin: %w", err)
	}
	return nil
}

// VerifyPin checks a PIN against the user's stored hash. A user with no PIN
// set always fails verification.
func (s *UserService) VerifyPin(ctx context.Context, userID, pin string) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service: load user: %w", err)
	}
	if u.PinHash == nil {
		return false, nil
	}
	return wallet.VerifyPin(*u.PinHash, pin), nil
}

// ToggleAutoTakeProfit flips the user's take-profit auto-close flag and
// returns the new value.
func (s *UserService) ToggleAutoTakeProfit(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service: load user: %w", err)
	}
	next := !u.AutoTakeProfit
	if err := s.users.UpdateSettings(ctx, userID, domain.UserPatch{AutoTakeProfit: &next}); err != nil {
		return false, fmt.Errorf("service: update settings: %w", err)
	}
	return next, nil
}

// ToggleAutoStopLoss flips the user's stop-loss auto-close flag and returns
// the new value.
func (s *UserService) ToggleAutoStopLoss(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service: load user: %w", err)
	}
	next := !u.AutoStopLoss
	if err := s.users.UpdateSettings(ctx, userID, domain.UserPatch{AutoStopLoss: &next}); err != nil {
		return false, fmt.Errorf("service: update settings: %w", err)
	}
	return next, nil
}

// AddWallet generates an additional wallet for the user. The new wallet is
// not activated.
func (s *UserService) AddWallet(ctx context.Context, userID, label string) (domain.Wallet, error) {
	count, err := s.wallets.CountByUser(ctx, userID)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("service: count wallets: %w", err)
	}
	if count >= s.cfg.MaxWalletsPerUser {
		return domain.Wallet{}, domain.ErrWalletLimit
	}
	return s.addWallet(ctx, userID, label, false)
}

func (s *UserService) addWallet(ctx context.Context, userID, label string, active bool) (domain.Wallet, error) {
	pub, encrypted, err := s.keys.Generate()
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("service: generate wallet: %w", err)
	}
	w := domain.Wallet{
		ID:                  uuid.New().String(),
		UserID:              userID,
		PublicKey:           pub,
		EncryptedPrivateKey: encrypted,
		Label:               label,
		Active:              active,
		CreatedAt:           time.Now(),
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return domain.Wallet{}, fmt.Errorf("service: store wallet: %w", err)
	}
	s.logger.InfoContext(ctx, "wallet created",
		slog.String("user_id", userID),
		slog.String("wallet", pub),
	)
	return w, nil
}

// ListWallets returns all of the user's wallets.
func (s *UserService) ListWallets(ctx context.Context, userID string) ([]domain.Wallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

// ActiveWallet returns the user's currently active wallet.
func (s *UserService) ActiveWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	return s.wallets.GetActive(ctx, userID)
}

// SetActiveWallet switches the user's active wallet. Ownership is enforced
// by the store.
func (s *UserService) SetActiveWallet(ctx context.Context, userID, walletID string) error {
	if err := s.wallets.SetActive(ctx, userID, walletID); err != nil {
		return fmt.Errorf("service: set active wallet: %w", err)
	}
	return nil
}

// RemoveWallet deletes one of the user's wallets. The active wallet cannot
// be removed while it is active.
func (s *UserService) RemoveWallet(ctx context.Context, userID, walletID string) error {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return fmt.Errorf("service: load wallet: %w", err)
	}
	if w.UserID != userID {
		return domain.ErrUnauthorized
	}
	if w.Active {
		return fmt.Errorf("service: cannot remove the active wallet")
	}
	if err := s.wallets.Delete(ctx, userID, walletID); err != nil {
		return fmt.Errorf("service: delete wallet: %w", err)
	}
	s.logger.InfoContext(ctx, "wallet removed",
		slog.String("user_id", userID),
		slog.String("wallet", w.PublicKey),
	)
	return nil
}

// ExportKey decrypts and returns a wallet's private key in base58 after
// verifying the user's PIN. The key is returned to the caller and never
// logged or retained.
func (s *UserService) ExportKey(ctx context.Context, userID, walletID, pin string) (string, error) {
	ok, err := s.VerifyPin(ctx, userID, pin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrUnauthorized
	}

	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("service: load wallet: %w", err)
	}
	if w.UserID != userID {
		return "", domain.ErrUnauthorized
	}

	key, err := s.keys.Open(w.EncryptedPrivateKey)
	if err != nil {
		return "", fmt.Errorf("service: decrypt key: %w", err)
	}

	s.logger.InfoContext(ctx, "private key exported",
		slog.String("user_id", userID),
		slog.String("wallet", w.PublicKey),
	)
	return key.String(), nil
}
