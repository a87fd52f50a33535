package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

type fakeUserStore struct {
	byID       map[string]domain.User
	byTelegram map[int64]domain.User
	patches    []domain.UserPatch
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:       map[string]domain.User{},
		byTelegram: map[int64]domain.User{},
	}
}

func (f *fakeUserStore) Create(ctx context.Context, u domain.User) error {
	f.byID[u.ID] = u
	f.byTelegram[u.TelegramID] = u
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserStore) GetByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	if u, ok := f.byTelegram[telegramID]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserStore) UpdateSettings(ctx context.Context, id string, patch domain.UserPatch) error {
	f.patches = append(f.patches, patch)
	u := f.byID[id]
	if patch.PinHash != nil {
		u.PinHash = patch.PinHash
	}
	if patch.AutoTakeProfit != nil {
		u.AutoTakeProfit = *patch.AutoTakeProfit
	}
	if patch.AutoStopLoss != nil {
		u.AutoStopLoss = *patch.AutoStopLoss
	}
	f.byID[id] = u
	f.byTelegram[u.TelegramID] = u
	return nil
}

func (f *fakeUserStore) Count(ctx context.Context) (int, error) {
	return len(f.byID), nil
}

type fakeWalletStore struct {
	byID    map[string]domain.Wallet
	deleted []string
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{byID: map[string]domain.Wallet{}}
}

func (f *fakeWalletStore) Create(ctx context.Context, w domain.Wallet) error {
	f.byID[w.ID] = w
	return nil
}

func (f *fakeWalletStore) GetByID(ctx context.Context, id string) (domain.Wallet, error) {
	if w, ok := f.byID[id]; ok {
		return w, nil
	}
	return domain.Wallet{}, domain.ErrNotFound
}

func (f *fakeWalletStore) GetByAddress(ctx context.Context, publicKey string) (domain.Wallet, error) {
	for _, w := range f.byID {
		if w.PublicKey == publicKey {
			return w, nil
		}
	}
	return domain.Wallet{}, domain.ErrNotFound
}

func (f *fakeWalletStore) GetActive(ctx context.Context, userID string) (domain.Wallet, error) {
	for _, w := range f.byID {
		if w.UserID == userID && w.Active {
			return w, nil
		}
	}
	return domain.Wallet{}, domain.ErrNotFound
}

func (f *fakeWalletStore) ListByUser(ctx context.Context, userID string) ([]domain.Wallet, error) {
	var out []domain.Wallet
	for _, w := range f.byID {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWalletStore) CountByUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, w := range f.byID {
		if w.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeWalletStore) SetActive(ctx context.Context, userID, walletID string) error {
	for id, w := range f.byID {
		if w.UserID == userID {
			w.Active = id == walletID
			f.byID[id] = w
		}
	}
	return nil
}

func (f *fakeWalletStore) Delete(ctx context.Context, userID, walletID string) error {
	f.deleted = append(f.deleted, walletID)
	delete(f.byID, walletID)
	return nil
}

type fakeKeyer struct {
	key       solana.PrivateKey
	generated int
}

func newFakeKeyer() *fakeKeyer {
	w := solana.NewWallet()
	return &fakeKeyer{key: w.PrivateKey}
}

func (f *fakeKeyer) Generate() (string, string, error) {
	f.generated++
	return fmt.Sprintf("pub-%d", f.generated), fmt.Sprintf("enc-%d", f.generated), nil
}

func (f *fakeKeyer) Open(encrypted string) (solana.PrivateKey, error) {
	return f.key, nil
}

type userFixture struct {
	users   *fakeUserStore
	wallets *fakeWalletStore
	keys    *fakeKeyer
	svc     *UserService
}

func newUserFixture(maxUsers, maxWallets int) *userFixture {
	f := &userFixture{
		users:   newFakeUserStore(),
		wallets: newFakeWalletStore(),
		keys:    newFakeKeyer(),
	}
	f.svc = NewUserService(
		UserServiceConfig{MaxUsers: maxUsers, MaxWalletsPerUser: maxWallets},
		f.users, f.wallets, f.keys, testLogger(),
	)
	return f
}

func TestRegisterCreatesUserWithActiveWallet(t *testing.T) {
	f := newUserFixture(20, 3)

	user, w, err := f.svc.Register(context.Background(), 12345)

	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.True(t, user.AutoTakeProfit)
	assert.True(t, user.AutoStopLoss)
	assert.True(t, w.Active)
	assert.Equal(t, "main", w.Label)
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newUserFixture(20, 3)

	first, w1, err := f.svc.Register(context.Background(), 12345)
	require.NoError(t, err)

	second, w2, err := f.svc.Register(context.Background(), 12345)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Equal(t, 1, f.keys.generated)
}

func TestRegisterEnforcesUserCap(t *testing.T) {
	f := newUserFixture(1, 3)

	_, _, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)

	_, _, err = f.svc.Register(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrUserLimit)
}

func TestGetUnknownTelegramIDIsNotRegistered(t *testing.T) {
	f := newUserFixture(20, 3)

	_, err := f.svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestAddWalletEnforcesCap(t *testing.T) {
	f := newUserFixture(20, 2)
	user, _, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)

	w, err := f.svc.AddWallet(context.Background(), user.ID, "sniper")
	require.NoError(t, err)
	assert.False(t, w.Active)

	_, err = f.svc.AddWallet(context.Background(), user.ID, "third")
	assert.ErrorIs(t, err, domain.ErrWalletLimit)
}

func TestRemoveWalletGuards(t *testing.T) {
	f := newUserFixture(20, 3)
	user, active, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)
	spare, err := f.svc.AddWallet(context.Background(), user.ID, "spare")
	require.NoError(t, err)

	// The active wallet cannot be removed.
	err = f.svc.RemoveWallet(context.Background(), user.ID, active.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active wallet")

	// Another user's wallet cannot be removed.
	err = f.svc.RemoveWallet(context.Background(), "someone-else", spare.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// An inactive wallet owned by the user can.
	require.NoError(t, f.svc.RemoveWallet(context.Background(), user.ID, spare.ID))
	assert.Equal(t, []string{spare.ID}, f.wallets.deleted)
}

func TestTogglesFlipSettings(t *testing.T) {
	f := newUserFixture(20, 3)
	user, _, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)

	on, err := f.svc.ToggleAutoTakeProfit(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, on)

	on, err = f.svc.ToggleAutoTakeProfit(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = f.svc.ToggleAutoStopLoss(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestPinLifecycle(t *testing.T) {
	f := newUserFixture(20, 3)
	user, _, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)

	// No PIN set yet: verification always fails.
	ok, err := f.svc.VerifyPin(context.Background(), user.ID, "1234")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.SetPin(context.Background(), user.ID, "1234"))

	ok, err = f.svc.VerifyPin(context.Background(), user.ID, "1234")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyPin(context.Background(), user.ID, "4321")
	require.NoError(t, err)
	assert.False(t, ok)

	err = f.svc.SetPin(context.Background(), user.ID, "12a4")
	assert.ErrorIs(t, err, wallet.ErrInvalidPin)
}

func TestExportKeyRequiresPinAndOwnership(t *testing.T) {
	f := newUserFixture(20, 3)
	user, w, err := f.svc.Register(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPin(context.Background(), user.ID, "1234"))

	// Wrong PIN.
	_, err = f.svc.ExportKey(context.Background(), user.ID, w.ID, "0000")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Correct PIN returns the base58 key.
	key, err := f.svc.ExportKey(context.Background(), user.ID, w.ID, "1234")
	require.NoError(t, err)
	assert.Equal(t, f.keys.key.String(), key)
}
