package domain

import "time"

// User is a registered Telegram user of the bot.
type User struct {
	ID             string
	TelegramID     int64
	PinHash        *string // bcrypt hash of the 4-digit PIN, nil until set
	AutoTakeProfit bool
	AutoStopLoss   bool
	CreatedAt      time.Time
}

// UserPatch carries optional user settings updates. Nil fields are left
// untouched.
type UserPatch struct {
	PinHash        *string
	AutoTakeProfit *bool
	AutoStopLoss   *bool
}

// Wallet is a custodied Solana keypair belonging to a user. The private key
// is stored encrypted and only decrypted in memory for the duration of a
// signing operation or a PIN-gated export.
type Wallet struct {
	ID                  string
	UserID              string
	PublicKey           string // base58
	EncryptedPrivateKey string // versioned JSON blob, see wallet.Vault
	Label               string
	Active              bool
	CreatedAt           time.Time
}
