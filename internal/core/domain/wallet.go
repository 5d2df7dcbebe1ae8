package domain

import "time"

// Wallet holds a player's balance, keyed by the tag carried on their
// physical token. Wallets are created lazily with zero balance on first
// reference and are never deleted. BalanceCents is never negative.
type Wallet struct {
	TagUID       string    `json:"tag_uid"`
	BalanceCents int64     `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Operating modes broadcast to all devices. Mode is persisted in the
// kv store and restored on restart.
const (
	ModeDay   = "day"
	ModeNight = "night"
)

// ValidMode reports whether mode is one of the known operating modes.
func ValidMode(mode string) bool {
	return mode == ModeDay || mode == ModeNight
}
