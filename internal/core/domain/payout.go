package domain

import "time"

// PayoutStatus is the lifecycle state of a payout. The only transition
// is ready -> claimed; it happens exactly once and never reverses.
type PayoutStatus string

const (
	PayoutStatusReady   PayoutStatus = "ready"
	PayoutStatusClaimed PayoutStatus = "claimed"
)

// Payout is a pending credit produced by an external game outcome,
// claimed once by a collection device on behalf of a tag.
type Payout struct {
	ID           string                 `json:"payout_id"`
	Source       string                 `json:"source"`
	AmountCents  int64                  `json:"amount_cents"`
	Status       PayoutStatus           `json:"status"`
	ClaimedByTag *string                `json:"claimed_by_tag,omitempty"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	ClaimedAt    *time.Time             `json:"claimed_at,omitempty"`
}

// ClaimStatus is the business outcome of a claim attempt. These are
// reported as status fields, never as errors.
type ClaimStatus string

const (
	ClaimOK             ClaimStatus = "ok"
	ClaimNotFound       ClaimStatus = "not_found"
	ClaimAlreadyClaimed ClaimStatus = "already_claimed"
)
