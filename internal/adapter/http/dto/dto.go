// Package dto defines request and response shapes for the admin API.
package dto

// ModeRequest switches the venue operating mode.
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// ModeResponse echoes the applied mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// NightStepRequest announces a vote step to all terminals.
type NightStepRequest struct {
	Step     int      `json:"step" binding:"min=0"`
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required,min=1"`
}

// PayoutItem is one ready payout.
type PayoutItem struct {
	PayoutID    string `json:"payout_id"`
	Source      string `json:"source"`
	AmountCents int64  `json:"amount_cents"`
}

// PayoutListResponse is the full ready-payout list.
type PayoutListResponse struct {
	Items []PayoutItem `json:"items"`
}
