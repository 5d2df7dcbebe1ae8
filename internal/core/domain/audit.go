package domain

import "time"

// AuditOp classifies an audit entry. Rejected debits get their own op
// so balance history can be reconstructed including failed attempts.
type AuditOp string

const (
	AuditOpCredit            AuditOp = "credit"
	AuditOpDebit             AuditOp = "debit"
	AuditOpDebitInsufficient AuditOp = "debit_insufficient"
	AuditOpPayoutClaim       AuditOp = "payout_claim"
)

// AuditEntry is an append-only record of a financial attempt. Entries
// are never mutated or deleted.
type AuditEntry struct {
	Timestamp   time.Time `json:"ts"`
	DeviceID    string    `json:"device_id"`
	Op          AuditOp   `json:"op"`
	TagUID      string    `json:"tag_uid"`
	AmountCents int64     `json:"amount_cents"`
	Details     string    `json:"details"`
}
