package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeDay))
	assert.True(t, ValidMode(ModeNight))
	assert.False(t, ValidMode(""))
	assert.False(t, ValidMode("dusk"))
}

func TestClaimStatusValues(t *testing.T) {
	// Wire-visible values; devices match on these strings.
	assert.Equal(t, "ok", string(ClaimOK))
	assert.Equal(t, "not_found", string(ClaimNotFound))
	assert.Equal(t, "already_claimed", string(ClaimAlreadyClaimed))
}

func TestAuditOpValues(t *testing.T) {
	assert.Equal(t, "debit_insufficient", string(AuditOpDebitInsufficient))
	assert.Equal(t, "payout_claim", string(AuditOpPayoutClaim))
}
