package coordinator

import "fmt"

// Topic layout shared with the device firmware. Request topics are
// published by devices and consumed here; broadcast topics flow the
// other way.
const (
	TopicWalletGet    = "core/wallet/get"
	TopicWalletDebit  = "core/wallet/debit"
	TopicWalletCredit = "core/wallet/credit"
	TopicPayoutNew    = "core/payouts/new"
	TopicPayoutClaim  = "core/payouts/claim"
	TopicNightVote    = "night/vote"

	TopicNightStep   = "night/step"
	TopicNightResult = "night/result"
	TopicMode        = "state/mode"
)

// DeviceResponseTopic is the per-device reply channel. Every response
// carries the req_id of the request it answers.
func DeviceResponseTopic(deviceID string) string {
	return fmt.Sprintf("dev/%s/res", deviceID)
}

// DevicePayoutsTopic carries the full ready-payout list to the payout
// sink device.
func DevicePayoutsTopic(deviceID string) string {
	return fmt.Sprintf("dev/%s/payouts", deviceID)
}
