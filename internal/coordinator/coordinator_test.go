package coordinator

import (
	"context"
	"testing"
	"time"

	"arcade-core/internal/core/domain"
	"arcade-core/internal/core/ports"
	"arcade-core/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type coordTestDeps struct {
	coord  *Coordinator
	ledger *mocks.MockLedger
	pub    *mocks.MockPublisher
	sub    *mocks.MockSubscriber
	dedup  *mocks.MockRequestDedup
	ctrl   *gomock.Controller
}

func setupCoordinator(t *testing.T, withDedup bool) *coordTestDeps {
	ctrl := gomock.NewController(t)
	d := &coordTestDeps{
		ledger: mocks.NewMockLedger(ctrl),
		pub:    mocks.NewMockPublisher(ctrl),
		sub:    mocks.NewMockSubscriber(ctrl),
		dedup:  mocks.NewMockRequestDedup(ctrl),
		ctrl:   ctrl,
	}
	var dedup ports.RequestDedup
	if withDedup {
		dedup = d.dedup
	}
	d.coord = NewCoordinator(d.ledger, d.pub, d.sub, dedup, Config{
		ExpectedVotes: 3,
		SinkDevice:    "change-01",
		DedupTTL:      2 * time.Minute,
	}, zerolog.Nop())
	return d
}

func TestStart_SubscribesAllRequestTopics(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	var topics []string
	d.sub.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Times(6).DoAndReturn(
		func(pattern string, _ ports.Handler) error {
			topics = append(topics, pattern)
			return nil
		})

	require.NoError(t, d.coord.Start())
	assert.Equal(t, []string{
		TopicWalletGet, TopicWalletDebit, TopicWalletCredit,
		TopicPayoutNew, TopicPayoutClaim, TopicNightVote,
	}, topics)
}

func TestHandleWalletGet_RespondsWithBalance(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().GetBalance(gomock.Any(), "TAG-1").Return(int64(300), nil)

	var payload map[string]interface{}
	d.pub.EXPECT().Publish("dev/slot-01/res", gomock.Any()).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			payload = p
			return nil
		})

	d.coord.handleWalletGet(TopicWalletGet, map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01", "tag_uid": "TAG-1",
	})

	assert.Equal(t, "r1", payload["req_id"])
	assert.Equal(t, "wallet_get", payload["type"])
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, int64(300), payload["balance_cents"])
}

func TestHandleWalletGet_MissingTagReportsZeroWithoutLookup(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	var payload map[string]interface{}
	d.pub.EXPECT().Publish("dev/slot-01/res", gomock.Any()).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			payload = p
			return nil
		})

	d.coord.handleWalletGet(TopicWalletGet, map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01",
	})

	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, int64(0), payload["balance_cents"])
}

func TestHandleWalletDebit_SufficientAndInsufficient(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	gomock.InOrder(
		d.ledger.EXPECT().Debit(gomock.Any(), "slot-01", "TAG-1", int64(200), "play").
			Return(int64(300), true, nil),
		d.ledger.EXPECT().Debit(gomock.Any(), "slot-01", "TAG-1", int64(1000), "play").
			Return(int64(300), false, nil),
	)

	var payloads []map[string]interface{}
	d.pub.EXPECT().Publish("dev/slot-01/res", gomock.Any()).Times(2).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			payloads = append(payloads, p)
			return nil
		})

	msg := map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(200), "reason": "play",
	}
	d.coord.handleWalletDebit(TopicWalletDebit, msg)
	msg["amount_cents"] = float64(1000)
	d.coord.handleWalletDebit(TopicWalletDebit, msg)

	require.Len(t, payloads, 2)
	assert.Equal(t, "ok", payloads[0]["status"])
	assert.Equal(t, int64(300), payloads[0]["new_balance_cents"])
	assert.Equal(t, "insufficient", payloads[1]["status"])
	assert.Equal(t, int64(300), payloads[1]["new_balance_cents"])
}

func TestHandleWalletCredit_Responds(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().Credit(gomock.Any(), "slot-02", "TAG-1", int64(500), "win").
		Return(int64(500), nil)

	var payload map[string]interface{}
	d.pub.EXPECT().Publish("dev/slot-02/res", gomock.Any()).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			payload = p
			return nil
		})

	d.coord.handleWalletCredit(TopicWalletCredit, map[string]interface{}{
		"req_id": "r2", "device_id": "slot-02", "tag_uid": "TAG-1",
		"amount_cents": float64(500), "reason": "win",
	})

	assert.Equal(t, "wallet_credit", payload["type"])
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, int64(500), payload["new_balance_cents"])
}

func TestHandleWalletDebit_ReplayDropped(t *testing.T) {
	d := setupCoordinator(t, true)
	defer d.ctrl.Finish()

	d.dedup.EXPECT().CheckAndSet(gomock.Any(), "r1", 2*time.Minute).Return(false, nil)

	// No ledger call and no response for a replayed request.
	d.coord.handleWalletDebit(TopicWalletDebit, map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(200),
	})
}

func TestHandleWalletDebit_DedupErrorFailsOpen(t *testing.T) {
	d := setupCoordinator(t, true)
	defer d.ctrl.Finish()

	d.dedup.EXPECT().CheckAndSet(gomock.Any(), "r1", 2*time.Minute).
		Return(false, assert.AnError)
	d.ledger.EXPECT().Debit(gomock.Any(), "slot-01", "TAG-1", int64(200), "debit").
		Return(int64(100), true, nil)
	d.pub.EXPECT().Publish("dev/slot-01/res", gomock.Any()).Return(nil)

	d.coord.handleWalletDebit(TopicWalletDebit, map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(200),
	})
}

func TestHandlePayoutNew_MissingIDIgnored(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	// No insert, no broadcast.
	d.coord.handlePayoutNew(TopicPayoutNew, map[string]interface{}{
		"source": "blackjack", "amount_cents": float64(750),
	})
}

func TestHandlePayoutNew_InsertsAndBroadcastsList(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().InsertPayout(gomock.Any(), "p-1", "blackjack", int64(750), gomock.Any()).
		Return(nil)
	d.ledger.EXPECT().ListReadyPayouts(gomock.Any()).Return([]domain.Payout{
		{ID: "p-1", Source: "blackjack", AmountCents: 750},
	}, nil)

	var payload map[string]interface{}
	d.pub.EXPECT().Publish("dev/change-01/payouts", gomock.Any()).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			payload = p
			return nil
		})

	d.coord.handlePayoutNew(TopicPayoutNew, map[string]interface{}{
		"payout_id": "p-1", "source": "blackjack", "amount_cents": float64(750),
	})

	items, ok := payload["items"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "p-1", items[0]["payout_id"])
	assert.Equal(t, int64(750), items[0]["amount_cents"])
}

func TestHandlePayoutClaim_RespondsAndRebroadcasts(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ClaimPayout(gomock.Any(), "p-1", "change-01", "TAG-9").
		Return(ports.ClaimResult{
			Status:          domain.ClaimOK,
			CreditedCents:   750,
			NewBalanceCents: 950,
		}, nil)
	d.ledger.EXPECT().ListReadyPayouts(gomock.Any()).Return(nil, nil)

	var resPayload map[string]interface{}
	gomock.InOrder(
		d.pub.EXPECT().Publish("dev/change-01/res", gomock.Any()).DoAndReturn(
			func(_ string, p map[string]interface{}) error {
				resPayload = p
				return nil
			}),
		d.pub.EXPECT().Publish("dev/change-01/payouts", gomock.Any()).Return(nil),
	)

	d.coord.handlePayoutClaim(TopicPayoutClaim, map[string]interface{}{
		"req_id": "r3", "payout_id": "p-1", "tag_uid": "TAG-9",
	})

	assert.Equal(t, "payout_claim", resPayload["type"])
	assert.Equal(t, "ok", resPayload["status"])
	assert.Equal(t, int64(750), resPayload["credited_cents"])
	assert.Equal(t, int64(950), resPayload["new_balance_cents"])
}

func TestHandlePayoutClaim_RejectionStillRebroadcasts(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ClaimPayout(gomock.Any(), "p-1", "change-01", "TAG-9").
		Return(ports.ClaimResult{Status: domain.ClaimAlreadyClaimed}, nil)
	d.ledger.EXPECT().ListReadyPayouts(gomock.Any()).Return(nil, nil)

	var resPayload map[string]interface{}
	d.pub.EXPECT().Publish("dev/change-01/res", gomock.Any()).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			resPayload = p
			return nil
		})
	d.pub.EXPECT().Publish("dev/change-01/payouts", gomock.Any()).Return(nil)

	d.coord.handlePayoutClaim(TopicPayoutClaim, map[string]interface{}{
		"req_id": "r4", "payout_id": "p-1", "tag_uid": "TAG-9",
	})

	assert.Equal(t, "already_claimed", resPayload["status"])
	assert.Equal(t, int64(0), resPayload["credited_cents"])
}

func TestHandleNightVote_NoAnnouncementDiscards(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	// No ledger calls before the first step announcement.
	d.coord.handleNightVote(TopicNightVote, map[string]interface{}{
		"device_id": "term-01", "step": float64(1), "choice": "yes",
	})
}

func TestHandleNightVote_StaleStepDiscarded(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ResetVotesForStep(gomock.Any(), 2).Return(nil)
	d.pub.EXPECT().Publish(TopicNightStep, gomock.Any()).Return(nil)
	require.NoError(t, d.coord.AnnounceStep(context.Background(), 2, "q", []string{"yes", "no"}))

	d.coord.handleNightVote(TopicNightVote, map[string]interface{}{
		"device_id": "term-01", "step": float64(1), "choice": "yes",
	})
}

func TestHandleNightVote_MissingFieldsDiscarded(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ResetVotesForStep(gomock.Any(), 1).Return(nil)
	d.pub.EXPECT().Publish(TopicNightStep, gomock.Any()).Return(nil)
	require.NoError(t, d.coord.AnnounceStep(context.Background(), 1, "q", nil))

	d.coord.handleNightVote(TopicNightVote, map[string]interface{}{
		"step": float64(1), "choice": "yes",
	})
	d.coord.handleNightVote(TopicNightVote, map[string]interface{}{
		"step": float64(1), "device_id": "term-01",
	})
}

func TestHandleNightVote_QuorumBroadcastsExactlyOnce(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ResetVotesForStep(gomock.Any(), 5).Return(nil)
	d.pub.EXPECT().Publish(TopicNightStep, gomock.Any()).Return(nil)
	require.NoError(t, d.coord.AnnounceStep(context.Background(), 5, "q", []string{"yes", "no"}))

	d.ledger.EXPECT().AddVote(gomock.Any(), 5, gomock.Any(), gomock.Any()).Times(4).Return(nil)
	gomock.InOrder(
		d.ledger.EXPECT().CountVotesForStep(gomock.Any(), 5).Return(2, nil),
		d.ledger.EXPECT().CountVotesForStep(gomock.Any(), 5).Return(3, nil),
		d.ledger.EXPECT().CountVotesForStep(gomock.Any(), 5).Return(4, nil),
		d.ledger.EXPECT().CountVotesForStep(gomock.Any(), 5).Return(5, nil),
	)

	var resultPayload map[string]interface{}
	d.pub.EXPECT().Publish(TopicNightResult, gomock.Any()).Times(1).DoAndReturn(
		func(_ string, p map[string]interface{}) error {
			resultPayload = p
			return nil
		})

	for i := 0; i < 4; i++ {
		d.coord.handleNightVote(TopicNightVote, map[string]interface{}{
			"device_id": "term-01", "step": float64(5), "choice": "yes",
		})
	}

	assert.Equal(t, 5, resultPayload["step"])
	assert.Equal(t, "success", resultPayload["status"])
	assert.Equal(t, 6, resultPayload["next_step"])
}

func TestAnnounceStep_ReannounceResetsLatch(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().ResetVotesForStep(gomock.Any(), 5).Times(2).Return(nil)
	d.pub.EXPECT().Publish(TopicNightStep, gomock.Any()).Times(2).Return(nil)
	d.ledger.EXPECT().AddVote(gomock.Any(), 5, gomock.Any(), gomock.Any()).Times(2).Return(nil)
	d.ledger.EXPECT().CountVotesForStep(gomock.Any(), 5).Times(2).Return(3, nil)
	d.pub.EXPECT().Publish(TopicNightResult, gomock.Any()).Times(2).Return(nil)

	vote := map[string]interface{}{
		"device_id": "term-01", "step": float64(5), "choice": "yes",
	}
	require.NoError(t, d.coord.AnnounceStep(context.Background(), 5, "q", nil))
	d.coord.handleNightVote(TopicNightVote, vote)

	// A fresh announcement of the same step starts a new round.
	require.NoError(t, d.coord.AnnounceStep(context.Background(), 5, "q", nil))
	d.coord.handleNightVote(TopicNightVote, vote)
}

func TestSetMode_ValidatesAndBroadcastsRetained(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().SetKV(gomock.Any(), "mode", "night").Return(nil)
	d.pub.EXPECT().PublishRetained(TopicMode, map[string]interface{}{"mode": "night"}).Return(nil)

	require.NoError(t, d.coord.SetMode(context.Background(), "night"))
	assert.Error(t, d.coord.SetMode(context.Background(), "disco"))
}

func TestRestoreMode_DefaultsToDay(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().GetKV(gomock.Any(), "mode").Return("", false, nil)
	d.ledger.EXPECT().SetKV(gomock.Any(), "mode", "day").Return(nil)
	d.pub.EXPECT().PublishRetained(TopicMode, map[string]interface{}{"mode": "day"}).Return(nil)

	mode, err := d.coord.RestoreMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDay, mode)
}

func TestRestoreMode_KeepsPersistedMode(t *testing.T) {
	d := setupCoordinator(t, false)
	defer d.ctrl.Finish()

	d.ledger.EXPECT().GetKV(gomock.Any(), "mode").Return("night", true, nil)
	d.ledger.EXPECT().SetKV(gomock.Any(), "mode", "night").Return(nil)
	d.pub.EXPECT().PublishRetained(TopicMode, map[string]interface{}{"mode": "night"}).Return(nil)

	mode, err := d.coord.RestoreMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "night", mode)
}
