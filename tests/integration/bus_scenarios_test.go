package integration

import (
	"context"
	"sync"
	"testing"

	"arcade-core/internal/coordinator"
	"arcade-core/internal/core/domain"
	"arcade-core/internal/core/ports"
	"arcade-core/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a loopback bus: subscriptions are kept in a map and
// publishes are recorded for assertions.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[string]ports.Handler
	published []busMessage
}

type busMessage struct {
	topic    string
	payload  map[string]interface{}
	retained bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]ports.Handler)}
}

func (b *fakeBus) Subscribe(pattern string, h ports.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = h
	return nil
}

func (b *fakeBus) Publish(topic string, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, busMessage{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) PublishRetained(topic string, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, busMessage{topic: topic, payload: payload, retained: true})
	return nil
}

// inject delivers a device message to the registered handler.
func (b *fakeBus) inject(t *testing.T, topic string, msg map[string]interface{}) {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	require.NotNil(t, h, "no handler for %s", topic)
	h(topic, msg)
}

func (b *fakeBus) messagesOn(topic string) []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range b.published {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

func (b *fakeBus) lastOn(t *testing.T, topic string) map[string]interface{} {
	t.Helper()
	msgs := b.messagesOn(topic)
	require.NotEmpty(t, msgs, "no messages on %s", topic)
	return msgs[len(msgs)-1]
}

type testCore struct {
	bus    *fakeBus
	ledger *service.LedgerService
	coord  *coordinator.Coordinator
	audit  *inMemoryAuditRepo
}

func newTestCore(t *testing.T, expectedVotes int) *testCore {
	t.Helper()
	audit := newInMemoryAuditRepo()
	ledger := service.NewLedgerService(
		newInMemoryWalletRepo(),
		newInMemoryPayoutRepo(),
		audit,
		newInMemoryVoteRepo(),
		newInMemoryKVRepo(),
		newInMemoryTransactor(),
		zerolog.Nop(),
	)
	bus := newFakeBus()
	coord := coordinator.NewCoordinator(ledger, bus, bus, nil, coordinator.Config{
		ExpectedVotes: expectedVotes,
		SinkDevice:    "change-01",
	}, zerolog.Nop())
	require.NoError(t, coord.Start())
	return &testCore{bus: bus, ledger: ledger, coord: coord, audit: audit}
}

func TestIntegration_WalletLifecycle(t *testing.T) {
	core := newTestCore(t, 9)
	resTopic := "dev/slot-01/res"

	core.bus.inject(t, coordinator.TopicWalletGet, map[string]interface{}{
		"req_id": "r1", "device_id": "slot-01", "tag_uid": "TAG-1",
	})
	assert.Equal(t, int64(0), core.bus.lastOn(t, resTopic)["balance_cents"])

	core.bus.inject(t, coordinator.TopicWalletCredit, map[string]interface{}{
		"req_id": "r2", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(500), "reason": "topup",
	})
	res := core.bus.lastOn(t, resTopic)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, int64(500), res["new_balance_cents"])

	core.bus.inject(t, coordinator.TopicWalletDebit, map[string]interface{}{
		"req_id": "r3", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(200), "reason": "play",
	})
	res = core.bus.lastOn(t, resTopic)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, int64(300), res["new_balance_cents"])

	// Overdraw attempt leaves the balance untouched.
	core.bus.inject(t, coordinator.TopicWalletDebit, map[string]interface{}{
		"req_id": "r4", "device_id": "slot-01", "tag_uid": "TAG-1",
		"amount_cents": float64(1000), "reason": "play",
	})
	res = core.bus.lastOn(t, resTopic)
	assert.Equal(t, "insufficient", res["status"])
	assert.Equal(t, int64(300), res["new_balance_cents"])

	var ops []domain.AuditOp
	for _, e := range core.audit.all() {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []domain.AuditOp{
		domain.AuditOpCredit, domain.AuditOpDebit, domain.AuditOpDebitInsufficient,
	}, ops)
}

func TestIntegration_PayoutClaimedExactlyOnce(t *testing.T) {
	core := newTestCore(t, 9)
	listTopic := "dev/change-01/payouts"
	resTopic := "dev/change-01/res"

	core.bus.inject(t, coordinator.TopicPayoutNew, map[string]interface{}{
		"payout_id": "p-1", "source": "blackjack", "amount_cents": float64(750),
	})
	// Duplicate announcement of the same payout id.
	core.bus.inject(t, coordinator.TopicPayoutNew, map[string]interface{}{
		"payout_id": "p-1", "source": "blackjack", "amount_cents": float64(750),
	})

	list := core.bus.lastOn(t, listTopic)
	items := list["items"].([]map[string]interface{})
	require.Len(t, items, 1)

	core.bus.inject(t, coordinator.TopicPayoutClaim, map[string]interface{}{
		"req_id": "c1", "device_id": "change-01", "payout_id": "p-1", "tag_uid": "TAG-9",
	})
	res := core.bus.lastOn(t, resTopic)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, int64(750), res["credited_cents"])
	assert.Equal(t, int64(750), res["new_balance_cents"])

	// The claimed payout disappears from the broadcast list.
	items = core.bus.lastOn(t, listTopic)["items"].([]map[string]interface{})
	assert.Len(t, items, 0)

	// A second claim is rejected without crediting again.
	core.bus.inject(t, coordinator.TopicPayoutClaim, map[string]interface{}{
		"req_id": "c2", "device_id": "change-01", "payout_id": "p-1", "tag_uid": "TAG-9",
	})
	res = core.bus.lastOn(t, resTopic)
	assert.Equal(t, "already_claimed", res["status"])

	balance, err := core.ledger.GetBalance(context.Background(), "TAG-9")
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)

	core.bus.inject(t, coordinator.TopicPayoutClaim, map[string]interface{}{
		"req_id": "c3", "device_id": "change-01", "payout_id": "ghost", "tag_uid": "TAG-9",
	})
	assert.Equal(t, "not_found", core.bus.lastOn(t, resTopic)["status"])
}

func TestIntegration_NightQuorum(t *testing.T) {
	core := newTestCore(t, 2)

	require.NoError(t, core.coord.AnnounceStep(context.Background(), 1, "Who goes first?", []string{"red", "blue"}))

	// A vote for a step that was never announced is discarded.
	core.bus.inject(t, coordinator.TopicNightVote, map[string]interface{}{
		"device_id": "term-01", "step": float64(0), "choice": "red",
	})
	assert.Empty(t, core.bus.messagesOn(coordinator.TopicNightResult))

	core.bus.inject(t, coordinator.TopicNightVote, map[string]interface{}{
		"device_id": "term-01", "step": float64(1), "choice": "red",
	})
	assert.Empty(t, core.bus.messagesOn(coordinator.TopicNightResult))

	core.bus.inject(t, coordinator.TopicNightVote, map[string]interface{}{
		"device_id": "term-02", "step": float64(1), "choice": "blue",
	})
	results := core.bus.messagesOn(coordinator.TopicNightResult)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0]["step"])
	assert.Equal(t, "success", results[0]["status"])
	assert.Equal(t, 2, results[0]["next_step"])

	// Votes past quorum never trigger a second result.
	core.bus.inject(t, coordinator.TopicNightVote, map[string]interface{}{
		"device_id": "term-03", "step": float64(1), "choice": "red",
	})
	assert.Len(t, core.bus.messagesOn(coordinator.TopicNightResult), 1)
}

func TestIntegration_ModeSurvivesRestart(t *testing.T) {
	core := newTestCore(t, 9)

	require.NoError(t, core.coord.SetMode(context.Background(), "night"))
	assert.Equal(t, "night", core.bus.lastOn(t, coordinator.TopicMode)["mode"])

	// A fresh coordinator over the same ledger comes back up in night
	// mode and re-broadcasts it.
	bus2 := newFakeBus()
	coord2 := coordinator.NewCoordinator(core.ledger, bus2, bus2, nil, coordinator.Config{
		ExpectedVotes: 9,
		SinkDevice:    "change-01",
	}, zerolog.Nop())
	require.NoError(t, coord2.Start())

	mode, err := coord2.RestoreMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "night", mode)
	assert.Equal(t, "night", bus2.lastOn(t, coordinator.TopicMode)["mode"])
}
