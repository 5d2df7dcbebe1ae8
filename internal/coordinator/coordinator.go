package coordinator

import (
	"context"
	"sync"
	"time"

	"arcade-core/internal/core/domain"
	"arcade-core/internal/core/ports"
	"arcade-core/pkg/apperror"

	"github.com/rs/zerolog"
)

// Config carries the coordinator's protocol parameters.
type Config struct {
	// ExpectedVotes is the quorum threshold for a step result.
	ExpectedVotes int
	// SinkDevice receives the ready-payout list broadcasts.
	SinkDevice string
	// DedupTTL is the retention window for request ids when a dedup
	// store is wired in.
	DedupTTL time.Duration
}

// Coordinator owns the bus-facing protocol: it translates device
// requests into ledger operations and broadcasts shared state. Devices
// are untrusted; every message is treated as potentially malformed,
// replayed or stale, and a bad message is dropped, never fatal.
type Coordinator struct {
	ledger ports.Ledger
	pub    ports.Publisher
	sub    ports.Subscriber
	dedup  ports.RequestDedup // nil disables replay protection
	cfg    Config
	log    zerolog.Logger

	// currentStep is nil until the first step announcement. resultSent
	// latches after the quorum broadcast so late votes for the same
	// announcement never trigger a second result.
	mu          sync.Mutex
	currentStep *int
	resultSent  bool
}

// NewCoordinator creates a Coordinator. dedup may be nil.
func NewCoordinator(
	ledger ports.Ledger,
	pub ports.Publisher,
	sub ports.Subscriber,
	dedup ports.RequestDedup,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		ledger: ledger,
		pub:    pub,
		sub:    sub,
		dedup:  dedup,
		cfg:    cfg,
		log:    log,
	}
}

// Start registers all request subscriptions. Handlers run on the bus
// receive loop, one message at a time.
func (c *Coordinator) Start() error {
	subs := []struct {
		topic   string
		handler ports.Handler
	}{
		{TopicWalletGet, c.handleWalletGet},
		{TopicWalletDebit, c.handleWalletDebit},
		{TopicWalletCredit, c.handleWalletCredit},
		{TopicPayoutNew, c.handlePayoutNew},
		{TopicPayoutClaim, c.handlePayoutClaim},
		{TopicNightVote, c.handleNightVote},
	}
	for _, s := range subs {
		if err := c.sub.Subscribe(s.topic, s.handler); err != nil {
			return err
		}
	}
	return nil
}

// RestoreMode loads the persisted mode (default day), writes it back
// and re-broadcasts it retained so devices converge after a restart.
func (c *Coordinator) RestoreMode(ctx context.Context) (string, error) {
	mode, found, err := c.ledger.GetKV(ctx, "mode")
	if err != nil {
		return "", err
	}
	if !found || !domain.ValidMode(mode) {
		mode = domain.ModeDay
	}
	if err := c.ledger.SetKV(ctx, "mode", mode); err != nil {
		return "", err
	}
	if err := c.pub.PublishRetained(TopicMode, map[string]interface{}{"mode": mode}); err != nil {
		return "", err
	}
	c.log.Info().Str("mode", mode).Msg("mode restored")
	return mode, nil
}

// SetMode persists and broadcasts a new mode.
func (c *Coordinator) SetMode(ctx context.Context, mode string) error {
	if !domain.ValidMode(mode) {
		return apperror.ErrUnknownMode(mode)
	}
	if err := c.ledger.SetKV(ctx, "mode", mode); err != nil {
		return err
	}
	if err := c.pub.PublishRetained(TopicMode, map[string]interface{}{"mode": mode}); err != nil {
		return err
	}
	c.log.Info().Str("mode", mode).Msg("mode changed")
	return nil
}

// AnnounceStep makes step the current vote step, clears any previous
// votes for it and broadcasts the question. Re-announcing the same step
// number restarts its voting round from zero.
func (c *Coordinator) AnnounceStep(ctx context.Context, step int, question string, options []string) error {
	c.mu.Lock()
	s := step
	c.currentStep = &s
	c.resultSent = false
	c.mu.Unlock()

	if err := c.ledger.ResetVotesForStep(ctx, step); err != nil {
		return err
	}
	payload := map[string]interface{}{
		"step":     step,
		"question": question,
		"options":  options,
	}
	if err := c.pub.Publish(TopicNightStep, payload); err != nil {
		return err
	}
	c.log.Info().Int("step", step).Msg("vote step announced")
	return nil
}

// PushPayouts broadcasts the full ready-payout list to the sink device.
// The list is a snapshot, re-sent after every change.
func (c *Coordinator) PushPayouts(ctx context.Context) error {
	payouts, err := c.ledger.ListReadyPayouts(ctx)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, map[string]interface{}{
			"payout_id":    p.ID,
			"source":       p.Source,
			"amount_cents": p.AmountCents,
		})
	}
	return c.pub.Publish(DevicePayoutsTopic(c.cfg.SinkDevice), map[string]interface{}{"items": items})
}

func (c *Coordinator) respond(deviceID string, payload map[string]interface{}) {
	if err := c.pub.Publish(DeviceResponseTopic(deviceID), payload); err != nil {
		c.log.Error().Err(err).Str("device_id", deviceID).Msg("response publish failed")
	}
}

func (c *Coordinator) handleWalletGet(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	deviceID := stringField(msg, "device_id", "unknown")
	tagUID := stringField(msg, "tag_uid", "")

	var balance int64
	if tagUID != "" {
		var err error
		balance, err = c.ledger.GetBalance(ctx, tagUID)
		if err != nil {
			c.log.Error().Err(err).Str("tag_uid", tagUID).Msg("balance lookup failed")
			return
		}
	}
	c.respond(deviceID, map[string]interface{}{
		"req_id":        msg["req_id"],
		"type":          "wallet_get",
		"status":        "ok",
		"balance_cents": balance,
	})
}

func (c *Coordinator) handleWalletDebit(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	if c.replayed(ctx, msg) {
		return
	}
	deviceID := stringField(msg, "device_id", "unknown")
	tagUID := stringField(msg, "tag_uid", "")
	amount := intField(msg, "amount_cents", 0)
	reason := stringField(msg, "reason", "debit")

	newBalance, ok, err := c.ledger.Debit(ctx, deviceID, tagUID, amount, reason)
	if err != nil {
		c.log.Error().Err(err).Str("tag_uid", tagUID).Msg("debit failed")
		return
	}
	status := "ok"
	if !ok {
		status = "insufficient"
	}
	c.respond(deviceID, map[string]interface{}{
		"req_id":            msg["req_id"],
		"type":              "wallet_debit",
		"status":            status,
		"new_balance_cents": newBalance,
	})
}

func (c *Coordinator) handleWalletCredit(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	if c.replayed(ctx, msg) {
		return
	}
	deviceID := stringField(msg, "device_id", "unknown")
	tagUID := stringField(msg, "tag_uid", "")
	amount := intField(msg, "amount_cents", 0)
	reason := stringField(msg, "reason", "credit")

	newBalance, err := c.ledger.Credit(ctx, deviceID, tagUID, amount, reason)
	if err != nil {
		c.log.Error().Err(err).Str("tag_uid", tagUID).Msg("credit failed")
		return
	}
	c.respond(deviceID, map[string]interface{}{
		"req_id":            msg["req_id"],
		"type":              "wallet_credit",
		"status":            "ok",
		"new_balance_cents": newBalance,
	})
}

func (c *Coordinator) handlePayoutNew(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	payoutID := stringField(msg, "payout_id", "")
	if payoutID == "" {
		return
	}
	source := stringField(msg, "source", "")
	amount := intField(msg, "amount_cents", 0)
	meta, _ := msg["meta"].(map[string]interface{})

	if err := c.ledger.InsertPayout(ctx, payoutID, source, amount, meta); err != nil {
		c.log.Error().Err(err).Str("payout_id", payoutID).Msg("payout insert failed")
		return
	}
	if err := c.PushPayouts(ctx); err != nil {
		c.log.Error().Err(err).Msg("payout list push failed")
	}
}

func (c *Coordinator) handlePayoutClaim(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	deviceID := stringField(msg, "device_id", c.cfg.SinkDevice)
	payoutID := stringField(msg, "payout_id", "")
	tagUID := stringField(msg, "tag_uid", "")

	result, err := c.ledger.ClaimPayout(ctx, payoutID, deviceID, tagUID)
	if err != nil {
		c.log.Error().Err(err).Str("payout_id", payoutID).Msg("payout claim failed")
		return
	}
	c.respond(deviceID, map[string]interface{}{
		"req_id":            msg["req_id"],
		"type":              "payout_claim",
		"status":            string(result.Status),
		"credited_cents":    result.CreditedCents,
		"new_balance_cents": result.NewBalanceCents,
	})
	// Re-broadcast after every claim attempt so the sink's list stays
	// current even when the claim was rejected.
	if err := c.PushPayouts(ctx); err != nil {
		c.log.Error().Err(err).Msg("payout list push failed")
	}
}

func (c *Coordinator) handleNightVote(_ string, msg map[string]interface{}) {
	ctx := context.Background()
	deviceID := stringField(msg, "device_id", "")
	choice := stringField(msg, "choice", "")
	step := int(intField(msg, "step", -1))

	c.mu.Lock()
	current := c.currentStep
	c.mu.Unlock()
	if current == nil || step != *current {
		c.log.Debug().Int("step", step).Msg("vote for stale step discarded")
		return
	}
	if deviceID == "" || choice == "" {
		return
	}

	if err := c.ledger.AddVote(ctx, step, deviceID, choice); err != nil {
		c.log.Error().Err(err).Int("step", step).Msg("vote record failed")
		return
	}
	count, err := c.ledger.CountVotesForStep(ctx, step)
	if err != nil {
		c.log.Error().Err(err).Int("step", step).Msg("vote count failed")
		return
	}
	if count < c.cfg.ExpectedVotes {
		return
	}

	c.mu.Lock()
	done := c.resultSent || c.currentStep == nil || *c.currentStep != step
	if !done {
		c.resultSent = true
	}
	c.mu.Unlock()
	if done {
		return
	}

	payload := map[string]interface{}{
		"step":      step,
		"status":    "success",
		"next_step": step + 1,
	}
	if err := c.pub.Publish(TopicNightResult, payload); err != nil {
		c.log.Error().Err(err).Int("step", step).Msg("result publish failed")
		return
	}
	c.log.Info().Int("step", step).Int("votes", count).Msg("quorum reached")
}

// replayed reports whether the message carries a req_id already seen
// within the dedup window. Dedup errors fail open: a broken store must
// not take wallet traffic down with it.
func (c *Coordinator) replayed(ctx context.Context, msg map[string]interface{}) bool {
	if c.dedup == nil {
		return false
	}
	reqID := stringField(msg, "req_id", "")
	if reqID == "" {
		return false
	}
	fresh, err := c.dedup.CheckAndSet(ctx, reqID, c.cfg.DedupTTL)
	if err != nil {
		c.log.Error().Err(err).Str("req_id", reqID).Msg("dedup check failed")
		return false
	}
	if !fresh {
		c.log.Warn().Str("req_id", reqID).Msg("replayed request dropped")
	}
	return !fresh
}

func stringField(msg map[string]interface{}, key, fallback string) string {
	if v, ok := msg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intField reads a numeric field. JSON numbers decode as float64.
func intField(msg map[string]interface{}, key string, fallback int64) int64 {
	switch v := msg[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return fallback
	}
}
