package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// Bridge subscribes to the committed-event channel and forwards selected
// ledger events to the notifier as human-readable alerts.
type Bridge struct {
	bus      domain.SignalBus
	notifier *Notifier
	channel  string
	logger   *slog.Logger
}

// NewBridge creates a Bridge reading from the given pub/sub channel.
func NewBridge(bus domain.SignalBus, notifier *Notifier, channel string, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		channel:  channel,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run consumes the event channel until the context is cancelled. Individual
// delivery failures are logged and skipped; the notifier applies its own
// event-type filter.
func (b *Bridge) Run(ctx context.Context) error {
	msgCh, err := b.bus.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("bridge subscribed", slog.String("channel", b.channel))

	if err := b.notifier.NotifyAll(ctx, "Ledger alerts online",
		"ctfd is forwarding ledger events to this channel."); err != nil {
		b.logger.Warn("bridge: startup notice failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				b.logger.Warn("bridge channel closed", slog.String("channel", b.channel))
				return nil
			}

			var rec domain.EventRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				b.logger.Warn("bridge: undecodable message", slog.String("error", err.Error()))
				continue
			}

			title, message := describe(rec)
			if err := b.notifier.Notify(ctx, string(rec.Type), title, message); err != nil {
				b.logger.Warn("bridge: notify failed",
					slog.String("type", string(rec.Type)),
					slog.Uint64("seq", rec.Seq),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// describe renders one journal record as an alert title and body.
func describe(rec domain.EventRecord) (string, string) {
	switch rec.Type {
	case domain.EventConditionPreparation:
		var ev domain.ConditionPreparation
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Condition prepared",
				fmt.Sprintf("Condition %s prepared by oracle %s with %d outcomes.",
					short(ev.ConditionID.Hex()), short(ev.Oracle.Hex()), ev.OutcomeSlotCount)
		}
	case domain.EventConditionResolution:
		var ev domain.ConditionResolution
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Condition resolved",
				fmt.Sprintf("Condition %s resolved by oracle %s.",
					short(ev.ConditionID.Hex()), short(ev.Oracle.Hex()))
		}
	case domain.EventPositionSplit:
		var ev domain.PositionSplit
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Position split",
				fmt.Sprintf("%s split %s against condition %s.",
					short(ev.Account.Hex()), dec(ev.Amount), short(ev.ConditionID.Hex()))
		}
	case domain.EventPositionMerge:
		var ev domain.PositionMerge
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Position merged",
				fmt.Sprintf("%s merged %s back through condition %s.",
					short(ev.Account.Hex()), dec(ev.Amount), short(ev.ConditionID.Hex()))
		}
	case domain.EventPayoutRedemption:
		var ev domain.PayoutRedemption
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Payout redeemed",
				fmt.Sprintf("%s redeemed %s from condition %s.",
					short(ev.Redeemer.Hex()), dec(ev.Payout), short(ev.ConditionID.Hex()))
		}
	case domain.EventTransfer:
		var ev domain.Transfer
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Transfer",
				fmt.Sprintf("%s moved %s of %s to %s.",
					short(ev.From.Hex()), dec(ev.Value), short(ev.AssetID.Hex()), short(ev.To.Hex()))
		}
	case domain.EventApproval:
		var ev domain.Approval
		if err := json.Unmarshal(rec.Payload, &ev); err == nil {
			return "Approval",
				fmt.Sprintf("%s approved %s for %s of %s.",
					short(ev.Owner.Hex()), short(ev.Spender.Hex()), dec(ev.Value), short(ev.AssetID.Hex()))
		}
	}
	return "Ledger event", fmt.Sprintf("Event %s (seq %d).", rec.Type, rec.Seq)
}

// dec renders an amount that may be absent from the payload.
func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// short truncates a 0x-hex string for display.
func short(hex string) string {
	if len(hex) <= 10 {
		return hex
	}
	return hex[:10] + ".."
}
