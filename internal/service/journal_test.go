package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/service"
)

func TestJournalFlush(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("delivers records to store, channels, and stream", func(t *testing.T) {
		events := &memEventStore{}
		bus := newMemBus()
		j := service.NewJournal(events, bus, testLogger())

		j.Append(1, now, domain.ConditionPreparation{
			ConditionID:      question("c1"),
			Oracle:           oracle,
			QuestionID:       question("q1"),
			OutcomeSlotCount: 2,
		})
		j.Append(2, now, domain.Transfer{
			Operator: alice,
			From:     alice,
			To:       bob,
			AssetID:  question("asset"),
			Value:    u(5),
		})
		j.Flush(ctx)

		require.Len(t, events.recs, 2)
		assert.Equal(t, domain.EventConditionPreparation, events.recs[0].Type)
		assert.Equal(t, uint64(1), events.recs[0].Seq)
		assert.Equal(t, domain.EventTransfer, events.recs[1].Type)

		// Every event lands on the firehose channel plus its family channel.
		assert.Len(t, bus.published[service.ChannelLedger], 2)
		assert.Len(t, bus.published[service.ChannelConditions], 1)
		assert.Len(t, bus.published[service.ChannelTransfers], 1)
		assert.Len(t, bus.streams[service.StreamLedgerEvents], 2)

		var rec domain.EventRecord
		require.NoError(t, json.Unmarshal(bus.published[service.ChannelLedger][0], &rec))
		assert.Equal(t, uint64(1), rec.Seq)
		assert.Equal(t, domain.EventConditionPreparation, rec.Type)
	})

	t.Run("flush drains pending records", func(t *testing.T) {
		events := &memEventStore{}
		bus := newMemBus()
		j := service.NewJournal(events, bus, testLogger())

		j.Append(1, now, domain.Approval{Owner: alice, Spender: bob, AssetID: question("a"), Value: u(1)})
		j.Flush(ctx)
		j.Flush(ctx)

		assert.Len(t, events.recs, 1)
		assert.Len(t, bus.published[service.ChannelLedger], 1)
	})

	t.Run("store failure does not block publishing", func(t *testing.T) {
		events := &memEventStore{appendErr: errors.New("connection reset")}
		bus := newMemBus()
		j := service.NewJournal(events, bus, testLogger())

		j.Append(1, now, domain.PayoutRedemption{
			Redeemer:    alice,
			Collateral:  usdc,
			ConditionID: question("c"),
			Payout:      u(10),
		})
		j.Flush(ctx)

		assert.Empty(t, events.recs)
		assert.Len(t, bus.published[service.ChannelLedger], 1)
		assert.Len(t, bus.published[service.ChannelPositions], 1)
	})

	t.Run("publish failure does not block the stream", func(t *testing.T) {
		events := &memEventStore{}
		bus := newMemBus()
		bus.pubErr = errors.New("broken pipe")
		j := service.NewJournal(events, bus, testLogger())

		j.Append(1, now, domain.PositionSplit{Account: alice, Collateral: usdc, ConditionID: question("c"), Amount: u(3)})
		j.Flush(ctx)

		assert.Len(t, events.recs, 1)
		assert.Len(t, bus.streams[service.StreamLedgerEvents], 1)
	})

	t.Run("nil store and bus are tolerated", func(t *testing.T) {
		j := service.NewJournal(nil, nil, testLogger())
		j.Append(1, now, domain.PositionMerge{Account: alice, Collateral: usdc, ConditionID: question("c"), Amount: u(3)})
		j.Flush(ctx)
	})
}
