package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crvs/pkg/domain"
	audit "crvs/pkg/platform/audit"
	"crvs/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("outbox unavailable")
}

func (failingStore) ListByEvent(context.Context, id.EventID) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("persists event and fills timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		metrics := NewMetricsWithRegistry(prometheus.NewRegistry())
		pub := New(store, WithMetrics(metrics))
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		pub.now = func() time.Time { return fixed }

		eventID := id.NewEventID()
		err := pub.Emit(ctx, audit.ComplianceEvent{
			Action:     audit.EventActionAccepted,
			EventID:    eventID,
			ActionType: "DECLARE",
		})
		require.NoError(t, err)

		events, err := store.ListByEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsEmitted))
	})

	t.Run("rejects event without record id", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		err := pub.Emit(ctx, audit.ComplianceEvent{Action: audit.EventActionAccepted})
		require.ErrorIs(t, err, ErrMissingEventID)

		err = pub.Emit(ctx, audit.ComplianceEvent{EventID: id.NewEventID()})
		require.ErrorIs(t, err, ErrMissingAction)
	})

	t.Run("fails closed when store fails", func(t *testing.T) {
		metrics := NewMetricsWithRegistry(prometheus.NewRegistry())
		pub := New(failingStore{}, WithMetrics(metrics))
		err := pub.Emit(ctx, audit.ComplianceEvent{
			Action:  audit.EventActionRequested,
			EventID: id.NewEventID(),
		})
		require.Error(t, err)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PersistFailures))
	})
}
