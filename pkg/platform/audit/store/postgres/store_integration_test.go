//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crvs/internal/platform/pgmigrate"
	"crvs/migrations"
	id "crvs/pkg/domain"
	audit "crvs/pkg/platform/audit"
	"crvs/pkg/platform/audit/store/postgres"
	"crvs/pkg/testutil/containers"
)

type OutboxStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestOutboxStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(pgmigrate.Apply(context.Background(), s.postgres.DB, migrations.FS))
	s.store = postgres.New(s.postgres.DB)
}

func (s *OutboxStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *OutboxStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	eventID := id.NewEventID()
	actionID := id.NewActionID()

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Action:     string(audit.EventActionAccepted),
		EventID:    eventID,
		ActionID:   actionID,
		ActionType: "DECLARE",
		ActorID:    "user-1",
	}))

	events, err := s.store.ListByEvent(ctx, eventID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(actionID, events[0].ActionID)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal(id.UserID("user-1"), events[0].ActorID)
}

func (s *OutboxStoreSuite) TestFetchAndMarkPublished() {
	ctx := context.Background()
	eventID := id.NewEventID()
	for range 3 {
		s.Require().NoError(s.store.Append(ctx, audit.Event{Action: string(audit.EventActionAccepted), EventID: eventID}))
	}

	var fetched []uuid.UUID
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		entries, err := s.store.FetchUnpublished(txCtx, 2)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fetched = append(fetched, e.ID)
		}
		return s.store.MarkPublished(txCtx, fetched)
	})
	s.Require().NoError(err)
	s.Len(fetched, 2)

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		entries, err := s.store.FetchUnpublished(txCtx, 10)
		s.Len(entries, 1)
		return err
	})
	s.Require().NoError(err)
}

func (s *OutboxStoreSuite) TestRollbackDiscardsAppend() {
	ctx := context.Background()
	eventID := id.NewEventID()

	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Append(txCtx, audit.Event{Action: string(audit.EventActionAccepted), EventID: eventID}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Require().ErrorIs(err, context.Canceled)

	events, err := s.store.ListByEvent(ctx, eventID)
	s.Require().NoError(err)
	s.Empty(events)
}
