package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry, exec ...core.DBExecutor) (Entry, error)
		// QueryEntries applies AND operation on available QueryFilter fields.
		QueryEntries(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Entry, error)
	}

	Service interface {
		Record(ctx context.Context, ne NewEntry) (Entry, error)
		// Log records the entry and only logs failures: auditing never fails the audited operation.
		Log(ctx context.Context, ne NewEntry)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Entry, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (svc *service) Record(ctx context.Context, ne NewEntry) (Entry, error) {
	if ne.Action == "" {
		return Entry{}, errors.New("audit entry without action")
	}
	entry, err := svc.repo.CreateEntry(ctx, Entry{
		ActorID:   ne.ActorID,
		ActorName: ne.ActorName,
		Action:    ne.Action,
		Entity:    ne.Entity,
		EntityID:  ne.EntityID,
		Detail:    ne.Detail,
		CreatedAt: NowFunc().UTC(),
	})
	return entry, errors.Wrap(err, "creating audit entry")
}

func (svc *service) Log(ctx context.Context, ne NewEntry) {
	if _, err := svc.Record(ctx, ne); err != nil {
		svc.logger.Error("recording audit entry", err, ne.Action, ne.EntityID)
	}
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Entry, error) {
	entries, err := svc.repo.QueryEntries(ctx, filter, ordering)
	return entries, errors.Wrap(err, "querying audit entries")
}
