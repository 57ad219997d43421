package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core/audit"
	"github.com/fieldtrack/fieldtrack/core/user"
)

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := auditApi{svc: opts.AuditSvc}
	g.GET("/audit", api.query, jwt, adminMiddleware())
}

type auditApi struct {
	svc audit.Service
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	entries, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying audit entries")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// logAudit records what `actor` just did. Failures are logged by the audit service, never returned.
func logAudit(ctx echo.Context, svc audit.Service, actor user.User, action, entity, entityID, detail string) {
	if svc == nil {
		return
	}
	svc.Log(ctx.Request().Context(), audit.NewEntry{
		ActorID:   actor.ID,
		ActorName: actor.DisplayName(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Detail:    detail,
	})
}
