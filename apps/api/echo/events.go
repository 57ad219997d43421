package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core/notify"
	"github.com/fieldtrack/fieldtrack/core/user"
)

type eventsApi struct {
	usrSvc    user.Service
	broker    *notify.Broker
	keepAlive time.Duration
}

func registerEventsAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := eventsApi{
		usrSvc:    opts.UserSvc,
		broker:    opts.Broker,
		keepAlive: opts.Conf.Server.EventsKeepAlive,
	}
	if api.keepAlive <= 0 {
		api.keepAlive = 25 * time.Second
	}
	g.GET("/events", api.stream, jwt)
}

// stream pushes the "data changed" events as server-sent events until the client goes away.
// Students only receive their own events; coordinators and admins may filter with `?student=`.
func (api *eventsApi) stream(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	studentID := ctx.QueryParam("student")
	if !(ctxUsr.IsCoordinator() || ctxUsr.IsAdmin()) {
		if studentID != "" && studentID != ctxUsr.ID {
			return errHttpForbidden
		}
		studentID = ctxUsr.ID
	}

	events, cancel := api.broker.Subscribe(studentID)
	defer cancel()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no") // nginx
	res.WriteHeader(http.StatusOK)
	if _, err = fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(api.keepAlive)
	defer ticker.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if _, err = fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil // client gone
			}
		case evt, ok := <-events:
			if !ok { // broker closed
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return errors.Wrap(err, "marshalling event")
			}
			if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return nil
			}
		}
		res.Flush()
	}
}
