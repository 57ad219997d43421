package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core/user"
)

const contextStudentKey = "student"

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// coordinatorMiddleware lets coordinators and admins through.
func coordinatorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsCoordinator || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// studentMiddleware loads the `:id` student into the context. Students only see themselves;
// coordinators and admins see every student. Anything else is reported as not found.
func studentMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			id := ctx.Param("id")
			if id != ctxUsr.ID && !(ctxUsr.IsCoordinator() || ctxUsr.IsAdmin()) {
				return errHttpNotFound
			}
			student, err := svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding student by ID")
			}
			if !student.IsStudent() {
				return errHttpNotFound
			}
			ctx.Set(contextStudentKey, student)
			return next(ctx)
		}
	}
}

// selfMiddleware restricts a student route to the student themself.
func selfMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if ctx.Param("id") != ctxUsr.ID {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// jwtHeaderOrQuery authenticates with the Authorization header, falling back to the `token` query param
// (EventSource can't set headers).
func jwtHeaderOrQuery(header, query echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		byHeader, byQuery := header(next), query(next)
		return func(ctx echo.Context) error {
			if ctx.Request().Header.Get(echo.HeaderAuthorization) == "" && ctx.QueryParam("token") != "" {
				return byQuery(ctx)
			}
			return byHeader(ctx)
		}
	}
}
