package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fieldtrack/fieldtrack/core/training"
)

type ProgramResponse struct {
	Name            string           `json:"name"`
	AddendumPattern string           `json:"addendum_pattern,omitempty"`
	Phases          []training.Phase `json:"phases"`
	TotalForms      int              `json:"total_forms"`
}

func registerProgramAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	program := opts.TrainingSvc.Program()
	g.GET("/program", func(ctx echo.Context) error {
		resp := ProgramResponse{
			Name:            program.Name,
			AddendumPattern: program.AddendumPattern,
			Phases:          make([]training.Phase, 0, len(program.Phases)),
		}
		for _, ph := range program.Phases {
			ph.AlwaysAccessible = program.IsAlwaysAccessible(ph.ID) // flag or addendum pattern
			resp.Phases = append(resp.Phases, ph)
			resp.TotalForms += ph.Total
		}
		return ctx.JSON(http.StatusOK, resp)
	}, jwt)
}
