package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/audit"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
)

var errStudentNotFoundInCtx = errors.New("student not found in echo.Context")

type studentApi struct {
	conf     *core.Config
	svc      training.Service
	usrSvc   user.Service
	auditSvc audit.Service
	mailSvc  core.EmailService
	renderer training.ReportRenderer
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := studentApi{
		conf:     opts.Conf,
		svc:      opts.TrainingSvc,
		usrSvc:   opts.UserSvc,
		auditSvc: opts.AuditSvc,
		mailSvc:  opts.MailSvc,
		renderer: opts.Renderer,
		validate: opts.Validate,
	}

	sg := g.Group("/students", jwt)

	// coordinator portal
	sg.GET("", api.overview, coordinatorMiddleware())

	// student portal & coordinator review
	dg := sg.Group("/:id", studentMiddleware(api.usrSvc))
	dg.GET("/progress", api.progress)
	dg.GET("/submissions", api.querySubmissions)
	dg.GET("/submissions/:phase/:form", api.retrieveSubmission)
	dg.PUT("/submissions/:phase/:form", api.saveSubmission, selfMiddleware(api.usrSvc))
	dg.GET("/report", api.downloadReport)
	dg.POST("/report/email", api.emailReport, coordinatorMiddleware())
	dg.PUT("/phases/:phase/sign-off", api.signOff, coordinatorMiddleware())

	// admin portal
	dg.DELETE("/submissions", api.purge, adminMiddleware())
}

func getContextStudent(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextStudentKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errors.Wrap(errStudentNotFoundInCtx, "retrieving student from context")
}

func toStudent(usr user.User) training.Student {
	return training.Student{ID: usr.ID, Name: usr.DisplayName(), Username: usr.Username, Email: usr.Email}
}

func formNumberParam(ctx echo.Context) (int, error) {
	form, err := strconv.Atoi(ctx.Param("form"))
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "form_number", Error: "must be a number"})
	}
	return form, nil
}

// Handlers

func (api *studentApi) overview(ctx echo.Context) error {
	filter := &user.QueryFilter{
		Search: core.CleanString(ctx.QueryParam("search")),
		Roles:  []string{user.RoleStudent},
	}
	active := true
	filter.IsActive = &active
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rctx := ctx.Request().Context()
	users, err := api.usrSvc.Query(rctx, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	students := make([]training.Student, 0, len(users))
	for _, usr := range users {
		students = append(students, toStudent(usr))
	}

	overviews, err := api.svc.Overview(rctx, students)
	if err != nil {
		return errors.Wrap(err, "building overview")
	}
	return ctx.JSON(http.StatusOK, overviews)
}

func (api *studentApi) progress(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	prog, err := api.svc.Progress(ctx.Request().Context(), student.ID)
	if err != nil {
		return errors.Wrap(err, "computing progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *studentApi) querySubmissions(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	filter := training.QueryFilter{
		PhaseID: training.PhaseID(core.CleanString(ctx.QueryParam("phase"))),
		Status:  training.SubmissionStatus(core.CleanString(ctx.QueryParam("status"), true /* lower */)),
	}
	if form := ctx.QueryParam("form"); form != "" {
		if filter.FormNumber, err = strconv.Atoi(form); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "form", Error: "must be a number"})
		}
	}
	filter.StudentIDs = []string{student.ID}

	subs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []training.FormSubmission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *studentApi) retrieveSubmission(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	form, err := formNumberParam(ctx)
	if err != nil {
		return err
	}
	f, err := api.svc.Get(ctx.Request().Context(), student.ID, training.PhaseID(ctx.Param("phase")), form)
	if err != nil {
		return errors.Wrap(err, "getting form")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *studentApi) saveSubmission(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	form, err := formNumberParam(ctx)
	if err != nil {
		return err
	}

	var data training.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	phaseID := training.PhaseID(ctx.Param("phase"))
	sub, err := api.svc.Save(ctx.Request().Context(), student.ID, phaseID, form, data)
	if err != nil {
		return errors.Wrap(err, "saving submission")
	}
	logAudit(ctx, api.auditSvc, student, audit.ActionSubmissionSave, audit.EntitySubmission,
		fmt.Sprintf("%s/%s/%d", student.ID, phaseID, form), string(sub.Status))

	return ctx.JSON(http.StatusOK, sub)
}

func (api *studentApi) renderReport(ctx echo.Context, student user.User) (training.StudentReport, *bytes.Buffer, error) {
	report, err := api.svc.Report(ctx.Request().Context(), toStudent(student))
	if err != nil {
		return report, nil, errors.Wrap(err, "building report")
	}
	buf := new(bytes.Buffer)
	if err = api.renderer.RenderStudentReport(buf, report); err != nil {
		return report, nil, errors.Wrap(err, "rendering report")
	}
	return report, buf, nil
}

func reportFilename(student user.User) string {
	name := student.Username
	if name == "" {
		name = student.ID
	}
	return "progress-report-" + strings.ReplaceAll(name, " ", "_") + ".pdf"
}

func (api *studentApi) downloadReport(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	_, buf, err := api.renderReport(ctx, student)
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	logAudit(ctx, api.auditSvc, ctxUsr, audit.ActionReportExport, audit.EntityReport, student.ID, "")

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", reportFilename(student)))
	return ctx.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// emailReport sends the PDF report to the requesting coordinator.
func (api *studentApi) emailReport(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if ctxUsr.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "your account has no email address"})
	}

	report, buf, err := api.renderReport(ctx, student)
	if err != nil {
		return err
	}

	sum := report.Progress.Summary
	msg := &core.EmailMessage{
		To:              []mail.Address{{Name: ctxUsr.Name, Address: ctxUsr.Email}},
		Subject:         "Progress report: " + student.DisplayName(),
		TemplateName:    "progress_report",
		FrontendBaseURL: api.conf.FrontendBaseURL,
		TemplateData: map[string]interface{}{
			"StudentName":       student.DisplayName(),
			"OverallPercentage": sum.OverallPercentage,
			"CompletedForms":    sum.CompletedForms,
			"TotalForms":        sum.TotalForms,
			"CompletedPhases":   sum.CompletedPhases,
			"TotalPhases":       sum.TotalPhases,
		},
	}
	if err = msg.Attach(buf, reportFilename(student), "application/pdf"); err != nil {
		return errors.Wrap(err, "attaching report")
	}
	api.mailSvc.SendMessages(msg)
	logAudit(ctx, api.auditSvc, ctxUsr, audit.ActionReportEmail, audit.EntityReport, student.ID, ctxUsr.Email)

	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The report will be emailed to " + ctxUsr.Email + "."})
}

func (api *studentApi) signOff(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data training.SignOff
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignOff")
	}

	phaseID := training.PhaseID(ctx.Param("phase"))
	prog, err := api.svc.SignOff(ctx.Request().Context(), student.ID, phaseID, data.SignedOff, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "signing off phase")
	}
	logAudit(ctx, api.auditSvc, ctxUsr, audit.ActionSignOff, audit.EntityPhase,
		fmt.Sprintf("%s/%s", student.ID, phaseID), strconv.FormatBool(data.SignedOff))

	return ctx.JSON(http.StatusOK, prog)
}

func (api *studentApi) purge(ctx echo.Context) error {
	student, err := getContextStudent(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cnt, err := api.svc.Purge(ctx.Request().Context(), student.ID)
	if err != nil {
		return errors.Wrap(err, "purging submissions")
	}
	logAudit(ctx, api.auditSvc, ctxUsr, audit.ActionPurge, audit.EntitySubmission, student.ID, strconv.Itoa(cnt)+" submissions")

	return ctx.NoContent(http.StatusNoContent)
}
