package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/fieldtrack/fieldtrack/apps/api/echo"
	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/audit"
	"github.com/fieldtrack/fieldtrack/core/notify"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
	emailsvc "github.com/fieldtrack/fieldtrack/services/email"
	logsvc "github.com/fieldtrack/fieldtrack/services/logger"
	reportsvc "github.com/fieldtrack/fieldtrack/services/report"
	sqlxrepos "github.com/fieldtrack/fieldtrack/storage/database/sqlx"
	"github.com/fieldtrack/fieldtrack/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf     *core.Config
	app      *echoapi.Server
	program  *training.Program
	usrRepo  user.Repository
	subRepo  training.SubmissionRepository
	auditSvc audit.Service
	mailSvc  *emailsvc.ConsoleServiceMock
	broker   *notify.Broker
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	env := &testEnv{
		conf:    conf,
		usrRepo: sqlxrepos.NewUserRepository(db),
		subRepo: sqlxrepos.NewSubmissionRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		broker:  notify.NewBroker(16),
	}
	t.Cleanup(env.broker.Close)

	program, err := training.DefaultProgram()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	env.program = program

	// set up services
	usrSvc := user.NewServiceMock(env.usrRepo, env.mailSvc, conf)
	trainingSvc := training.NewService(program, db, env.subRepo, sqlxrepos.NewCompletionRepository(db), env.broker)
	env.auditSvc = audit.NewService(sqlxrepos.NewAuditRepository(db), logger)

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	training.InitValidators(validate, translator)

	// set up server
	env.app = echoapi.NewServer(echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		TrainingSvc:    trainingSvc,
		AuditSvc:       env.auditSvc,
		MailSvc:        env.mailSvc,
		Renderer:       reportsvc.NewPDFRenderer(conf.AppName),
		Broker:         env.broker,
	})
	return env
}

func (env *testEnv) createUser(t *testing.T, name, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, env.usrRepo, name, uname, uname+"@test.io", "", roles, true)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.conf, echoapi.GetUserClaims(env.conf, usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	return marshallObj(t, objs)
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall() failed: %v; body: %s", err, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
