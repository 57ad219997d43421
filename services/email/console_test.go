package emailsvc

import (
	"bytes"
	"io"
	"log"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldtrack/core"
	logsvc "github.com/fieldtrack/fieldtrack/services/logger"
)

func newTestMock() *ConsoleServiceMock {
	conf := core.NewTestConfig()
	return NewConsoleServiceMock(conf, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf))
}

func TestConsoleService_Templated(t *testing.T) {
	svc := newTestMock()

	svc.SendMessages(&core.EmailMessage{
		To:              []mail.Address{{Name: "Jane Doe", Address: "jane@doe.io"}},
		Subject:         "Password Reset",
		TemplateName:    "password_reset",
		FrontendBaseURL: "http://localhost:3000",
		TemplateData:    map[string]string{"Name": "Jane", "UID": "uid", "Token": "tok-en"},
	})

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "tok-en")
	assert.Contains(t, sent[0].HTMLContent, "tok-en")

	svc.Reset()
	assert.Empty(t, svc.Sent())
}

func TestConsoleService_Skipped(t *testing.T) {
	svc := newTestMock()

	svc.SendMessages(
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "jane@doe.io"}}, Subject: "no content"},
		&core.EmailMessage{To: []mail.Address{{Address: "jane@doe.io"}}, Subject: "unknown", TemplateName: "nope"},
	)
	assert.Empty(t, svc.Sent())
}

func TestConsoleService_Output(t *testing.T) {
	conf := core.NewTestConfig()
	var out bytes.Buffer
	svc := newConsoleService(conf, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf), &out)

	msg := core.EmailMessage{
		To:      []mail.Address{{Name: "Jane Doe", Address: "jane@doe.io"}},
		Cc:      []mail.Address{{Address: "coord@school.io"}},
		Subject: "Report",
		BodyStr: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.3 fake"), "report.pdf", "application/pdf"))
	svc.sendMessage(&msg)

	email := out.String()
	assert.Contains(t, email, "Subject: ["+conf.AppName+"] Report")
	assert.Contains(t, email, "Cc: <coord@school.io>")
	assert.Contains(t, email, "multipart/mixed")
	assert.Contains(t, email, `filename="report.pdf"`)
	assert.Contains(t, email, "see attached")
	assert.Len(t, svc.Sent(), 1)
}
