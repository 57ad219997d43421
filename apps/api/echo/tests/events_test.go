package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldtrack/core/notify"
	"github.com/fieldtrack/fieldtrack/core/user"
)

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func Test_eventsApi(t *testing.T) {
	env := setup(t)

	coord := env.createUser(t, "Coordinator", "coord01", user.RoleCoordinator)
	jane := env.createUser(t, "Jane Doe", "janedoe", user.RoleStudent)
	john := env.createUser(t, "John Smith", "johnsmith", user.RoleStudent)

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/events", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "students only follow themselves", method: http.MethodGet, path: "/v1/events?student=" + john.ID,
			token: env.token(t, jane), wantCode: http.StatusForbidden,
		},
	})

	srv := httptest.NewServer(env.app)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connect := func(t *testing.T, query string) (*bufio.Reader, func()) {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?"+query, nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		r := bufio.NewReader(resp.Body)
		require.Equal(t, ": connected", readLine(t, r))
		require.Equal(t, "", readLine(t, r))
		return r, func() { _ = resp.Body.Close() }
	}

	// token passed as query param, as EventSource can't set headers
	janeStream, closeJane := connect(t, "token="+env.token(t, jane))
	defer closeJane()
	coordStream, closeCoord := connect(t, "token="+env.token(t, coord)+"&student="+john.ID)
	defer closeCoord()

	env.broker.Publish(notify.Event{Type: notify.DataPurged, StudentID: john.ID})
	env.broker.Publish(notify.Event{Type: notify.ProgressChanged, StudentID: jane.ID, PhaseID: "orientation"})

	t.Run("own events only", func(t *testing.T) {
		assert.Equal(t, "event: progress.changed", readLine(t, janeStream))
		data := readLine(t, janeStream)
		require.True(t, strings.HasPrefix(data, "data: "), data)

		var evt notify.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &evt))
		assert.Equal(t, jane.ID, evt.StudentID)
		assert.Equal(t, "orientation", evt.PhaseID)
		assert.False(t, evt.At.IsZero())
	})

	t.Run("coordinator filter", func(t *testing.T) {
		assert.Equal(t, "event: data.purged", readLine(t, coordStream))
		assert.Contains(t, readLine(t, coordStream), `"student_id":"`+john.ID+`"`)
	})

	t.Run("broker closed", func(t *testing.T) {
		env.broker.Close()
		_, err := io.ReadAll(janeStream)
		assert.NoError(t, err)
	})
}
