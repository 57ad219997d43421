package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/fieldtrack/fieldtrack/apps/api/echo"
	"github.com/fieldtrack/fieldtrack/core/audit"
	"github.com/fieldtrack/fieldtrack/core/user"
	"github.com/fieldtrack/fieldtrack/tests"
)

func userIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var users []user.User
	unmarshall(t, rec, &users)
	ids := make([]string, 0, len(users))
	for _, usr := range users {
		ids = append(ids, usr.ID)
	}
	return ids
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin", "admin01", user.RoleAdmin)
	coord := env.createUser(t, "Coordinator", "coord01", user.RoleCoordinator)
	jane := env.createUser(t, "Jane Doe", "janedoe", user.RoleStudent)
	john := env.createUser(t, "John Smith", "johnsmith", user.RoleStudent)
	adminToken := env.token(t, admin)

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodGet, path: "/v1/users", token: env.token(t, coord),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
	})

	path := func(v url.Values) string { return "/v1/users?" + v.Encode() }
	tests := []struct {
		name    string
		path    string
		wantIDs []string
	}{
		{name: "all", path: "/v1/users", wantIDs: []string{admin.ID, coord.ID, jane.ID, john.ID}},
		{name: "search", path: path(url.Values{"search": {"JOHN"}}), wantIDs: []string{john.ID}},
		{name: "role", path: path(url.Values{"role": {user.RoleStudent}}), wantIDs: []string{jane.ID, john.ID}},
		{name: "ordering", path: path(url.Values{"ordering": {"-name"}}), wantIDs: []string{john.ID, jane.ID, coord.ID, admin.ID}},
		{name: "unknown ordering field", path: path(url.Values{"ordering": {"password_hash"}}), wantIDs: []string{admin.ID, coord.ID, jane.ID, john.ID}},
		{name: "nothing found", path: path(url.Values{"search": {"nobody"}}), wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(newAuthRequest(http.MethodGet, tt.path, adminToken))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantIDs, userIDs(t, rec))
		})
	}
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)

	pwd := "Sup3r$ecret!"
	jane := testutil.CreateUser(t, env.usrRepo, "Jane Doe", "janedoe", "jane@doe.io", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog01", "ndog@test.io", pwd, []string{user.RoleStudent}, false)

	authFailed := marshallObj(t, httpErr{Error: "authentication failed"})
	runHTTPTests(t, env, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "nobody", Password: pwd}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "janedoe", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "inactive account", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "ndog01", Password: pwd}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	// by email, case-insensitive
	rec := env.do(newRequest(http.MethodPost, "/v1/users/login", marshallObj(t, echoapi.LoginRequest{Username: " JANE@doe.io", Password: pwd})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshall(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	refreshed, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: jane.ID})
	require.NoError(t, err)
	assert.False(t, refreshed.LastLogin.IsZero())

	entries, err := env.auditSvc.Query(context.Background(), &audit.QueryFilter{Action: audit.ActionLogin}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, jane.ID, entries[0].ActorID)
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)

	jane := env.createUser(t, "Jane Doe", "janedoe", user.RoleStudent)

	now := time.Now()
	claims := echoapi.GetUserClaims(env.conf, jane)
	claims.OrigIssuedAt = now.Add(-2 * env.conf.Server.JWTRefreshExpirationDelta).Unix() // older than threshold
	unrefreshable, err := echoapi.GenerateToken(env.conf, claims)
	require.NoError(t, err)

	expired := echoapi.GetUserClaims(env.conf, jane)
	expired.StandardClaims = jwt.StandardClaims{Subject: jane.ID, ExpiresAt: now.Add(-time.Minute).Unix()}
	expiredToken, err := echoapi.GenerateToken(env.conf, expired)
	require.NoError(t, err)

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "expired token", method: http.MethodPost, path: "/v1/users/token-refresh", token: expiredToken, wantCode: http.StatusUnauthorized},
		{
			name: "refresh period expired", method: http.MethodPost, path: "/v1/users/token-refresh", token: unrefreshable,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})

	rec := env.do(newAuthRequest(http.MethodPost, "/v1/users/token-refresh", env.token(t, jane)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshall(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)

	jane := testutil.CreateUser(t, env.usrRepo, "Jane Doe", "janedoe", "jane@doe.io", "0ld$ecret!", []string{user.RoleStudent}, true)
	successData := marshallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	runHTTPTests(t, env, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset",
			body:     marshallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/password-reset",
			body: marshallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.io"}), wantData: successData,
		},
	})
	assert.Empty(t, env.mailSvc.Sent())

	rec := env.do(newRequest(http.MethodPost, "/v1/users/password-reset", marshallObj(t, echoapi.PasswordResetRequest{Email: jane.Email})))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)

	sent := env.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, jane.Email, sent[0].To[0].Address)
	assert.Regexp(t, regexp.MustCompile("/password-reset/.+/.+"), sent[0].TextContent)

	// confirm
	validToken, err := user.MakeToken(env.conf, jane)
	require.NoError(t, err)
	newPwd := "N3w$ecret!"

	runHTTPTests(t, env, []httpTest{
		{
			name: "weak password", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marshallObj(t, user.ResetUserPassword{Token: validToken, UID: user.EncodeUID(jane), Password: "password", PasswordConfirm: "password"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marshallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: user.EncodeUID(jane), Password: newPwd, PasswordConfirm: newPwd}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "valid token", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marshallObj(t, user.ResetUserPassword{Token: validToken, UID: user.EncodeUID(jane), Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marshallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	refreshed, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: jane.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword(newPwd))
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin", "admin01", user.RoleAdmin)
	owner := env.createUser(t, "Owner", "owner01", user.RoleAdminOwner)

	newUser := func(uname string, roles ...string) []byte {
		return marshallObj(t, user.NewUser{
			Name: "New " + uname, Username: uname, Password: "Sup3r$ecret!", PasswordConfirm: "Sup3r$ecret!", Roles: roles,
		})
	}

	runHTTPTests(t, env, []httpTest{
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, admin),
			body: newUser("newowner", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, admin),
			body: newUser("admin01", user.RoleStudent), wantCode: http.StatusBadRequest,
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, owner),
			body: newUser("newadmin", user.RoleAdmin), wantCode: http.StatusCreated,
		},
	})

	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "newadmin"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)
}

func Test_userApi_detail(t *testing.T) {
	env := setup(t)

	admin := env.createUser(t, "Admin", "admin01", user.RoleAdmin)
	jane := env.createUser(t, "Jane Doe", "janedoe", user.RoleStudent)
	john := env.createUser(t, "John Smith", "johnsmith", user.RoleStudent)
	janeToken := env.token(t, jane)
	notFound := marshallObj(t, httpErr{Error: "not found"})

	runHTTPTests(t, env, []httpTest{
		{name: "self", method: http.MethodGet, path: "/v1/users/" + jane.ID, token: janeToken},
		{name: "someone else", method: http.MethodGet, path: "/v1/users/" + john.ID, token: janeToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", method: http.MethodGet, path: "/v1/users/" + john.ID, token: env.token(t, admin)},
		{name: "unknown", method: http.MethodGet, path: "/v1/users/nope", token: env.token(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "students can't change their roles", method: http.MethodPut, path: "/v1/users/" + jane.ID, token: janeToken,
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{name: "update own name", method: http.MethodPut, path: "/v1/users/" + jane.ID, token: janeToken, body: []byte(`{"name": "Jane Roe"}`)},
		{name: "students can't delete", method: http.MethodDelete, path: "/v1/users/" + jane.ID, token: janeToken, wantCode: http.StatusForbidden},
		{name: "admins can't delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: env.token(t, admin), wantCode: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: "/v1/users/" + john.ID, token: env.token(t, admin), wantCode: http.StatusNoContent},
		{name: "bulk delete with self", method: http.MethodDelete, path: "/v1/users?id=" + admin.ID + "&id=" + jane.ID, token: env.token(t, admin), wantCode: http.StatusForbidden},
	})

	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: jane.ID})
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", usr.Name)
	_, err = env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: john.ID})
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_userApi_delete(t *testing.T) {
	env := setup(t)

	owner := env.createUser(t, "Owner", "owner01", user.RoleAdminOwner)
	admin := env.createUser(t, "Admin", "admin01", user.RoleAdmin)
	coord := env.createUser(t, "Coordinator", "coord01", user.RoleCoordinator)
	jane := env.createUser(t, "Jane Doe", "janedoe", user.RoleStudent)
	john := env.createUser(t, "John Smith", "johnsmith", user.RoleStudent)
	adminToken := env.token(t, admin)
	forbidden := marshallObj(t, httpErr{Error: "permission denied"})

	runHTTPTests(t, env, []httpTest{
		{name: "coordinators can't delete", method: http.MethodDelete, path: "/v1/users/" + coord.ID, token: env.token(t, coord), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "higher role", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "bulk: coordinators can't delete", method: http.MethodDelete, path: "/v1/users?id=" + jane.ID, token: env.token(t, coord), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "bulk: higher role", method: http.MethodDelete, path: "/v1/users?id=" + jane.ID + "&id=" + owner.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "bulk: no ids", method: http.MethodDelete, path: "/v1/users", token: adminToken, wantCode: http.StatusNoContent},
		{name: "bulk: unknown ids only", method: http.MethodDelete, path: "/v1/users?id=nope", token: adminToken, wantCode: http.StatusNoContent},
		{name: "bulk", method: http.MethodDelete, path: "/v1/users?id=" + jane.ID + "&id=" + coord.ID + "&id=nope", token: adminToken, wantCode: http.StatusNoContent},
		{name: "owner deletes admin", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: env.token(t, owner), wantCode: http.StatusNoContent},
	})

	ctx := context.Background()
	for _, id := range []string{owner.ID, john.ID} {
		_, err := env.usrRepo.GetUser(ctx, user.GetFilter{ID: id})
		assert.NoError(t, err)
	}
	for _, id := range []string{admin.ID, coord.ID, jane.ID} {
		_, err := env.usrRepo.GetUser(ctx, user.GetFilter{ID: id})
		assert.Equal(t, user.ErrNotFound, err)
	}

	entries, err := env.auditSvc.Query(ctx, &audit.QueryFilter{Action: audit.ActionUserDelete}, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
