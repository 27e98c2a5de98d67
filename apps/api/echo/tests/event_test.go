package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/babillard/apps/api/echo"
	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/event"
)

func createEvent(t *testing.T, app testApp, actor core.Actor, title string, start time.Time, public bool) event.Event {
	t.Helper()
	res, err := app.events.Create(
		context.Background(),
		event.NewEvent{Title: title, StartAt: start, EndAt: start.Add(time.Hour), IsPublic: &public},
		actor,
	)
	require.NoError(t, err)
	return res.Event
}

func Test_eventApi_auth(t *testing.T) {
	app := setup(t)

	expired := echoapi.NewClaims(student1, app.conf)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := echoapi.GenerateToken(expired, app.conf.SecretKey)
	require.NoError(t, err)

	badRoleToken, err := echoapi.GenerateToken(echoapi.NewClaims(core.Actor{ID: "x", Role: "janitor"}, app.conf), app.conf.SecretKey)
	require.NoError(t, err)

	foreignToken, err := echoapi.GenerateToken(
		&echoapi.Claims{StandardClaims: jwt.StandardClaims{Subject: "s1"}, Role: core.RoleStudent}, "other-secret")
	require.NoError(t, err)

	invalidJWT := marchallObj(t, httpErr{Error: "invalid or expired jwt"})
	tests := []httpTest{
		{name: "home", path: "/", wantCode: http.StatusOK},
		{name: "auth required", path: "/v1/events", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "expired token", path: "/v1/events", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "foreign token", path: "/v1/events", token: foreignToken, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{
			name: "unknown role", path: "/v1/events", token: badRoleToken, wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid token claims"}),
		},
		{name: "valid token", path: "/v1/events", token: app.getToken(t, student1), wantCode: http.StatusOK, wantData: []byte("[]")},
	}
	runHTTPTests(t, app, tests)
}

func Test_eventApi_create(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, teacher)
	start := core.Now().Add(24 * time.Hour)

	tests := []httpTest{
		{
			name: "same start and end", method: http.MethodPost, path: "/v1/events", token: token,
			body:     marchallObj(t, map[string]interface{}{"title": "Science Fair", "start_at": start, "end_at": start}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_at": "end_at must be after start_at"}),
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/events", token: token,
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"title":    "this field is required",
				"start_at": "this field is required",
				"end_at":   "this field is required",
			}),
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/events", token: token,
			body: []byte(`{"title": 1}`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	rec := app.do(http.MethodPost, "/v1/events", token, marchallObj(t, map[string]interface{}{
		"title":    "Science Fair",
		"start_at": start,
		"end_at":   start.Add(2 * time.Hour),
		"location": "Gym",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res event.CreateResult
	unmarshal(t, rec, &res)
	assert.NotEmpty(t, res.Event.ID)
	assert.Equal(t, "Science Fair", res.Event.Title)
	assert.Equal(t, teacher.ID, res.Event.CreatedBy)
	assert.Equal(t, event.DefaultEventType, res.Event.EventType)
	assert.True(t, res.Event.IsPublic)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.FanOut)
	assert.Equal(t, 3, res.FanOut.Delivered)
	assert.Contains(t, app.observer.Ops(), "event.create:success")

	// every other user was notified
	for _, actor := range []core.Actor{admin, student1, student2} {
		rec = app.do(http.MethodGet, "/v1/notifications/count?filter=unread", app.getToken(t, actor))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count": 1}`)}, rec)
	}
}

func Test_eventApi_query(t *testing.T) {
	app := setup(t)
	base := core.Now().Truncate(time.Hour).Add(24 * time.Hour)

	ev1 := createEvent(t, app, teacher, "Exam", base, true)
	ev2 := createEvent(t, app, student1, "Study group", base.Add(time.Hour), false)
	ev3 := createEvent(t, app, teacher, "Science Fair", base.Add(48*time.Hour), true)

	path := func(from, to time.Time, createdBy string, limit string) string {
		v := make(url.Values)
		if !from.IsZero() {
			v.Add("from", from.Format(time.RFC3339))
		}
		if !to.IsZero() {
			v.Add("to", to.Format(time.RFC3339))
		}
		if createdBy != "" {
			v.Add("created_by", createdBy)
		}
		if limit != "" {
			v.Add("limit", limit)
		}
		return "/v1/events?" + v.Encode()
	}
	ids := func(evs ...event.Event) []string {
		out := make([]string, 0, len(evs))
		for _, ev := range evs {
			out = append(out, ev.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		path  string
		actor core.Actor
		want  []string
	}{
		{"admin sees all", "/v1/events", admin, ids(ev1, ev2, ev3)},
		{"creator sees own private", "/v1/events", student1, ids(ev1, ev2, ev3)},
		{"others see public", "/v1/events", student2, ids(ev1, ev3)},
		{"teachers see public", "/v1/events", teacher, ids(ev1, ev3)},
		{"window", path(base, base.Add(time.Hour), "", ""), admin, ids(ev1, ev2)},
		{"created by", path(time.Time{}, time.Time{}, teacher.ID, ""), admin, ids(ev1, ev3)},
		{"limit", path(time.Time{}, time.Time{}, "", "1"), admin, ids(ev1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path, app.getToken(t, tt.actor))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var evs []event.Event
			unmarshal(t, rec, &evs)
			assert.Equal(t, tt.want, ids(evs...))
		})
	}

	token := app.getToken(t, admin)
	runHTTPTests(t, app, []httpTest{
		{
			name: "bad from", path: "/v1/events?from=yesterday", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"from": "invalid value"}),
		},
		{
			name: "bad limit", path: "/v1/events?limit=ten", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"limit": "invalid value"}),
		},
		{
			name: "to before from", path: path(base, base.Add(-time.Hour), "", ""), token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"to": "to must be after from"}),
		},
	})
}

func Test_eventApi_detail(t *testing.T) {
	app := setup(t)
	start := core.Now().Add(24 * time.Hour)
	pub := createEvent(t, app, teacher, "Exam", start, true)
	priv := createEvent(t, app, student1, "Study group", start, false)

	notFound := marchallObj(t, httpErr{Error: "event not found"})
	forbidden := marchallObj(t, httpErr{Error: core.ErrForbidden.Error()})
	tests := []httpTest{
		{name: "public", path: "/v1/events/" + pub.ID, token: app.getToken(t, student2), wantCode: http.StatusOK},
		{name: "private (other)", path: "/v1/events/" + priv.ID, token: app.getToken(t, student2), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "private (creator)", path: "/v1/events/" + priv.ID, token: app.getToken(t, student1), wantCode: http.StatusOK},
		{name: "private (admin)", path: "/v1/events/" + priv.ID, token: app.getToken(t, admin), wantCode: http.StatusOK},
		{name: "unknown", path: "/v1/events/nope", token: app.getToken(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "update (not creator)", method: http.MethodPatch, path: "/v1/events/" + pub.ID, token: app.getToken(t, student1),
			body: []byte(`{"title": "Hacked"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "update (invalid dates)", method: http.MethodPatch, path: "/v1/events/" + pub.ID, token: app.getToken(t, teacher),
			body:     marchallObj(t, map[string]interface{}{"end_at": start.Add(-time.Hour)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_at": "end_at must be after start_at"}),
		},
		{
			name: "delete (not creator)", method: http.MethodDelete, path: "/v1/events/" + pub.ID, token: app.getToken(t, student2),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "delete (hidden)", method: http.MethodDelete, path: "/v1/events/" + priv.ID, token: app.getToken(t, teacher),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
	}
	runHTTPTests(t, app, tests)

	// the creator updates
	rec := app.do(http.MethodPatch, "/v1/events/"+pub.ID, app.getToken(t, teacher), []byte(`{"title": "Final exam", "location": "Hall B"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ev event.Event
	unmarshal(t, rec, &ev)
	assert.Equal(t, "Final exam", ev.Title)
	assert.Equal(t, "Hall B", ev.Location)
	assert.True(t, ev.StartAt.Equal(pub.StartAt))

	// an admin deletes
	rec = app.do(http.MethodDelete, "/v1/events/"+priv.ID, app.getToken(t, admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(http.MethodGet, "/v1/events/"+priv.ID, app.getToken(t, admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
