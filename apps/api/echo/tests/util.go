package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	echoapi "github.com/trezcool/babillard/apps/api/echo"
	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/dashboard"
	"github.com/trezcool/babillard/core/event"
	"github.com/trezcool/babillard/core/notification"
	"github.com/trezcool/babillard/core/user"
	sqlxrepos "github.com/trezcool/babillard/storage/database/sqlx"
	testutil "github.com/trezcool/babillard/tests"
)

var (
	admin    = core.Actor{ID: "admin", Role: core.RoleAdmin}
	teacher  = core.Actor{ID: "t1", Role: core.RoleTeacher}
	student1 = core.Actor{ID: "s1", Role: core.RoleStudent}
	student2 = core.Actor{ID: "s2", Role: core.RoleStudent}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type testApp struct {
	server   *echoapi.Server
	conf     *core.Config
	users    user.Repository
	events   *event.Service
	notifs   *notification.Service
	observer *testutil.Observer
}

func setup(t *testing.T) testApp {
	t.Helper()

	conf := &core.Config{
		AppName:   "Babillard",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			DisableReqLogs:     true,
		},
	}

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)
	for _, a := range []core.Actor{admin, teacher, student1, student2} {
		testutil.CreateUser(t, usrRepo, a.ID, a.ID, a.Role)
	}

	// set up services
	validate := testutil.NewValidate()
	logger := testutil.NewLogger()
	usrSvc := user.NewService(usrRepo, validate, testutil.Translator)
	notifSvc := notification.NewService(db, notifRepo, usrRepo, notification.Options{PageSize: 2, MaxPageSize: 10})
	eventSvc := event.NewService(sqlxrepos.NewEventRepository(db), notifSvc, validate, testutil.Translator, logger)
	dashSvc := dashboard.NewService(usrSvc, eventSvc, notifSvc, dashboard.Options{})
	obs := new(testutil.Observer)

	// set up server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		EventSvc:     eventSvc,
		NotifSvc:     notifSvc,
		ReadState:    notification.NewReadState(notifRepo),
		DashboardSvc: dashSvc,
		Observer:     obs,
	})

	return testApp{
		server:   server,
		conf:     conf,
		users:    usrRepo,
		events:   eventSvc,
		notifs:   notifSvc,
		observer: obs,
	}
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

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

// do serves the request and returns the recorded response.
func (app testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) getToken(t *testing.T, actor core.Actor) string {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(actor, app.conf), app.conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, app.do(method, tt.path, tt.token, tt.body))
		})
	}
}
