package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/grades"
	"gradebook.dev/internal/revoke"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	authSvc *auth.Service
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := auth.NewMemoryStore()
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	authSvc, err := auth.NewService(store, hasher, tokens, auth.WithRevoker(revoke.New(rdb)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	gradeSvc, err := grades.NewService(grades.NewInMemory(), store)
	if err != nil {
		t.Fatalf("grades.NewService: %v", err)
	}

	api, err := New(authSvc, gradeSvc, ReadyProbe{}, Options{Version: "test", LoginBurst: 100, LoginPerSecond: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		authSvc: authSvc,
	}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path, token string, body any) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, token, body)
}

func (c *apiClient) get(path, token string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, token, nil)
}

func (c *apiClient) expect(resp *http.Response, code int) {
	c.t.Helper()
	if resp.StatusCode != code {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		c.t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode, body.String())
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) registerStudent(email, number string) int64 {
	c.t.Helper()
	resp := c.post("/auth/register/student", "", map[string]any{
		"email": email, "password": "secret1", "first_name": "Ada", "last_name": "Lovelace",
		"student_number": number, "date_of_birth": "2005-04-01",
	})
	c.expect(resp, http.StatusCreated)
	return decode[registerResponse](c.t, resp).ID
}

func (c *apiClient) registerTeacher(email, number string) int64 {
	c.t.Helper()
	resp := c.post("/auth/register/teacher", "", map[string]any{
		"email": email, "password": "secret2", "first_name": "Alan", "last_name": "Turing",
		"employee_number": number, "department": "Maths",
	})
	c.expect(resp, http.StatusCreated)
	return decode[registerResponse](c.t, resp).ID
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.post("/auth/login", "", loginRequest{Email: email, Password: password})
	c.expect(resp, http.StatusOK)
	return decode[loginResponse](c.t, resp).AccessToken
}

func (c *apiClient) adminToken() string {
	c.t.Helper()
	_, err := c.authSvc.BootstrapAdmin(context.Background(), auth.Registration{
		Email: "root@school.test", Password: "rootpass", FirstName: "Root", LastName: "Admin",
	})
	if err != nil {
		c.t.Fatalf("BootstrapAdmin: %v", err)
	}
	return c.login("root@school.test", "rootpass")
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz", "")
	c.expect(resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	c := newTestAPI(t)
	id := c.registerStudent("Ada@School.test", "S-001")

	resp := c.post("/auth/login", "", loginRequest{Email: "ada@school.test", Password: "secret1"})
	c.expect(resp, http.StatusOK)
	login := decode[loginResponse](t, resp)
	if login.TokenType != "Bearer" || login.AccessToken == "" {
		t.Fatalf("unexpected login response %+v", login)
	}
	if login.User.ID != id || login.User.Role != auth.RoleStudent || login.User.FirstName != "Ada" {
		t.Fatalf("unexpected user %+v", login.User)
	}

	resp = c.get("/auth/me", login.AccessToken)
	c.expect(resp, http.StatusOK)
	me := decode[map[string]any](t, resp)
	if me["email"] != "ada@school.test" || me["role"] != "STUDENT" {
		t.Fatalf("unexpected me body %v", me)
	}
	if _, leaked := me["password_hash"]; leaked {
		t.Fatal("me must not expose password material")
	}
	profile, _ := me["profile"].(map[string]any)
	student, _ := profile["student"].(map[string]any)
	if student["student_number"] != "S-001" {
		t.Fatalf("unexpected profile %v", profile)
	}
}

func TestRegisterRejectsDuplicateAndBadInput(t *testing.T) {
	c := newTestAPI(t)
	c.registerStudent("ada@school.test", "S-001")

	resp := c.post("/auth/register/student", "", map[string]any{
		"email": "ADA@school.test", "password": "secret1", "first_name": "A", "last_name": "L", "student_number": "S-002",
	})
	c.expect(resp, http.StatusConflict)
	resp.Body.Close()

	resp = c.post("/auth/register/student", "", map[string]any{
		"email": "bob@school.test", "password": "123", "first_name": "B", "last_name": "C", "student_number": "S-003",
	})
	c.expect(resp, http.StatusBadRequest)
	body := decode[map[string]any](t, resp)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "password") {
		t.Fatalf("expected password message, got %v", body)
	}

	resp = c.post("/auth/register/student", "", map[string]any{
		"email": "eve@school.test", "password": "secret1", "first_name": "E", "last_name": "V",
		"student_number": "S-004", "role": "ADMIN",
	})
	c.expect(resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestLoginFailuresLookAlike(t *testing.T) {
	c := newTestAPI(t)
	c.registerStudent("ada@school.test", "S-001")

	wrong := c.post("/auth/login", "", loginRequest{Email: "ada@school.test", Password: "nope-nope"})
	c.expect(wrong, http.StatusUnauthorized)
	unknown := c.post("/auth/login", "", loginRequest{Email: "ghost@school.test", Password: "nope-nope"})
	c.expect(unknown, http.StatusUnauthorized)

	a := decode[map[string]any](t, wrong)
	b := decode[map[string]any](t, unknown)
	if a["error"] != b["error"] {
		t.Fatalf("login failures differ: %v vs %v", a["error"], b["error"])
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/auth/me", "")
	c.expect(resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected Bearer challenge, got %q", resp.Header.Get("WWW-Authenticate"))
	}
	resp.Body.Close()

	resp = c.get("/auth/me", "not-a-jwt")
	c.expect(resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["error"] != "invalid token" {
		t.Fatalf("unexpected error %v", body)
	}
}

func TestAdminRegistrationRequiresAdmin(t *testing.T) {
	c := newTestAPI(t)
	c.registerStudent("ada@school.test", "S-001")
	student := c.login("ada@school.test", "secret1")

	payload := map[string]any{"email": "second@school.test", "password": "adminpass", "first_name": "S", "last_name": "A"}
	resp := c.post("/auth/register/admin", "", payload)
	c.expect(resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.post("/auth/register/admin", student, payload)
	c.expect(resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.post("/auth/register/admin", c.adminToken(), payload)
	c.expect(resp, http.StatusCreated)
	if created := decode[registerResponse](t, resp); created.Role != auth.RoleAdmin {
		t.Fatalf("unexpected role %s", created.Role)
	}
}

func TestDeactivatedStudentLosesAccess(t *testing.T) {
	c := newTestAPI(t)
	id := c.registerStudent("ada@school.test", "S-001")
	student := c.login("ada@school.test", "secret1")
	admin := c.adminToken()

	resp := c.do(http.MethodPut, "/admin/users/"+strconv.FormatInt(id, 10)+"/status", admin, map[string]any{"active": false})
	c.expect(resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/auth/me", student)
	c.expect(resp, http.StatusUnauthorized)
	if !strings.Contains(resp.Header.Get("WWW-Authenticate"), "invalid_token") {
		t.Fatalf("expected invalid_token challenge, got %q", resp.Header.Get("WWW-Authenticate"))
	}
	resp.Body.Close()

	resp = c.post("/auth/login", "", loginRequest{Email: "ada@school.test", Password: "secret1"})
	c.expect(resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestRoleChangeInvalidatesToken(t *testing.T) {
	c := newTestAPI(t)
	id := c.registerTeacher("alan@school.test", "T-001")
	teacher := c.login("alan@school.test", "secret2")
	admin := c.adminToken()

	resp := c.do(http.MethodPut, "/admin/users/"+strconv.FormatInt(id, 10)+"/role", admin, map[string]any{"role": "student"})
	c.expect(resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/auth/me", teacher)
	c.expect(resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	c := newTestAPI(t)
	admin := c.adminToken()

	resp := c.get("/auth/me", admin)
	c.expect(resp, http.StatusOK)
	me := decode[map[string]any](t, resp)
	id := int64(me["id"].(float64))

	resp = c.do(http.MethodDelete, "/admin/users/"+strconv.FormatInt(id, 10), admin, nil)
	c.expect(resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	c.registerStudent("ada@school.test", "S-001")
	token := c.login("ada@school.test", "secret1")

	resp := c.post("/auth/logout", token, nil)
	c.expect(resp, http.StatusOK)
	if body := decode[map[string]any](t, resp); body["revoked"] != true {
		t.Fatalf("expected revoked logout, got %v", body)
	}

	resp = c.get("/auth/me", token)
	c.expect(resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["error"] != "token revoked" {
		t.Fatalf("unexpected error %v", body)
	}
}

func TestGradeLifecycle(t *testing.T) {
	c := newTestAPI(t)
	studentID := c.registerStudent("ada@school.test", "S-001")
	c.registerStudent("bob@school.test", "S-002")
	c.registerTeacher("alan@school.test", "T-001")
	c.registerTeacher("grace@school.test", "T-002")

	owner := c.login("alan@school.test", "secret2")
	otherTeacher := c.login("grace@school.test", "secret2")
	student := c.login("ada@school.test", "secret1")
	otherStudent := c.login("bob@school.test", "secret1")

	resp := c.post("/teacher/grades", student, map[string]any{"student_id": studentID, "subject_id": 1, "value": 12})
	c.expect(resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.post("/teacher/grades", owner, map[string]any{
		"student_id": studentID, "subject_id": 1, "value": 15, "exam_type": "midterm",
	})
	c.expect(resp, http.StatusCreated)
	g := decode[grades.Grade](t, resp)
	if g.MaxValue != grades.DefaultMaxValue || g.TeacherID == 0 {
		t.Fatalf("unexpected grade %+v", g)
	}
	gradePath := "/teacher/grades/" + strconv.FormatInt(g.ID, 10)

	resp = c.do(http.MethodPut, gradePath, otherTeacher, map[string]any{"value": 3})
	c.expect(resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodPut, gradePath, owner, map[string]any{"value": 17, "comment": "reviewed"})
	c.expect(resp, http.StatusOK)
	if updated := decode[grades.Grade](t, resp); updated.Value != 17 || updated.Comment != "reviewed" {
		t.Fatalf("unexpected update %+v", updated)
	}

	listPath := "/students/" + strconv.FormatInt(studentID, 10) + "/grades"
	resp = c.get(listPath, student)
	c.expect(resp, http.StatusOK)
	list := decode[struct {
		Grades []grades.Grade `json:"grades"`
	}](t, resp)
	if len(list.Grades) != 1 || list.Grades[0].Value != 17 {
		t.Fatalf("unexpected list %+v", list)
	}

	resp = c.get(listPath, otherStudent)
	c.expect(resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.get("/grades/"+strconv.FormatInt(g.ID, 10), otherTeacher)
	c.expect(resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, gradePath, otherTeacher, nil)
	c.expect(resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, gradePath, c.adminToken(), nil)
	c.expect(resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.get("/grades/"+strconv.FormatInt(g.ID, 10), owner)
	c.expect(resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestLoginIsRateLimited(t *testing.T) {
	store := auth.NewMemoryStore()
	hasher, _ := auth.NewHasher(bcrypt.MinCost)
	tokens, _ := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"))
	authSvc, err := auth.NewService(store, hasher, tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	gradeSvc, _ := grades.NewService(grades.NewInMemory(), store)
	api, err := New(authSvc, gradeSvc, ReadyProbe{}, Options{LoginBurst: 1, LoginPerSecond: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()
	c := &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, authSvc: authSvc}

	first := c.post("/auth/login", "", loginRequest{Email: "x@school.test", Password: "whatever"})
	c.expect(first, http.StatusUnauthorized)
	first.Body.Close()

	second := c.post("/auth/login", "", loginRequest{Email: "x@school.test", Password: "whatever"})
	c.expect(second, http.StatusTooManyRequests)
	if second.Header.Get("Retry-After") != "2" {
		t.Fatalf("unexpected Retry-After %q", second.Header.Get("Retry-After"))
	}
	second.Body.Close()

	// A forged X-Forwarded-For does not open a fresh bucket.
	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal(loginRequest{Email: "x@school.test", Password: "whatever"})
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i+1))
		resp, err := c.client.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		c.expect(resp, http.StatusTooManyRequests)
		resp.Body.Close()
	}

	// Other routes are not limited.
	for i := 0; i < 3; i++ {
		resp := c.get("/healthz", "")
		c.expect(resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestNewRejectsMalformedTrustedProxy(t *testing.T) {
	store := auth.NewMemoryStore()
	hasher, _ := auth.NewHasher(bcrypt.MinCost)
	tokens, _ := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"))
	authSvc, _ := auth.NewService(store, hasher, tokens)
	gradeSvc, _ := grades.NewService(grades.NewInMemory(), store)

	if _, err := New(authSvc, gradeSvc, ReadyProbe{}, Options{TrustedProxies: []string{"10.0.0.0/33"}}); err == nil {
		t.Fatal("expected error for malformed trusted proxy")
	}
}

func TestSetStatusAcceptsQueryParameter(t *testing.T) {
	c := newTestAPI(t)
	id := c.registerStudent("ada@school.test", "S-001")
	admin := c.adminToken()
	path := "/admin/users/" + strconv.FormatInt(id, 10) + "/status"

	resp := c.do(http.MethodPut, path+"?active=false", admin, nil)
	c.expect(resp, http.StatusOK)
	if body := decode[map[string]any](t, resp); body["active"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	resp = c.post("/auth/login", "", loginRequest{Email: "ada@school.test", Password: "secret1"})
	c.expect(resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.do(http.MethodPut, path+"?active=maybe", admin, nil)
	c.expect(resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodPut, path+"?active=true", admin, nil)
	c.expect(resp, http.StatusOK)
	resp.Body.Close()
	c.login("ada@school.test", "secret1")
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestReadyReportsDependencyFailure(t *testing.T) {
	store := auth.NewMemoryStore()
	hasher, _ := auth.NewHasher(bcrypt.MinCost)
	tokens, _ := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"))
	authSvc, _ := auth.NewService(store, hasher, tokens)
	gradeSvc, _ := grades.NewService(grades.NewInMemory(), store)

	api, err := New(authSvc, gradeSvc, ReadyProbe{Revocation: downPinger{}}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "revocation store") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
