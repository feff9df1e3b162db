package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/session"
	"expensio/internal/storage"
)

// fakeAPI is a minimal stand-in for the expense REST API.
type fakeAPI struct {
	mu           sync.Mutex
	accounts     map[string]core.User
	expenses     []core.Expense
	calls        map[string]int
	authHeaders  []string
	rejectTokens bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		accounts: map[string]core.User{
			"ann": {ID: 1, Name: "ann", Password: "pw", Role: core.RoleAdmin},
			"bob": {ID: 2, Name: "bob", Password: "pw", Role: core.RoleUser},
		},
		expenses: []core.Expense{
			{ID: 1, Amount: core.Money{Cents: 1250}, Description: "Groceries", Date: core.NewDate(2025, 3, 2),
				Category: &core.Category{ID: 1, Name: "Food"}, User: &core.User{ID: 2, Name: "bob"}},
			{ID: 2, Amount: core.Money{Cents: 400}, Description: "Bus ticket", Date: core.NewDate(2025, 3, 3),
				Category: &core.Category{ID: 2, Name: "Transport"}, User: &core.User{ID: 2, Name: "bob"}},
		},
		calls: map[string]int{},
	}
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api")
	f.calls[r.Method+" "+path]++

	writeJSON := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.Method == http.MethodPost && path == "/auth/login":
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		acct, ok := f.accounts[body.Username]
		if !ok || acct.Password != body.Password {
			http.Error(w, "Login failed: Bad credentials", http.StatusUnauthorized)
			return
		}
		writeJSON(map[string]string{"token": "tok-" + acct.Name, "role": string(acct.Role)})
		return
	case r.Method == http.MethodPost && path == "/auth/register":
		var u core.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		if _, exists := f.accounts[u.Name]; exists {
			http.Error(w, "Username already exists", http.StatusConflict)
			return
		}
		u.ID = int64(len(f.accounts) + 1)
		f.accounts[u.Name] = u
		writeJSON(u)
		return
	}

	auth := r.Header.Get("Authorization")
	f.authHeaders = append(f.authHeaders, auth)
	if f.rejectTokens || !strings.HasPrefix(auth, "Bearer tok-") {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && (path == "/expenses" || path == "/expenses/my"):
		writeJSON(f.expenses)
	case r.Method == http.MethodPost && path == "/expenses":
		var e core.Expense
		_ = json.NewDecoder(r.Body).Decode(&e)
		e.ID = int64(len(f.expenses) + 1)
		f.expenses = append(f.expenses, e)
		writeJSON(e)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/total-by-category"):
		writeJSON(map[string]float64{"Food": 12.5, "Transport": 4})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/monthly-summary"):
		writeJSON(map[string]float64{time.Now().Format("2006-01"): 16.5})
	case r.Method == http.MethodGet && path == "/categories":
		writeJSON([]core.Category{{ID: 1, Name: "Food"}, {ID: 2, Name: "Transport"}})
	case r.Method == http.MethodGet && path == "/users":
		writeJSON([]core.User{{ID: 1, Name: "ann", Role: core.RoleAdmin}, {ID: 2, Name: "bob", Role: core.RoleUser}})
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	api      *fakeAPI
	server   *Server
	url      string
	sessions session.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, storage.NewMemoryProvider())
}

func newTestEnvWith(t *testing.T, sessions session.Provider) *testEnv {
	t.Helper()
	fake := newFakeAPI()
	apiSrv := httptest.NewServer(fake)
	t.Cleanup(apiSrv.Close)

	srv, err := NewServer(Options{
		API:           api.New(apiSrv.URL+"/api", 2*time.Second),
		Sessions:      sessions,
		SessionTTL:    time.Hour,
		AuthRateLimit: 100,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	web := httptest.NewServer(srv.Handler)
	t.Cleanup(web.Close)
	return &testEnv{api: fake, server: srv, url: web.URL, sessions: sessions}
}

// browser keeps cookies and does not follow redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, u string, headers ...string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return do(t, c, req)
}

func post(t *testing.T, c *http.Client, u string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, c, req)
}

func do(t *testing.T, c *http.Client, req *http.Request) (*http.Response, string) {
	t.Helper()
	res, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res, string(body)
}

func login(t *testing.T, e *testEnv, c *http.Client, user string) {
	t.Helper()
	res, body := post(t, c, e.url+"/login", url.Values{"username": {user}, "password": {"pw"}})
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != "/" {
		t.Fatalf("login %s: status %d location %q body %s", user, res.StatusCode, res.Header.Get("Location"), body)
	}
}

func TestGuardRedirects(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name  string
		user  string
		path  string
		want  int
		where string
	}{
		{"anonymous expenses", "", "/expenses", http.StatusSeeOther, "/login"},
		{"anonymous dashboard", "", "/", http.StatusSeeOther, "/login"},
		{"anonymous login page", "", "/login", http.StatusOK, ""},
		{"user on admin page", "bob", "/users", http.StatusSeeOther, "/"},
		{"user on expenses", "bob", "/expenses", http.StatusOK, ""},
		{"admin on admin page", "ann", "/users", http.StatusOK, ""},
		{"signed in user on login page", "bob", "/login", http.StatusSeeOther, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.browser(t)
			if tt.user != "" {
				login(t, e, c, tt.user)
			}
			res, _ := get(t, c, e.url+tt.path)
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
			if got := res.Header.Get("Location"); got != tt.where {
				t.Fatalf("Location = %q, want %q", got, tt.where)
			}
		})
	}
}

func TestGuardUsesHXRedirectForHTMX(t *testing.T) {
	e := newTestEnv(t)
	res, _ := get(t, e.browser(t), e.url+"/expenses", "HX-Request", "true")
	if res.StatusCode != http.StatusOK || res.Header.Get("HX-Redirect") != "/login" {
		t.Fatalf("status %d HX-Redirect %q", res.StatusCode, res.Header.Get("HX-Redirect"))
	}
}

func TestSessionCookie(t *testing.T) {
	e := newTestEnv(t)
	res, _ := get(t, e.browser(t), e.url+"/login")

	var sid *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == SessionCookieName {
			sid = c
		}
	}
	if sid == nil {
		t.Fatalf("session cookie not set")
	}
	if !sid.HttpOnly || sid.SameSite != http.SameSiteLaxMode || sid.MaxAge != 3600 {
		t.Fatalf("unexpected cookie attributes %+v", sid)
	}
}

func TestLoginValidationNeverCallsAPI(t *testing.T) {
	e := newTestEnv(t)
	res, body := post(t, e.browser(t), e.url+"/login", url.Values{"username": {"ann"}})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if !strings.Contains(body, "Password is required") {
		t.Fatalf("missing field error in body")
	}
	if n := e.api.count("POST /auth/login"); n != 0 {
		t.Fatalf("API called %d times", n)
	}
}

func TestBadCredentialsLeaveSessionEmpty(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	res, body := post(t, c, e.url+"/login", url.Values{"username": {"ann"}, "password": {"wrong"}})
	if res.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Invalid username or password") {
		t.Fatalf("status %d body %s", res.StatusCode, body)
	}
	if res, _ := get(t, c, e.url+"/expenses"); res.Header.Get("Location") != "/login" {
		t.Fatalf("session should still be empty")
	}
}

func TestRegisterConflict(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	res, body := post(t, c, e.url+"/register", url.Values{"username": {"ann"}, "password": {"x"}, "role": {"USER"}})
	if res.StatusCode != http.StatusConflict || !strings.Contains(body, "Username already exists") {
		t.Fatalf("status %d body %s", res.StatusCode, body)
	}
	if n := e.api.count("POST /auth/login"); n != 0 {
		t.Fatalf("register conflict must not log in")
	}
	if res, _ := get(t, c, e.url+"/"); res.Header.Get("Location") != "/login" {
		t.Fatalf("session should still be empty")
	}
}

func TestRegisterLogsIn(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	res, _ := post(t, c, e.url+"/register", url.Values{"username": {"cat"}, "password": {"pw"}})
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != "/?notice=registered" {
		t.Fatalf("status %d location %q", res.StatusCode, res.Header.Get("Location"))
	}
	if res, _ := get(t, c, e.url+"/expenses"); res.StatusCode != http.StatusOK {
		t.Fatalf("registered user should be signed in, got %d", res.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	login(t, e, c, "bob")

	res, _ := post(t, c, e.url+"/logout", nil)
	if res.Header.Get("Location") != "/login?notice=logged-out" {
		t.Fatalf("unexpected redirect %q", res.Header.Get("Location"))
	}
	if res, _ := get(t, c, e.url+"/expenses"); res.Header.Get("Location") != "/login" {
		t.Fatalf("session should be empty after logout")
	}
}

func TestDashboardAndExpensesUseToken(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	login(t, e, c, "bob")

	res, body := get(t, c, e.url+"/")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d", res.StatusCode)
	}
	if !strings.Contains(body, "₹16.50") {
		t.Fatalf("dashboard total missing: %s", body)
	}
	if e.api.count("GET /expenses/my/total-by-category") != 1 || e.api.count("GET /expenses/my/monthly-summary") != 1 {
		t.Fatalf("user dashboard should use the /my aggregates: %v", e.api.calls)
	}

	res, body = get(t, c, e.url+"/expenses?q=bus")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expenses status %d", res.StatusCode)
	}
	if !strings.Contains(body, "Bus ticket") || strings.Contains(body, "Groceries") {
		t.Fatalf("search filter not applied")
	}
	if strings.Contains(body, `name="user"`) {
		t.Fatalf("users must not see the assignment field")
	}

	for _, h := range e.api.authHeaders {
		if h != "Bearer tok-bob" {
			t.Fatalf("unexpected Authorization header %q", h)
		}
	}
}

func TestAdminSeesAssignmentField(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	login(t, e, c, "ann")

	_, body := get(t, c, e.url+"/expenses")
	if !strings.Contains(body, `name="user"`) {
		t.Fatalf("admin should see the assignment field")
	}
	if e.api.count("GET /expenses") != 1 {
		t.Fatalf("admin should list all expenses")
	}

	get(t, c, e.url+"/expenses")
	if n := e.api.count("GET /categories"); n != 1 {
		t.Fatalf("categories should be cached, fetched %d times", n)
	}
}

func TestCreateExpense(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	login(t, e, c, "bob")

	res, body := post(t, c, e.url+"/expenses", url.Values{"amount": {"abc"}, "description": {""}, "date": {"2025-03-04"}, "category": {"1"}})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", res.StatusCode)
	}
	if !strings.Contains(body, "Description is required") {
		t.Fatalf("missing field error")
	}
	if e.api.count("POST /expenses") != 0 {
		t.Fatalf("invalid form reached the API")
	}

	res, _ = post(t, c, e.url+"/expenses", url.Values{"amount": {"9.99"}, "description": {"Lunch"}, "date": {"2025-03-04"}, "category": {"1"}, "user": {"1"}})
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != "/expenses?notice=expense-created" {
		t.Fatalf("status %d location %q", res.StatusCode, res.Header.Get("Location"))
	}
	last := e.api.expenses[len(e.api.expenses)-1]
	if last.Amount.Cents != 999 || last.Category == nil || last.Category.ID != 1 {
		t.Fatalf("unexpected stored expense %+v", last)
	}
	if last.User != nil {
		t.Fatalf("a user must not assign expenses to others")
	}
}

func TestRejectedTokenClearsSession(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	login(t, e, c, "bob")

	e.api.mu.Lock()
	e.api.rejectTokens = true
	e.api.mu.Unlock()

	res, _ := get(t, c, e.url+"/expenses")
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != "/login" {
		t.Fatalf("status %d location %q", res.StatusCode, res.Header.Get("Location"))
	}

	e.api.mu.Lock()
	e.api.rejectTokens = false
	e.api.mu.Unlock()
	if res, _ := get(t, c, e.url+"/expenses"); res.Header.Get("Location") != "/login" {
		t.Fatalf("session should have been cleared")
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		if res, body := get(t, c, e.url+path); res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", path, res.StatusCode, body)
		}
	}

	get(t, c, e.url+"/expenses")
	res, body := get(t, c, e.url+"/metrics")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	for _, want := range []string{"http_requests_total", "guard_redirects_total 1", "session_logins_total 0"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestStaticAndSecurityHeaders(t *testing.T) {
	e := newTestEnv(t)
	res, _ := get(t, e.browser(t), e.url+"/static/style.css")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("static status %d", res.StatusCode)
	}
	if res.Header.Get("X-Frame-Options") != "DENY" || res.Header.Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers missing")
	}

	res, _ = get(t, e.browser(t), e.url+"/.env")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("dotfile request should be rejected, got %d", res.StatusCode)
	}
}

// touchCounter counts expiry refreshes of the sessions it opens.
type touchCounter struct {
	*storage.MemoryProvider
	touches atomic.Int64
}

func (p *touchCounter) Open(clientID string) session.Storage {
	return touchingStorage{Storage: p.MemoryProvider.Open(clientID), p: p}
}

type touchingStorage struct {
	session.Storage
	p *touchCounter
}

func (s touchingStorage) Touch(ctx context.Context) error {
	s.p.touches.Add(1)
	return nil
}

func TestSignedInRequestsRefreshSessionExpiry(t *testing.T) {
	sessions := &touchCounter{MemoryProvider: storage.NewMemoryProvider()}
	e := newTestEnvWith(t, sessions)
	c := e.browser(t)

	get(t, c, e.url+"/login")
	login(t, e, c, "bob")
	if n := sessions.touches.Load(); n != 0 {
		t.Fatalf("anonymous requests touched the session %d times", n)
	}

	get(t, c, e.url+"/expenses")
	get(t, c, e.url+"/")
	if n := sessions.touches.Load(); n != 2 {
		t.Fatalf("expected 2 touches, got %d", n)
	}
}

func TestServerPurgesIdleSessions(t *testing.T) {
	calls := make(chan time.Duration, 4)
	srv, err := NewServer(Options{
		API:      api.New("http://127.0.0.1:1/api", time.Second),
		Sessions: storage.NewMemoryProvider(),
		Purge: func(ctx context.Context, ttl time.Duration) (int64, error) {
			select {
			case calls <- ttl:
			default:
			}
			return 1, nil
		},
		PurgeInterval: 10 * time.Millisecond,
		SessionTTL:    2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	select {
	case ttl := <-calls:
		if ttl != 2*time.Hour {
			t.Fatalf("purged with ttl %v", ttl)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("purge never ran")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
