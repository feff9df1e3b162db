package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"expensio/internal/config"
	"expensio/internal/core"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := chi.NewRouter()
	mux.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "pw" {
			http.Error(w, "Bad credentials", http.StatusUnauthorized)
			return
		}
		role := "USER"
		if body.Username == "ann" {
			role = "ADMIN"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + body.Username, "role": role})
	})
	mux.Post("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var u core.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		if u.Name == "ann" {
			http.Error(w, "Username already exists", http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.Get("/api/expenses/my", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-bob" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]core.Expense{
			{ID: 1, Amount: core.Money{Cents: 1250}, Description: "Groceries", Date: core.NewDate(2025, 3, 2), Category: &core.Category{ID: 1, Name: "Food"}},
			{ID: 2, Amount: core.Money{Cents: 400}, Description: "Bus ticket", Date: core.NewDate(2025, 3, 3), Category: &core.Category{ID: 2, Name: "Transport"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	api         *httptest.Server
	sessionFile string
}

func newHarness(t *testing.T) *harness {
	return &harness{
		api:         fakeAPI(t),
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfg := &config.Config{
		APIBaseURL:  h.api.URL + "/api",
		APITimeout:  2 * time.Second,
		SessionFile: h.sessionFile,
	}
	cmd := NewRootCommand(Options{Config: cfg})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginPersistsSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "pw\n", "login", "bob")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in as bob (USER)") {
		t.Fatalf("unexpected output %q", out)
	}

	b, err := os.ReadFile(h.sessionFile)
	if err != nil {
		t.Fatalf("session file: %v", err)
	}
	var stored map[string]string
	if err := json.Unmarshal(b, &stored); err != nil {
		t.Fatal(err)
	}
	if stored["token"] != "tok-bob" || stored["role"] != "USER" || stored["user"] != "bob" {
		t.Fatalf("unexpected stored session %v", stored)
	}

	out, err = h.run(t, "", "whoami")
	if err != nil || strings.TrimSpace(out) != "bob (USER)" {
		t.Fatalf("whoami = %q, %v", out, err)
	}
}

func TestLoginFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "login", "bob", "-p", "pw"); err != nil {
		t.Fatal(err)
	}

	_, err := h.run(t, "", "login", "ann", "-p", "wrong")
	if err == nil || err.Error() != "invalid username or password" {
		t.Fatalf("err = %v", err)
	}
	out, _ := h.run(t, "", "whoami")
	if strings.TrimSpace(out) != "bob (USER)" {
		t.Fatalf("failed login replaced the session: %q", out)
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "\n", "login", "bob")
	if err == nil || !strings.Contains(err.Error(), "Password is required") {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(h.sessionFile); !os.IsNotExist(statErr) {
		t.Fatalf("session file should not exist")
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{"new account", []string{"register", "cat", "-p", "pw"}, "Registered and signed in as cat (USER)", ""},
		{"taken name", []string{"register", "ann", "-p", "pw"}, "", "username already exists"},
		{"bad role", []string{"register", "dan", "-p", "pw", "--role", "ROOT"}, "", "role must be USER or ADMIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			out, err := h.run(t, "", tt.args...)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Fatalf("out = %q", out)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "login", "bob", "-p", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "", "logout"); err != nil {
		t.Fatal(err)
	}
	out, _ := h.run(t, "", "whoami")
	if strings.TrimSpace(out) != "Not signed in" {
		t.Fatalf("whoami = %q", out)
	}
}

func TestRoutes(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "routes", "/expenses")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "redirect /login") {
		t.Fatalf("anonymous should be sent to login: %q", out)
	}

	if _, err := h.run(t, "", "login", "bob", "-p", "pw"); err != nil {
		t.Fatal(err)
	}
	out, err = h.run(t, "", "routes")
	if err != nil {
		t.Fatal(err)
	}
	lines := map[string]string{}
	for _, line := range strings.Split(out, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			lines[fields[0]] = strings.Join(fields[2:], " ")
		}
	}
	if lines["/expenses"] != "render" || lines["/users"] != "redirect /" {
		t.Fatalf("unexpected decisions %v", lines)
	}

	if _, err := h.run(t, "", "routes", "/nowhere"); err == nil {
		t.Fatalf("undeclared path should fail")
	}
}

func TestExpenses(t *testing.T) {
	h := newHarness(t)

	if _, err := h.run(t, "", "expenses"); err != ErrNotSignedIn {
		t.Fatalf("err = %v", err)
	}

	if _, err := h.run(t, "", "login", "bob", "-p", "pw"); err != nil {
		t.Fatal(err)
	}
	out, err := h.run(t, "", "expenses", "-q", "bus")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Bus ticket") || strings.Contains(out, "Groceries") {
		t.Fatalf("filter not applied: %q", out)
	}
	if !strings.Contains(out, "₹4.00") {
		t.Fatalf("total missing: %q", out)
	}
}

func TestExpensesRejectedTokenSignsOut(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "login", "eve", "-p", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "", "expenses"); err == nil || !strings.Contains(err.Error(), "session expired") {
		t.Fatalf("err = %v", err)
	}
	out, _ := h.run(t, "", "whoami")
	if strings.TrimSpace(out) != "Not signed in" {
		t.Fatalf("rejected session kept: %q", out)
	}
}

func TestCorruptSessionFileLoadsEmpty(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.sessionFile, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := h.run(t, "", "logout")
	if err != nil || strings.TrimSpace(out) != "Signed out" {
		t.Fatalf("logout = %q, %v", out, err)
	}
	if _, err := os.Stat(h.sessionFile); !os.IsNotExist(err) {
		t.Fatalf("corrupt session file kept, stat err=%v", err)
	}

	if err := os.WriteFile(h.sessionFile, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	out, err = h.run(t, "", "whoami")
	if err != nil || strings.TrimSpace(out) != "Not signed in" {
		t.Fatalf("whoami = %q, %v", out, err)
	}
	if _, err := h.run(t, "", "login", "bob", "-p", "pw"); err != nil {
		t.Fatalf("login after corrupt file: %v", err)
	}
}
