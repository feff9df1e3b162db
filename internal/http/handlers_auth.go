package http

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/guard"
	"expensio/internal/log"
	"expensio/internal/session"
)

type credentialsView struct {
	Username string
	Role     string
	Roles    []core.Role
}

var roles = []core.Role{core.RoleUser, core.RoleAdmin}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if currentSession(r).Authenticated() {
		redirect(w, r, guard.HomePath)
		return
	}
	s.render(w, r, http.StatusOK, "login", pageData{Data: credentialsView{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	username := formValue(r, "username")
	password := r.PostForm.Get("password")
	view := credentialsView{Username: username}

	if err := managerFrom(r.Context()).Login(r.Context(), username, password); err != nil {
		atomic.AddInt64(&s.appMetrics.loginFailures, 1)
		status, data := s.authFailure(r, err, "Login failed. Please try again later.")
		data.Data = view
		s.render(w, r, status, "login", data)
		return
	}

	atomic.AddInt64(&s.appMetrics.logins, 1)
	redirect(w, r, guard.HomePath)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if currentSession(r).Authenticated() {
		redirect(w, r, guard.HomePath)
		return
	}
	s.render(w, r, http.StatusOK, "register", pageData{Data: credentialsView{Role: string(core.RoleUser), Roles: roles}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	username := formValue(r, "username")
	password := r.PostForm.Get("password")
	view := credentialsView{Username: username, Role: strings.ToUpper(formValue(r, "role")), Roles: roles}

	role := core.RoleUser
	if view.Role != "" {
		parsed, err := core.ParseRole(view.Role)
		if err != nil {
			s.render(w, r, http.StatusUnprocessableEntity, "register", pageData{
				Errors: core.FieldErrors{"role": "Role must be USER or ADMIN"},
				Data:   view,
			})
			return
		}
		role = parsed
	}

	if err := managerFrom(r.Context()).Register(r.Context(), username, password, role); err != nil {
		status, data := s.authFailure(r, err, "Registration failed. Please try again later.")
		data.Data = view
		s.render(w, r, status, "register", data)
		return
	}

	atomic.AddInt64(&s.appMetrics.registrations, 1)
	redirect(w, r, withNotice(guard.HomePath, "registered"))
}

// handleLogout clears the session. The browser is sent to the login page
// even when removing the stored copy fails, since the in-memory session is
// already empty.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := managerFrom(ctx).Logout(ctx); err != nil {
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Failed to remove stored session", err,
			log.ComponentSession, log.OpLogout, nil)
	}
	atomic.AddInt64(&s.appMetrics.logouts, 1)
	redirect(w, r, withNotice(guard.LoginPath, "logged-out"))
}

// authFailure maps a login or register error to a status and banner.
func (s *Server) authFailure(r *http.Request, err error, fallback string) (int, pageData) {
	var fe core.FieldErrors
	switch {
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, pageData{Errors: fe}
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, pageData{Error: "Invalid username or password"}
	case errors.Is(err, session.ErrAlreadyExists):
		return http.StatusConflict, pageData{Error: "Username already exists"}
	}

	ctx := r.Context()
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Authentication request failed", err,
		log.ComponentSession, log.OpLogin, log.NewFields().WithError(err, log.ErrorTypeNetwork))

	msg := fallback
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return http.StatusBadGateway, pageData{Error: msg}
}
