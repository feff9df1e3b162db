package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"expensio/internal/api"
	"expensio/internal/guard"
	"expensio/internal/log"
	"expensio/internal/session"
)

// SessionCookieName holds the opaque client id that addresses stored sessions.
const SessionCookieName = "expensio_sid"

type contextKey int

const managerKey contextKey = iota

// sessionMiddleware opens the session of the requesting browser, restarts
// its idle expiry and stores its manager in the request context.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientID := s.clientID(w, r)
		logger := log.FromContext(ctx).WithComponent(log.ComponentHTTP).With(log.FieldClientID, clientID)

		store := s.sessions.Open(clientID)
		mgr, err := session.Open(ctx, store, s.api, session.Options{
			ClientID: clientID,
			Events:   s.events,
			Logger:   logger,
			Now:      s.now,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to open session", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "Session storage is unavailable").Write(w)
			return
		}

		if toucher, ok := store.(session.Toucher); ok && mgr.Current().Authenticated() {
			if err := toucher.Touch(ctx); err != nil {
				logger.WarnContext(ctx, "Failed to refresh session expiry", log.FieldError, err)
			}
		}

		ctx = context.WithValue(ctx, managerKey, mgr)
		ctx = log.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientID returns the browser's id, issuing a fresh one when the cookie is
// missing or malformed. The cookie is re-sent on every request so its
// lifetime slides together with the stored session's expiry.
func (s *Server) clientID(w http.ResponseWriter, r *http.Request) string {
	id := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func managerFrom(ctx context.Context) *session.Manager {
	mgr, _ := ctx.Value(managerKey).(*session.Manager)
	return mgr
}

func currentSession(r *http.Request) session.Session {
	if mgr := managerFrom(r.Context()); mgr != nil {
		return mgr.Current()
	}
	return session.Session{}
}

// apiFor returns an API client carrying the session token.
func (s *Server) apiFor(r *http.Request) *api.Client {
	return s.api.WithToken(currentSession(r).Token)
}

// guard consults guard.Decide for the declared route at path.
func (s *Server) guard(path string) func(http.Handler) http.Handler {
	route := guard.MustLookup(path)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mgr := managerFrom(r.Context())
			var sess session.Session
			clientID := ""
			if mgr != nil {
				sess, clientID = mgr.Current(), mgr.ClientID()
			}

			decision := guard.Decide(route, sess)
			if !decision.Allowed() {
				atomic.AddInt64(&s.appMetrics.guardRedirects, 1)
				log.NewStructuredLogger(log.FromContext(r.Context())).
					LogGuardRedirect(r.Context(), route.Path, decision.RedirectTo, clientID, guard.StateOf(sess).String())
				redirect(w, r, decision.RedirectTo)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// redirect answers htmx requests with HX-Redirect and others with 303.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", to).Write(w)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// expireSession handles an API 401 on a data call: the stored token is no
// longer accepted, so the session is cleared and the browser sent to login.
func (s *Server) expireSession(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	ctx := r.Context()
	if mgr := managerFrom(ctx); mgr != nil {
		if lerr := mgr.Logout(ctx); lerr != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to clear rejected session", log.FieldError, lerr)
		}
	}
	redirect(w, r, guard.LoginPath)
	return true
}
