package http

import (
	"errors"
	"net/http"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

type settingsView struct {
	Profile core.User
	Name    string
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.renderSettings(w, r, http.StatusOK, "", pageData{})
}

// renderSettings loads the profile; name overrides the stored name when the
// form is shown again after a failed submission.
func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	ctx := r.Context()
	me, err := s.apiFor(r).Me(ctx)
	if err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to load profile", log.FieldError, err)
		if data.Error == "" {
			data.Error = "Failed to load profile."
		}
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	}
	view := settingsView{Profile: me, Name: me.Name}
	if name != "" {
		view.Name = name
	}
	data.Data = view
	s.render(w, r, status, "settings", data)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	name := formValue(r, "name")
	if name == "" {
		s.renderSettings(w, r, http.StatusUnprocessableEntity, "", pageData{Errors: core.FieldErrors{"name": "Name is required"}})
		return
	}

	if _, err := s.apiFor(r).UpdateMe(ctx, name); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to update profile", log.FieldError, err)
		s.renderSettings(w, r, failureStatus(err), name, pageData{Error: "Failed to update profile."})
		return
	}
	redirect(w, r, withNotice("/settings", "profile-updated"))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	form := core.PasswordForm{New: r.PostForm.Get("password"), Confirm: r.PostForm.Get("confirm")}
	if err := form.Validate(); err != nil {
		var fe core.FieldErrors
		errors.As(err, &fe)
		s.renderSettings(w, r, http.StatusUnprocessableEntity, "", pageData{Errors: fe})
		return
	}

	if err := s.apiFor(r).ChangePassword(ctx, form.New); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to change password", log.FieldError, err)
		msg := "Failed to change password."
		if m := api.Message(err); m != "" {
			msg += " " + m
		}
		s.renderSettings(w, r, failureStatus(err), "", pageData{Error: msg})
		return
	}
	redirect(w, r, withNotice("/settings", "password-changed"))
}
