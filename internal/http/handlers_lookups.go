package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

// Lookup lists are cached per token so a user never sees a list fetched
// with someone else's credentials. Any mutation flushes the whole cache.

func (s *Server) cachedCategories(ctx context.Context, client *api.Client, token string) ([]core.Category, error) {
	key := token + ":categories"
	if list, ok := s.categoriesCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return slices.Clone(list), nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	list, err := client.Categories(ctx)
	if err != nil {
		return nil, err
	}
	s.categoriesCache.Set(key, list)
	return slices.Clone(list), nil
}

func (s *Server) cachedUsers(ctx context.Context, client *api.Client, token string) ([]core.User, error) {
	key := token + ":users"
	if list, ok := s.usersCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return slices.Clone(list), nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	list, err := client.Users(ctx)
	if err != nil {
		return nil, err
	}
	s.usersCache.Set(key, list)
	return slices.Clone(list), nil
}

func (s *Server) invalidateCategories() { s.categoriesCache.DeletePrefix("") }

func (s *Server) invalidateUsers() { s.usersCache.DeletePrefix("") }

type categoryFormView struct {
	ID   int64
	Name string
}

type categoriesView struct {
	Categories []core.Category
	Form       categoryFormView
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	view := categoriesView{}
	if raw := r.URL.Query().Get("edit"); raw != "" {
		view.Form.ID, _ = strconv.ParseInt(raw, 10, 64)
	}
	s.renderCategories(w, r, http.StatusOK, view, pageData{})
}

func (s *Server) renderCategories(w http.ResponseWriter, r *http.Request, status int, view categoriesView, data pageData) {
	sess := currentSession(r)
	list, err := s.cachedCategories(r.Context(), s.apiFor(r), sess.Token)
	if err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load categories", log.FieldError, err)
		status = http.StatusBadGateway
		data.Error = "Failed to load categories. " + api.Message(err)
	}
	view.Categories = list
	if view.Form.ID != 0 && view.Form.Name == "" {
		for _, c := range list {
			if c.ID == view.Form.ID {
				view.Form.Name = c.Name
			}
		}
	}
	data.Data = view
	s.render(w, r, status, "categories", data)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	s.saveCategory(w, r, 0)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("Category not found").Write(w)
		return
	}
	s.saveCategory(w, r, id)
}

func (s *Server) saveCategory(w http.ResponseWriter, r *http.Request, id int64) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	form := categoryFormView{ID: id, Name: formValue(r, "name")}

	cat, err := core.CategoryForm{Name: form.Name}.Category()
	if err == nil {
		client := s.apiFor(r)
		if id == 0 {
			_, err = client.CreateCategory(ctx, cat)
		} else {
			_, err = client.UpdateCategory(ctx, id, cat)
		}
		if err == nil {
			s.invalidateCategories()
			notice := "category-created"
			if id != 0 {
				notice = "category-updated"
			}
			redirect(w, r, withNotice("/categories", notice))
			return
		}
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to save category", log.FieldError, err, "category_id", id)
	}

	s.renderCategories(w, r, failureStatus(err), categoriesView{Form: form}, failureData(err, "Failed to save category. "))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("Category not found").Write(w)
		return
	}
	ctx := r.Context()
	if err := s.apiFor(r).DeleteCategory(ctx, id); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to delete category", log.FieldError, err, "category_id", id)
		s.deleteFailure(w, r, "Failed to delete category. "+api.Message(err))
		return
	}
	s.invalidateCategories()
	s.deleted(w, r, "categories", "category-deleted")
}

type userFormView struct {
	ID   int64
	Name string
	Role string
}

type usersView struct {
	Users []core.User
	Roles []core.Role
	Form  userFormView
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	view := usersView{Form: userFormView{Role: string(core.RoleUser)}}
	if raw := r.URL.Query().Get("edit"); raw != "" {
		view.Form.ID, _ = strconv.ParseInt(raw, 10, 64)
		view.Form.Role = ""
	}
	s.renderUsers(w, r, http.StatusOK, view, pageData{})
}

func (s *Server) renderUsers(w http.ResponseWriter, r *http.Request, status int, view usersView, data pageData) {
	sess := currentSession(r)
	list, err := s.cachedUsers(r.Context(), s.apiFor(r), sess.Token)
	if err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load users", log.FieldError, err)
		status = http.StatusBadGateway
		data.Error = "Failed to load users. " + api.Message(err)
	}
	view.Users = list
	view.Roles = roles
	if view.Form.ID != 0 && view.Form.Name == "" {
		for _, u := range list {
			if u.ID == view.Form.ID {
				view.Form.Name, view.Form.Role = u.Name, string(u.Role)
			}
		}
	}
	data.Data = view
	s.render(w, r, status, "users", data)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	s.saveUser(w, r, 0)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("User not found").Write(w)
		return
	}
	s.saveUser(w, r, id)
}

// saveUser requires a password on create only; an empty password on update
// keeps the stored one.
func (s *Server) saveUser(w http.ResponseWriter, r *http.Request, id int64) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	form := userFormView{ID: id, Name: formValue(r, "name"), Role: formValue(r, "role")}

	user, err := core.UserForm{Name: form.Name, Password: r.PostForm.Get("password"), Role: form.Role}.User(id == 0)
	if err == nil {
		client := s.apiFor(r)
		if id == 0 {
			_, err = client.CreateUser(ctx, user)
		} else {
			_, err = client.UpdateUser(ctx, id, user)
		}
		if err == nil {
			s.invalidateUsers()
			notice := "user-created"
			if id != 0 {
				notice = "user-updated"
			}
			redirect(w, r, withNotice("/users", notice))
			return
		}
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to save user", log.FieldError, err, "user_id", id)
	}

	s.renderUsers(w, r, failureStatus(err), usersView{Form: form}, failureData(err, "Failed to save user. "))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("User not found").Write(w)
		return
	}
	ctx := r.Context()
	if err := s.apiFor(r).DeleteUser(ctx, id); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to delete user", log.FieldError, err, "user_id", id)
		s.deleteFailure(w, r, "Failed to delete user. "+api.Message(err))
		return
	}
	s.invalidateUsers()
	s.deleted(w, r, "users", "user-deleted")
}

// failureStatus is 422 for local validation errors and 502 otherwise.
func failureStatus(err error) int {
	if errors.Is(err, core.ErrValidation) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, api.ErrConflict) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func failureData(err error, prefix string) pageData {
	var fe core.FieldErrors
	if errors.As(err, &fe) {
		return pageData{Errors: fe}
	}
	return pageData{Error: prefix + api.Message(err)}
}
