package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

type expenseFormView struct {
	ID          int64
	Amount      string
	Description string
	Date        string
	CategoryID  string
	UserID      string
}

type expensesView struct {
	Expenses   []core.Expense
	Total      core.Money
	Query      string
	Categories []core.Category
	Users      []core.User
	// CanAssign shows the user picker: admins only, and only when the
	// users list could be loaded.
	CanAssign bool
	AllUsers  bool
	Form      expenseFormView
}

// loadExpenses fetches the list and the lookups the form needs.
func (s *Server) loadExpenses(r *http.Request, query string) (expensesView, error) {
	ctx := r.Context()
	sess := currentSession(r)
	client := s.apiFor(r)
	scope := api.ScopeFor(sess.Role)
	view := expensesView{Query: query, AllUsers: scope == api.ScopeAll}

	var expenses []core.Expense
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = client.ListExpenses(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		view.Categories, err = s.cachedCategories(gctx, client, sess.Token)
		return err
	})
	if sess.IsAdmin() {
		g.Go(func() error {
			users, err := s.cachedUsers(gctx, client, sess.Token)
			if err != nil {
				log.FromContext(ctx).WarnContext(ctx, "Users lookup failed, hiding assignment field", log.FieldError, err)
				return nil
			}
			view.Users, view.CanAssign = users, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return view, err
	}

	view.Expenses = core.FilterExpenses(expenses, query)
	for _, e := range view.Expenses {
		view.Total = view.Total.Add(e.Amount)
	}
	return view, nil
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	view, err := s.loadExpenses(r, query)
	if err != nil {
		s.expensesFailure(w, r, err, view)
		return
	}

	if isHTMX(r) && r.Header.Get("HX-Target") == "expense-rows" {
		s.renderFragment(w, r, "expenses", "expense-rows", view)
		return
	}

	view.Form = expenseFormView{Date: core.Date{Time: s.now()}.String()}
	if raw := r.URL.Query().Get("edit"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			for _, e := range view.Expenses {
				if e.ID == id {
					view.Form = formFromExpense(e)
					break
				}
			}
		}
	}
	s.render(w, r, http.StatusOK, "expenses", pageData{Data: view})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	s.saveExpense(w, r, 0)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	s.saveExpense(w, r, id)
}

// saveExpense creates the expense when id is zero and updates it otherwise.
// Validation errors never reach the API.
func (s *Server) saveExpense(w http.ResponseWriter, r *http.Request, id int64) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	sess := currentSession(r)

	form := expenseFormView{
		ID:          id,
		Amount:      formValue(r, "amount"),
		Description: formValue(r, "description"),
		Date:        formValue(r, "date"),
		CategoryID:  formValue(r, "category"),
	}
	if sess.IsAdmin() {
		form.UserID = formValue(r, "user")
	}

	expense, err := core.ExpenseForm{
		Amount:      form.Amount,
		Description: form.Description,
		Date:        form.Date,
		CategoryID:  form.CategoryID,
		UserID:      form.UserID,
	}.Expense()
	if err != nil {
		s.rerenderExpenses(w, r, http.StatusUnprocessableEntity, form, err)
		return
	}

	client := s.apiFor(r)
	notice := "expense-created"
	if id == 0 {
		_, err = client.CreateExpense(ctx, expense)
	} else {
		_, err = client.UpdateExpense(ctx, id, expense)
		notice = "expense-updated"
	}
	if err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to save expense", log.FieldError, err, "expense_id", id)
		s.rerenderExpenses(w, r, http.StatusBadGateway, form, err)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Expense saved",
		"expense_id", id,
		"amount_cents", expense.Amount.Cents,
		log.FieldOperation, notice)
	redirect(w, r, withNotice("/expenses", notice))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	ctx := r.Context()
	if err := s.apiFor(r).DeleteExpense(ctx, id); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to delete expense", log.FieldError, err, "expense_id", id)
		s.deleteFailure(w, r, "Failed to delete expense. "+api.Message(err))
		return
	}
	s.deleted(w, r, "expenses", "expense-deleted")
}

// rerenderExpenses shows the page again with the submitted values and the
// reason the submission was refused.
func (s *Server) rerenderExpenses(w http.ResponseWriter, r *http.Request, status int, form expenseFormView, cause error) {
	view, err := s.loadExpenses(r, "")
	if err != nil {
		s.expensesFailure(w, r, err, view)
		return
	}
	view.Form = form

	data := pageData{Data: view}
	var fe core.FieldErrors
	if errors.As(cause, &fe) {
		data.Errors = fe
	} else {
		data.Error = "Failed to save expense. " + api.Message(cause)
	}
	s.render(w, r, status, "expenses", data)
}

func (s *Server) expensesFailure(w http.ResponseWriter, r *http.Request, err error, view expensesView) {
	if s.expireSession(w, r, err) {
		return
	}
	ctx := r.Context()
	log.FromContext(ctx).ErrorContext(ctx, "Failed to load expenses", log.FieldError, err)
	view.Expenses = nil
	s.render(w, r, http.StatusBadGateway, "expenses", pageData{
		Error: "Failed to load expenses. " + api.Message(err),
		Data:  view,
	})
}

func formFromExpense(e core.Expense) expenseFormView {
	f := expenseFormView{
		ID:          e.ID,
		Amount:      e.Amount.Decimal(),
		Description: e.Description,
		Date:        e.Date.String(),
	}
	if e.Category != nil {
		f.CategoryID = strconv.FormatInt(e.Category.ID, 10)
	}
	if e.User != nil {
		f.UserID = strconv.FormatInt(e.User.ID, 10)
	}
	return f
}

// deleted answers a successful delete: htmx callers get a notification and a
// list-changed trigger, plain forms a redirect.
func (s *Server) deleted(w http.ResponseWriter, r *http.Request, list, notice string) {
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerListChanged(list).
			TriggerSuccessNotification(notices[notice]).
			Write(w)
		return
	}
	redirect(w, r, withNotice("/"+list, notice))
}

// deleteFailure keeps the row in place for htmx callers.
func (s *Server) deleteFailure(w http.ResponseWriter, r *http.Request, msg string) {
	if isHTMX(r) {
		NewHTMXResponse().
			Header("HX-Reswap", "none").
			TriggerErrorNotification(msg).
			Write(w)
		return
	}
	ErrorResponse(http.StatusBadGateway, msg).Write(w)
}
