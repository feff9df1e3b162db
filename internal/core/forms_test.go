package core

import (
	"errors"
	"testing"
)

func TestExpenseForm(t *testing.T) {
	good := ExpenseForm{Amount: "12,50", Description: " Lunch ", Date: "2025-01-02", CategoryID: "4"}
	e, err := good.Expense()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if e.Amount.Cents != 1250 || e.Description != "Lunch" || e.Category.ID != 4 || e.User != nil {
		t.Fatalf("unexpected expense %+v", e)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("converted expense invalid: %v", err)
	}

	withUser := good
	withUser.UserID = "9"
	if e, err := withUser.Expense(); err != nil || e.User == nil || e.User.ID != 9 {
		t.Fatalf("expected user 9, got %+v (err=%v)", e.User, err)
	}

	cases := []struct {
		name  string
		form  ExpenseForm
		field string
	}{
		{"missing amount", ExpenseForm{Description: "a", Date: "2025-01-02", CategoryID: "1"}, "amount"},
		{"zero amount", ExpenseForm{Amount: "0", Description: "a", Date: "2025-01-02", CategoryID: "1"}, "amount"},
		{"text amount", ExpenseForm{Amount: "ten", Description: "a", Date: "2025-01-02", CategoryID: "1"}, "amount"},
		{"non-ascii digits", ExpenseForm{Amount: "1.٣", Description: "a", Date: "2025-01-02", CategoryID: "1"}, "amount"},
		{"missing description", ExpenseForm{Amount: "1", Description: "  ", Date: "2025-01-02", CategoryID: "1"}, "description"},
		{"missing date", ExpenseForm{Amount: "1", Description: "a", CategoryID: "1"}, "date"},
		{"bad date", ExpenseForm{Amount: "1", Description: "a", Date: "02/01/2025", CategoryID: "1"}, "date"},
		{"missing category", ExpenseForm{Amount: "1", Description: "a", Date: "2025-01-02"}, "category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.form.Expense()
			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			if _, ok := fe[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, fe)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is ErrValidation")
			}
		})
	}
}

func TestUserFormPasswordOnlyRequiredOnCreate(t *testing.T) {
	f := UserForm{Name: "ann"}
	if _, err := f.User(true); err == nil {
		t.Fatalf("expected password error on create")
	}
	u, err := f.User(false)
	if err != nil {
		t.Fatalf("expected ok on update, got %v", err)
	}
	if u.Role != RoleUser || u.Password != "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := (UserForm{Name: "ann", Role: "root"}).User(false); err == nil {
		t.Fatalf("expected role error")
	}
	if u, err := (UserForm{Name: "bob", Password: "x", Role: "admin"}).User(true); err != nil || u.Role != RoleAdmin {
		t.Fatalf("expected admin, got %+v (err=%v)", u, err)
	}
}

func TestCredentialsAndCategoryForms(t *testing.T) {
	if err := (CredentialsForm{Username: "a", Password: "b"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	err := (CredentialsForm{}).Validate()
	var fe FieldErrors
	if !errors.As(err, &fe) || len(fe) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
	if _, err := (CategoryForm{Name: " "}).Category(); err == nil {
		t.Fatalf("expected name error")
	}
	if c, err := (CategoryForm{Name: " Rent "}).Category(); err != nil || c.Name != "Rent" {
		t.Fatalf("unexpected category %+v (err=%v)", c, err)
	}
}

func TestPasswordForm(t *testing.T) {
	if err := (PasswordForm{New: "b", Confirm: "b"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	err := (PasswordForm{New: "b", Confirm: "c"}).Validate()
	var fe FieldErrors
	if !errors.As(err, &fe) || fe["confirm"] == "" {
		t.Fatalf("expected confirm mismatch, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"USER": RoleUser, "admin": RoleAdmin, " Admin ": RoleAdmin} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParseRole("guest"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
