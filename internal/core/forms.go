package core

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ErrValidation is matched by every FieldErrors value.
var ErrValidation = errors.New("validation failed")

// FieldErrors maps a form field to the message shown next to it.
// A non-empty FieldErrors blocks submission before any network call.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) Is(target error) bool { return target == ErrValidation }

// Err returns nil when no field failed.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// CredentialsForm backs both the login and the registration screens.
type CredentialsForm struct {
	Username string
	Password string
	Role     string
}

func (f CredentialsForm) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(f.Username) == "" {
		fe["username"] = "Username is required"
	}
	if f.Password == "" {
		fe["password"] = "Password is required"
	}
	if f.Role != "" {
		if _, err := ParseRole(f.Role); err != nil {
			fe["role"] = "Role must be USER or ADMIN"
		}
	}
	return fe.Err()
}

// ExpenseForm is the raw expense form as submitted by the browser.
type ExpenseForm struct {
	Amount      string
	Description string
	Date        string
	CategoryID  string
	UserID      string
}

// Expense validates the form and converts it to an Expense.
func (f ExpenseForm) Expense() (Expense, error) {
	fe := FieldErrors{}
	var e Expense

	if strings.TrimSpace(f.Amount) == "" {
		fe["amount"] = "Amount is required"
	} else if cents, err := ParseDecimalToCents(f.Amount); err != nil {
		fe["amount"] = "Amount must be a positive number"
	} else {
		e.Amount = Money{Cents: cents}
	}

	e.Description = strings.TrimSpace(f.Description)
	if e.Description == "" {
		fe["description"] = "Description is required"
	}

	if strings.TrimSpace(f.Date) == "" {
		fe["date"] = "Date is required"
	} else if d, err := ParseDate(f.Date); err != nil {
		fe["date"] = "Date must be YYYY-MM-DD"
	} else {
		e.Date = d
	}

	if id, err := parseID(f.CategoryID); err != nil {
		fe["category"] = "Category is required"
	} else {
		e.Category = &Category{ID: id}
	}

	if strings.TrimSpace(f.UserID) != "" {
		if id, err := parseID(f.UserID); err != nil {
			fe["user"] = "Unknown user"
		} else {
			e.User = &User{ID: id}
		}
	}

	if err := fe.Err(); err != nil {
		return Expense{}, err
	}
	return e, nil
}

type CategoryForm struct {
	Name string
}

func (f CategoryForm) Category() (Category, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return Category{}, FieldErrors{"name": "Name is required"}
	}
	return Category{Name: name}, nil
}

type UserForm struct {
	Name     string
	Password string
	Role     string
}

// User validates the form. The password is mandatory only when creating;
// on update an empty password leaves the stored one unchanged.
func (f UserForm) User(creating bool) (User, error) {
	fe := FieldErrors{}
	u := User{Name: strings.TrimSpace(f.Name), Password: f.Password, Role: RoleUser}
	if u.Name == "" {
		fe["name"] = "Name is required"
	}
	if creating && f.Password == "" {
		fe["password"] = "Password is required"
	}
	if f.Role != "" {
		role, err := ParseRole(f.Role)
		if err != nil {
			fe["role"] = "Role must be USER or ADMIN"
		}
		u.Role = role
	}
	if err := fe.Err(); err != nil {
		return User{}, err
	}
	return u, nil
}

// PasswordForm backs the password change on the settings page.
type PasswordForm struct {
	New     string
	Confirm string
}

func (f PasswordForm) Validate() error {
	fe := FieldErrors{}
	if f.New == "" {
		fe["new"] = "New password is required"
	} else if f.New != f.Confirm {
		fe["confirm"] = "Passwords do not match"
	}
	return fe.Err()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrValidation
	}
	return id, nil
}
