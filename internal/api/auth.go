package api

import (
	"context"

	"expensio/internal/core"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the body of a successful POST /auth/login.
type LoginResult struct {
	Token string    `json:"token"`
	Role  core.Role `json:"role"`
}

// Login exchanges credentials for a token. A 401 matches ErrUnauthorized.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	err := c.post(ctx, "/auth/login", loginRequest{Username: username, Password: password}, &res)
	return res, err
}

// Register creates an account. A taken name matches ErrConflict.
func (c *Client) Register(ctx context.Context, username, password string, role core.Role) error {
	return c.post(ctx, "/auth/register", core.User{Name: username, Password: password, Role: role}, nil)
}
