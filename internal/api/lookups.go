package api

import (
	"context"
	"fmt"

	"expensio/internal/core"
)

func (c *Client) Categories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.get(ctx, "/categories", nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, cat core.Category) (core.Category, error) {
	var out core.Category
	err := c.post(ctx, "/categories", cat, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, cat core.Category) (core.Category, error) {
	var out core.Category
	cat.ID = id
	err := c.put(ctx, fmt.Sprintf("/categories/%d", id), cat, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/categories/%d", id))
}

func (c *Client) Users(ctx context.Context) ([]core.User, error) {
	var out []core.User
	err := c.get(ctx, "/users", nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	var out core.User
	err := c.post(ctx, "/users", u, &out)
	return out, err
}

func (c *Client) UpdateUser(ctx context.Context, id int64, u core.User) (core.User, error) {
	var out core.User
	u.ID = id
	err := c.put(ctx, fmt.Sprintf("/users/%d", id), u, &out)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/users/%d", id))
}

// Me returns the caller's profile.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	var out core.User
	err := c.get(ctx, "/users/me", nil, &out)
	return out, err
}

func (c *Client) UpdateMe(ctx context.Context, name string) (core.User, error) {
	var out core.User
	err := c.put(ctx, "/users/me", map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) ChangePassword(ctx context.Context, password string) error {
	return c.post(ctx, "/users/me/password", map[string]string{"password": password}, nil)
}
