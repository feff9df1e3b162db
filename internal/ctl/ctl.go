// Package ctl implements expensioctl, a terminal client that keeps its
// session in a local JSON file and talks to the same expense API as the web
// front-end.
package ctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expensio/internal/api"
	"expensio/internal/config"
	"expensio/internal/core"
	"expensio/internal/guard"
	"expensio/internal/log"
	"expensio/internal/session"
	"expensio/internal/storage"
)

// ClientID names the single session a CLI installation holds.
const ClientID = "cli"

var ErrNotSignedIn = errors.New("not signed in, run 'expensioctl login' first")

type Options struct {
	Config     *config.Config
	Logger     *log.Logger
	HTTPClient *http.Client // nil uses a client with the configured timeout
	Now        func() time.Time
}

type env struct {
	opts        Options
	apiURL      string
	sessionFile string
	timeout     time.Duration
}

func (e *env) client() *api.Client {
	if e.opts.HTTPClient != nil {
		return api.NewWithHTTPClient(e.apiURL, e.opts.HTTPClient)
	}
	return api.New(e.apiURL, e.timeout)
}

func (e *env) open(ctx context.Context) (*session.Manager, *api.Client, error) {
	client := e.client()
	mgr, err := session.Open(ctx, storage.NewFileStorage(e.sessionFile), client, session.Options{
		ClientID: ClientID,
		Logger:   e.opts.Logger,
		Now:      e.opts.Now,
	})
	if err != nil {
		return nil, nil, err
	}
	return mgr, client, nil
}

// NewRootCommand builds the expensioctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Config == nil {
		opts.Config = config.Load()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	opts.Logger = opts.Logger.WithComponent(log.ComponentCLI)
	e := &env{opts: opts}

	root := &cobra.Command{
		Use:           "expensioctl",
		Short:         "Expensio command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&e.apiURL, "api-url", opts.Config.APIBaseURL, "base URL of the expense API")
	flags.StringVar(&e.sessionFile, "session-file", opts.Config.SessionFile, "where the session is kept")
	flags.DurationVar(&e.timeout, "timeout", opts.Config.APITimeout, "API request timeout")

	root.AddCommand(
		loginCommand(e),
		registerCommand(e),
		logoutCommand(e),
		whoamiCommand(e),
		routesCommand(e),
		expensesCommand(e),
	)
	return root
}

func loginCommand(e *env) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and keep the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if password == "" {
				var err error
				if password, err = prompt(cmd, "Password: "); err != nil {
					return err
				}
			}
			mgr, _, err := e.open(ctx)
			if err != nil {
				return err
			}
			if err := mgr.Login(ctx, args[0], password); err != nil {
				return describe(err)
			}
			s := mgr.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", s.Username, s.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func registerCommand(e *env) *cobra.Command {
	var password, role string
	cmd := &cobra.Command{
		Use:   "register [username]",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := core.ParseRole(role)
			if err != nil {
				return fmt.Errorf("role must be USER or ADMIN")
			}
			if password == "" {
				if password, err = prompt(cmd, "Password: "); err != nil {
					return err
				}
			}
			mgr, _, err := e.open(ctx)
			if err != nil {
				return err
			}
			if err := mgr.Register(ctx, args[0], password, r); err != nil {
				return describe(err)
			}
			s := mgr.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s (%s)\n", s.Username, s.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&role, "role", string(core.RoleUser), "USER or ADMIN")
	return cmd
}

func logoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := mgr.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			s := mgr.Current()
			if !s.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", s.Username, s.Role)
			return nil
		},
	}
}

// routesCommand prints what the route guard decides for every declared view,
// or for the single path given.
func routesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "routes [path]",
		Short: "Show which views the session may open",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			s := mgr.Current()

			routes := guard.Routes()
			if len(args) == 1 {
				r, ok := guard.Lookup(args[0])
				if !ok {
					return fmt.Errorf("no view is declared at %s", args[0])
				}
				routes = []guard.Route{r}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "PATH\tVIEW\tDECISION\n")
			for _, r := range routes {
				decision := "render"
				if d := guard.Decide(r, s); !d.Allowed() {
					decision = "redirect " + d.RedirectTo
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, r.Title, decision)
			}
			return tw.Flush()
		},
	}
}

func expensesCommand(e *env) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List the expenses the session may see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, client, err := e.open(ctx)
			if err != nil {
				return err
			}
			s := mgr.Current()
			if !s.Authenticated() {
				return ErrNotSignedIn
			}

			list, err := client.WithToken(s.Token).ListExpenses(ctx, api.ScopeFor(s.Role))
			if errors.Is(err, api.ErrUnauthorized) {
				if lerr := mgr.Logout(ctx); lerr != nil {
					e.opts.Logger.WarnContext(ctx, "Failed to clear rejected session", log.FieldError, lerr)
				}
				return fmt.Errorf("session expired, sign in again")
			}
			if err != nil {
				return fmt.Errorf("list expenses: %s", api.Message(err))
			}
			list = core.FilterExpenses(list, query)

			var total core.Money
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "DATE\tCATEGORY\tDESCRIPTION\tAMOUNT\t\n")
			for _, x := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", x.Date, x.CategoryName(), x.Description, x.Amount)
				total = total.Add(x.Amount)
			}
			fmt.Fprintf(tw, "\t\tTotal\t%s\t\n", total)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by description, category or user")
	return cmd
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describe turns session errors into messages fit for a terminal.
func describe(err error) error {
	var fe core.FieldErrors
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, session.ErrInvalidCredentials):
		return errors.New("invalid username or password")
	case errors.Is(err, session.ErrAlreadyExists):
		return errors.New("username already exists")
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return errors.New(api.Message(err))
	}
	return err
}
