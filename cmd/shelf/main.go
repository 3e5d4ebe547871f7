// Command shelf manages a bookshelf catalog from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"bookshelf/internal/client"
	"bookshelf/internal/clientstate"
	"bookshelf/internal/platform/logging"
	"bookshelf/internal/platform/openlibrary"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "shelf: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	bookFlags := []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "book title"},
		&cli.StringFlag{Name: "author", Usage: "book author"},
		&cli.StringFlag{Name: "genre", Usage: "book genre"},
		&cli.IntFlag{Name: "year", Usage: "year of publishing"},
		&cli.StringFlag{Name: "isbn", Usage: "ISBN, unique across the catalog"},
	}

	return &cli.App{
		Name:      "shelf",
		Usage:     "manage your personal book catalog",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:5000",
				EnvVars: []string{"SHELF_SERVER"},
				Usage:   "bookshelf API base URL",
			},
			&cli.StringFlag{
				Name:    "token-file",
				Value:   defaultTokenFile(),
				EnvVars: []string{"SHELF_TOKEN_FILE"},
				Usage:   "where the login token is kept",
			},
			&cli.StringFlag{
				Name:    "openlibrary-url",
				Value:   "https://openlibrary.org",
				EnvVars: []string{"SHELF_OPENLIBRARY_URL"},
				Usage:   "Open Library host used by add --lookup",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "create an account and log in",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SHELF_PASSWORD"}},
				},
				Action: func(c *cli.Context) error {
					api, err := anonymousClient(c)
					if err != nil {
						return err
					}
					sess, err := api.Signup(c.Context, c.String("username"), c.String("email"), c.String("password"))
					if err != nil {
						return describe(err)
					}
					if err := writeToken(c.String("token-file"), sess.Token); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "signed up as %s\n", sess.User.Username)
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "log in and store the token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SHELF_PASSWORD"}},
				},
				Action: func(c *cli.Context) error {
					api, err := anonymousClient(c)
					if err != nil {
						return err
					}
					sess, err := api.Login(c.Context, c.String("email"), c.String("password"))
					if err != nil {
						return describe(err)
					}
					if err := writeToken(c.String("token-file"), sess.Token); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "logged in as %s\n", sess.User.Username)
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "forget the stored token",
				Action: func(c *cli.Context) error {
					return removeToken(c.String("token-file"))
				},
			},
			{
				Name:  "list",
				Usage: "list your books",
				Action: func(c *cli.Context) error {
					st, err := newState(c)
					if err != nil {
						return err
					}
					return finish(c, st, st.Load(c.Context))
				},
			},
			{
				Name:  "add",
				Usage: "add a book",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "lookup", Usage: "prefill unset fields from Open Library by --isbn"},
				}, bookFlags...),
				Action: func(c *cli.Context) error {
					st, err := newState(c)
					if err != nil {
						return err
					}
					d := st.Snapshot().AddDraft
					if c.Bool("lookup") {
						if err := prefill(c, &d); err != nil {
							return err
						}
					}
					applyFlags(c, &d)
					st.SetAddDraft(d)
					return finish(c, st, st.Add(c.Context))
				},
			},
			{
				Name:      "edit",
				Usage:     "change fields of a book, unset flags keep their value",
				ArgsUsage: "<id>",
				Flags:     bookFlags,
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("edit: missing book id", 2)
					}
					st, err := newState(c)
					if err != nil {
						return err
					}
					if err := st.Load(c.Context); err != nil {
						return finish(c, st, err)
					}
					if err := st.BeginEdit(id); err != nil {
						return fmt.Errorf("edit %s: %w", id, err)
					}
					d := st.Snapshot().EditDraft
					applyFlags(c, &d)
					if err := st.SetEditDraft(d); err != nil {
						return err
					}
					return finish(c, st, st.CommitEdit(c.Context))
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a book",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("delete: missing book id", 2)
					}
					st, err := newState(c)
					if err != nil {
						return err
					}
					return finish(c, st, st.Delete(c.Context, id))
				},
			},
		},
	}
}

func logger(c *cli.Context) *slog.Logger {
	return logging.New(os.Stderr, c.String("log-level"))
}

func anonymousClient(c *cli.Context) (*client.Client, error) {
	return client.New(c.String("server"), client.WithUserAgent("shelf"))
}

func newState(c *cli.Context) (*clientstate.State, error) {
	token, err := readToken(c.String("token-file"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	api, err := client.New(c.String("server"), client.WithToken(token), client.WithUserAgent("shelf"))
	if err != nil {
		return nil, err
	}
	return clientstate.New(api,
		clientstate.WithLogger(logger(c)),
		clientstate.WithSessionExpiredHook(func() {
			fmt.Fprintln(c.App.ErrWriter, "session expired, run `shelf login`")
		}),
	), nil
}

func applyFlags(c *cli.Context, d *clientstate.Draft) {
	if c.IsSet("title") {
		d.Title = c.String("title")
	}
	if c.IsSet("author") {
		d.Author = c.String("author")
	}
	if c.IsSet("genre") {
		d.Genre = c.String("genre")
	}
	if c.IsSet("year") {
		d.YearOfPublishing = c.Int("year")
	}
	if c.IsSet("isbn") {
		d.ISBN = c.String("isbn")
	}
}

// prefill copies Open Library metadata for --isbn into d. Flags applied
// afterwards take precedence.
func prefill(c *cli.Context, d *clientstate.Draft) error {
	isbn := c.String("isbn")
	if isbn == "" {
		return cli.Exit("add: --lookup needs --isbn", 2)
	}
	ol := openlibrary.NewClient("shelf", 1, 2, openlibrary.WithBaseURL(c.String("openlibrary-url")))
	ed, err := ol.LookupISBN(c.Context, isbn)
	if errors.Is(err, openlibrary.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("add: no Open Library record for ISBN %s", isbn), 1)
	}
	if err != nil {
		return fmt.Errorf("lookup %s: %w", isbn, err)
	}
	logger(c).Debug("open library match", "isbn", isbn, "title", ed.Title)

	d.Title = ed.Title
	d.Author = ed.AuthorNames()
	d.Genre = ed.Genre()
	if y := ed.Year(); y > 0 {
		d.YearOfPublishing = y
	}
	return nil
}

// finish prints the reconciled list, or turns err into an exit status.
func finish(c *cli.Context, st *clientstate.State, err error) error {
	v := st.Snapshot()
	switch {
	case errors.Is(err, clientstate.ErrSessionExpired):
		return cli.Exit("", 3)
	case errors.Is(err, clientstate.ErrInvalidDraft):
		return cli.Exit("title, author, genre, isbn and a positive --year are required", 2)
	case err != nil:
		if v.Err != "" {
			return cli.Exit(v.Err, 1)
		}
		return err
	}
	printBooks(c.App.Writer, v)
	return nil
}

func printBooks(w io.Writer, v clientstate.View) {
	if len(v.Books) == 0 {
		fmt.Fprintln(w, "No books yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tGENRE\tYEAR\tISBN")
	for _, b := range v.Books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", b.ID, b.Title, b.Author, b.Genre, b.YearOfPublishing, b.ISBN)
	}
	_ = tw.Flush()
}

func describe(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg := apiErr.Message
		for _, d := range apiErr.Details {
			msg += "\n  " + d.Message
		}
		return cli.Exit(msg, 1)
	}
	return err
}
