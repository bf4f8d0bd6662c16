// Command ledgerctl manages the SQLite posted-items ledger: schema migrations
// and inspection of what has been notified.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"market_watch/internal/ledger"
	"market_watch/migrations"
)

type options struct {
	DB   string `long:"db" env:"DATABASE_PATH" default:"./posted_items.sqlite" description:"Path to the sqlite ledger"`
	Args struct {
		Command string `positional-arg-name:"command" description:"up, up-one, down, status, version, reset or posted"`
		Query   string `positional-arg-name:"query" description:"Query name for the posted command"`
	} `positional-args:"yes"`
}

const usage = `Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations
  posted Q    List items posted for query Q`

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.LongDescription = usage
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if opts.Args.Command == "" {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", opts.Args.Command, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.Args.Command == "posted" {
		return listPosted(opts.DB, opts.Args.Query)
	}

	db, err := sql.Open("sqlite", opts.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch opts.Args.Command {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "reset":
		return goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown command\n%s", usage)
	}
}

func listPosted(path, query string) error {
	if query == "" {
		return errors.New("query name is required")
	}

	store, err := ledger.NewSQLite(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListPosted(context.Background(), query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tPOSTED AT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\n", r.ItemID, r.PostedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
