package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
)

type importCmd struct {
	dbPath   string
	file     string
	timezone string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "append a CSV ledger export to the ledger" }
func (*importCmd) Usage() string {
	return `isinprofit import [-db <path>] [-tz <zone>] -file <ledger.csv>

  Reads a trade sheet with the columns ISIN, Trade Type, Quantity, Price,
  Trade Date, Order Execution Time (and optionally Trade ID) and appends
  every row to the ledger.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dbPath, "db", "", "SQLite ledger path, overrides DB_PATH")
	f.StringVar(&c.file, "file", "", "CSV file to import, - for stdin")
	f.StringVar(&c.timezone, "tz", "UTC", "Time zone of execution times without an offset")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		return subcommands.ExitUsageError
	}
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading time zone: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := bootstrap(os.Stderr, c.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if a.cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "import needs a ledger: set DB_PATH or -db")
		return subcommands.ExitUsageError
	}

	in := os.Stdin
	if c.file != "-" {
		f, err := os.Open(c.file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", c.file, err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		in = f
	}

	res, err := a.ledgerSvc.Import(ctx, in, loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error after %d rows: %v\n", res.Imported, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("imported %d executions\n", res.Imported)
	return subcommands.ExitSuccess
}
