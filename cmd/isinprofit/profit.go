package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/service"
)

type profitCmd struct {
	dbPath string
	date   string
	from   string
	to     string
}

func (*profitCmd) Name() string     { return "profit" }
func (*profitCmd) Synopsis() string { return "compute realized profit for a date or date range" }
func (*profitCmd) Usage() string {
	return `isinprofit profit [-db <path>] -date <YYYY-MM-DD> | -from <YYYY-MM-DD> -to <YYYY-MM-DD>

  Matches every sell on the given date (or in the range) against the ledger
  and prints the realized profit per ISIN or per date.
`
}

func (c *profitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dbPath, "db", "", "SQLite ledger path, overrides DB_PATH")
	f.StringVar(&c.date, "date", "", "Trade date of the sells")
	f.StringVar(&c.from, "from", "", "First date of the range")
	f.StringVar(&c.to, "to", "", "Last date of the range")
}

func (c *profitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	single := c.date != "" && c.from == "" && c.to == ""
	ranged := c.date == "" && c.from != "" && c.to != ""
	if !single && !ranged {
		fmt.Fprintln(os.Stderr, "either -date or both -from and -to are required")
		return subcommands.ExitUsageError
	}

	a, err := bootstrap(os.Stderr, c.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if a.cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "profit needs a ledger: set DB_PATH or -db")
		return subcommands.ExitUsageError
	}

	if single {
		date, err := domain.ParseDate(c.date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
			return subcommands.ExitUsageError
		}
		day, err := a.profitSvc.ProfitForDate(ctx, date)
		if err != nil {
			return reportProfitError(err)
		}
		writeDailyProfit(os.Stdout, day)
		return subcommands.ExitSuccess
	}

	from, err := domain.ParseDate(c.from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing from date: %v\n", err)
		return subcommands.ExitUsageError
	}
	to, err := domain.ParseDate(c.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing to date: %v\n", err)
		return subcommands.ExitUsageError
	}
	rng, err := a.profitSvc.ProfitForRange(ctx, from, to)
	if err != nil {
		return reportProfitError(err)
	}
	writeRangeProfit(os.Stdout, rng)
	return subcommands.ExitSuccess
}

func reportProfitError(err error) subcommands.ExitStatus {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNoSellExecutions):
		fmt.Fprintln(os.Stderr, "no sell executions found")
		return subcommands.ExitFailure
	case errors.As(err, &validationErr):
		fmt.Fprintf(os.Stderr, "Error: %s\n", validationErr.Message)
		return subcommands.ExitUsageError
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
}

// writeDailyProfit prints one row per ISIN, sorted, then the total.
func writeDailyProfit(w io.Writer, day *service.DailyProfit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ISIN\tProfit\tUnmatched\t\n")

	isins := make([]string, 0, len(day.ByISIN))
	for isin := range day.ByISIN {
		isins = append(isins, isin)
	}
	sort.Strings(isins)
	for _, isin := range isins {
		unmatched := "-"
		if q, ok := day.UnmatchedByISIN[isin]; ok {
			unmatched = q.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", isin, day.ByISIN[isin].StringFixed(2), unmatched)
	}
	fmt.Fprintf(tw, "%s\t%s\t%d sells\t\n", day.Date, day.Total.StringFixed(2), day.SellCount)
	tw.Flush()
}

// writeRangeProfit prints one row per date carrying sells, then the total.
func writeRangeProfit(w io.Writer, rng *service.RangeProfit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Date\tProfit\tSells\t\n")
	for _, day := range rng.Days {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", day.Date, day.Total.StringFixed(2), day.SellCount)
	}
	fmt.Fprintf(tw, "%s..%s\t%s\t%d\t\n", rng.From, rng.To, rng.Total.StringFixed(2), rng.SellCount)
	tw.Flush()
}
