package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"
)

type healthcheckCmd struct {
	timeout time.Duration
}

func (*healthcheckCmd) Name() string     { return "healthcheck" }
func (*healthcheckCmd) Synopsis() string { return "probe a running server's /healthz" }
func (*healthcheckCmd) Usage() string {
	return `isinprofit healthcheck [-timeout <duration>]

  Exits 0 if http://localhost:PORT/healthz answers 200, 1 otherwise.
`
}

func (c *healthcheckCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.timeout, "timeout", 3*time.Second, "Request timeout")
}

func (c *healthcheckCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := probe(ctx, fmt.Sprintf("http://localhost:%s/healthz", port), c.timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func probe(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}
