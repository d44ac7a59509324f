// Command isinprofit serves and computes realized profit over an ISIN
// trade ledger.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&profitCmd{}, "ledger")
	commander.Register(&importCmd{}, "ledger")
	commander.Register(&healthcheckCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
