// marketctl is a command-line client for the marketplace ledger HTTP API.
//
//	marketctl [--server URL] [--as ADDRESS] <command> [args]
//
// Mutating commands act as the --as address.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			color.New(color.FgRed).Fprintf(os.Stderr, "%s", apiErr.Code)
			fmt.Fprintf(os.Stderr, " (HTTP %d) %s\n", apiErr.Status, apiErr.Details)
		} else {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("marketctl", pflag.ContinueOnError)
	server := flags.String("server", envOr("MARKETPLACE_URL", "http://localhost:8080"), "ledger base URL")
	as := flags.String("as", os.Getenv("MARKETPLACE_CALLER"), "caller address for mutating commands")
	at := flags.Uint64("at", 0, "unix time for the authorized command (default: ledger time)")
	noColor := flags.Bool("no-color", false, "disable colored output")
	flags.SetInterspersed(false)
	flags.Usage = func() { usage(out, flags) }
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *noColor {
		color.NoColor = true
	}
	rest := flags.Args()
	if len(rest) == 0 {
		usage(out, flags)
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	if len(rest)-1 < cmd.min || (cmd.max >= 0 && len(rest)-1 > cmd.max) {
		return fmt.Errorf("usage: marketctl %s %s", rest[0], cmd.args)
	}
	if cmd.mutates && *as == "" {
		return errors.New("--as is required for " + rest[0])
	}
	env := &cmdEnv{c: client.New(*server, *as), out: out, at: *at}
	return cmd.run(ctx, env, rest[1:])
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func usage(out io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(out, "usage: marketctl [flags] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	for _, name := range commandNames() {
		c := commands[name]
		fmt.Fprintf(out, "  %-18s %s\n", name+" "+c.args, c.help)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "flags:")
	fmt.Fprint(out, strings.TrimRight(flags.FlagUsages(), "\n")+"\n")
}
