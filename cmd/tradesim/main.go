// Command tradesim is an interactive shell over an in-process matching engine.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/logging"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/0x5487/tradesim/protocol"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("tradesim", pflag.ExitOnError)
	logLevel := fs.String("log-level", "warn", "log level for stderr")
	history := fs.Int("history", tradelog.DefaultSize, "number of recent trades kept for TRADES")
	quiet := fs.BoolP("quiet", "q", false, "no banner and no prompt, for scripted input")
	_ = fs.Parse(os.Args[1:])

	logger, sync, err := logging.New(*logLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = sync() }()
	slog.SetDefault(logger)
	match.SetLogger(logger)

	d := server.NewDispatcher(match.NewMatchingEngine(), tradelog.New(*history),
		server.WithVerboseHelp(),
		server.WithDispatcherLogger(logger))

	if err := shell(d, os.Stdin, os.Stdout, !*quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// shell feeds every input line to d until QUIT or end of input.
func shell(d *server.Dispatcher, in io.Reader, out io.Writer, interactive bool) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	prompt := func() {
		if interactive {
			_, _ = w.WriteString("> ")
		}
		_ = w.Flush()
	}

	if interactive {
		fmt.Fprintln(w, "tradesim shell")
		for _, line := range d.Handle("HELP").Lines {
			fmt.Fprintln(w, line)
		}
	}
	prompt()

	scanner := protocol.NewLineScanner(in)
	for scanner.Scan() {
		resp := d.Handle(scanner.Text())
		for _, line := range resp.Lines {
			fmt.Fprintln(w, line)
		}
		if resp.Quit {
			return nil
		}
		prompt()
	}
	return scanner.Err()
}
