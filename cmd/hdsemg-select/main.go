package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hdsemg/hdsemg-select/internal/version"
)

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

var errUsage = errors.New("unknown command")

func run(command string, args []string, w io.Writer) error {
	switch command {
	case "grids":
		return runGrids(args, w)
	case "pages":
		return runPages(args, w)
	case "flag":
		return runFlag(args, w)
	case "export":
		return runExport(args, w)
	case "report":
		return runReport(args, w)
	case "plot":
		return runPlot(args, w)
	case "db":
		return runDB(args, w)
	case "version":
		fmt.Fprintf(w, "hdsemg-select version %s\n", version.String())
		return nil
	case "help":
		printUsage(w)
		return nil
	}
	return fmt.Errorf("%w %q", errUsage, command)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `hdsemg-select - HD-sEMG channel selection

Usage: hdsemg-select <command> [options]

Commands:
  grids      List the electrode grids found in a recording
  pages      Show the paged channel order of one grid
  flag       Run the channel quality analyzer and print suggested labels
  export     Write the selected channels and a JSON sidecar
  report     Write an HTML channel quality report
  plot       Render one page of a grid as PNG
  db         Save, list, show or delete stored sessions
  version    Show version
  help       Show this help message

Common Flags:
  -in <file>        Recording (.edf)
  -config <file>    Selection config (.json), defaults to config/select.defaults.json
  -v                Verbose analyzer traces

Examples:
  hdsemg-select grids -in trial.edf
  hdsemg-select pages -in trial.edf -grid 13x5 -fiber perpendicular
  hdsemg-select export -in trial.edf -out trial_sel.edf -auto-deselect -db sessions.db
  hdsemg-select db -path sessions.db list`)
}
