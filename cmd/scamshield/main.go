// Command scamshield drives the scam-awareness video pipeline from intake to
// a publishable package, or serves it as MCP tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

// version is overridden with -ldflags "-X main.version=..." in release builds.
var version = "dev"

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	ConfigDir string
	Offline   bool
	Store     string
	DB        string
	LogLevel  string
	Version   bool
	// Progress receives stage progress lines when set.
	Progress io.Writer
}

// command is one subcommand. run receives the arguments after its name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"intake", "record a scam report and research its fact sheet", runIntake},
	{"chat", "discuss the unverified fact sheet", runChat},
	{"verify", "verify the fact sheet as an officer", runVerify},
	{"run", "run one pipeline stage", runStage},
	{"full", "run every stage after verification", runFull},
	{"resume", "rerun from a stage or visual checkpoint", runResume},
	{"refine", "revise the script or social strategy from feedback", runRefine},
	{"status", "print the stage table of a session", runStatus},
	{"report", "build the scam report", runReport},
	{"diagram", "print the stage graph as Mermaid", runDiagram},
	{"export", "write the package JSON per language", runExport},
	{"serve", "run the MCP server over stdio or HTTP", runServe},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var g globalFlags
	var verbose bool

	fs := flag.NewFlagSet("scamshield", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.ConfigDir, "config-dir", ".", "directory holding scamshield.yml")
	fs.BoolVar(&g.Offline, "offline", false, "use scripted model replies instead of the Gemini API")
	fs.StringVar(&g.Store, "store", "", "session store: mem, file or kuzu")
	fs.StringVar(&g.DB, "db", "", "session store path (directory for file, database for kuzu)")
	fs.StringVar(&g.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&verbose, "progress", false, "print stage progress to stderr")
	fs.BoolVar(&g.Version, "version", false, "print version and exit")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if g.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}
	if verbose {
		g.Progress = stderr
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(fs)
		return errors.New("no command given")
	}
	if rest[0] == "init" {
		return runInit(g.ConfigDir, rest[1:], stdout)
	}

	cmd, ok := lookup(rest[0])
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	a, err := newApp(ctx, g, stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd.run(ctx, a, rest[1:])
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: scamshield [flags] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")
	fmt.Fprintf(w, "  %-8s %s\n", "init", "write scamshield.yml and register the MCP server")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
