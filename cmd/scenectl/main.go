package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/control/client"
	"github.com/hyprpal/scenepal/internal/ui/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("scenectl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	socket := fs.String("socket", "", "path to scenepal control socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <command> [args]\n", fs.Name())
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  status\t\t\tshow the current scene and focused window")
		fmt.Fprintln(fs.Output(), "  reload\t\t\tre-read the config file now")
		fmt.Fprintln(fs.Output(), "  history\t\t\tlist recent scene transitions")
		fmt.Fprintln(fs.Output(), "  resolve [--explain]\tresolve the focused window without switching")
		fmt.Fprintln(fs.Output(), "  metrics\t\t\tprint daemon counters")
		fmt.Fprintln(fs.Output(), "  watch\t\t\tlive status view")
		fmt.Fprintln(fs.Output(), "  check --config <path>\tvalidate a configuration file")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}

	if args[0] == "check" {
		return runCheck(args[1:], os.Stdout, os.Stderr)
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if args[0] == "watch" {
		return runWatch(cli)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "status":
		return runStatus(ctx, cli, os.Stdout)
	case "reload":
		return runReload(ctx, cli, os.Stdout)
	case "history":
		return runHistory(ctx, cli, os.Stdout)
	case "resolve":
		return runResolve(ctx, cli, args[1:], os.Stdout)
	case "metrics":
		return runMetrics(ctx, cli, os.Stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return fmt.Errorf("check requires --config <path>")
	}

	warnings, err := config.LintFile(*configPath)
	if err != nil {
		return err
	}
	if len(warnings) == 0 {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}

	fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(stderr, "- %s\n", w.Error())
	}
	return fmt.Errorf("configuration validation failed")
}

type statusClient interface {
	Status(ctx context.Context) (client.SceneStatus, error)
}

func runStatus(ctx context.Context, cli statusClient, out io.Writer) error {
	status, err := cli.Status(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Scene:\t%s\n", status.Scene)
	if status.ActiveIdentifier != "" {
		fmt.Fprintf(tw, "Matched:\t%s (%s rule %q)\n", status.ActiveIdentifier, status.Stage, status.Rule)
	}
	if obs := status.Observation; obs != nil {
		fmt.Fprintf(tw, "Classes:\t%s\n", strings.Join(obs.Classes, ", "))
		fmt.Fprintf(tw, "Title:\t%s\n", obs.Title)
		if obs.Workspace != "" {
			fmt.Fprintf(tw, "Desktop:\t%s\n", obs.Workspace)
		}
	}
	fmt.Fprintf(tw, "Poll:\t%s\n", status.Delay)
	if status.DryRun {
		fmt.Fprintf(tw, "Dry run:\tyes\n")
	}
	if status.Backend != "" {
		fmt.Fprintf(tw, "Backend:\t%s\n", status.Backend)
	}
	if status.ConfigPath != "" {
		fmt.Fprintf(tw, "Config:\t%s\n", status.ConfigPath)
	}
	if status.OutputPath != "" {
		fmt.Fprintf(tw, "Output:\t%s\n", status.OutputPath)
	}
	return tw.Flush()
}

func runReload(ctx context.Context, cli *client.Client, out io.Writer) error {
	if err := cli.Reload(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Reload requested")
	return nil
}

type historyClient interface {
	History(ctx context.Context) (client.HistoryResult, error)
}

func runHistory(ctx context.Context, cli historyClient, out io.Writer) error {
	result, err := cli.History(ctx)
	if err != nil {
		return err
	}
	if len(result.Transitions) == 0 {
		fmt.Fprintln(out, "No transitions yet")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tSCENE\tIDENTIFIER\tSTATE")
	for _, tr := range result.Transitions {
		state := "written"
		switch {
		case tr.Error != "":
			state = "error: " + tr.Error
		case !tr.Persisted:
			state = "not written"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s -> %s\t%s\t%s\n",
			tr.Timestamp.Format(time.TimeOnly), tr.Outcome, tr.Previous, tr.Scene, tr.Identifier, state)
	}
	return tw.Flush()
}

type resolveClient interface {
	Resolve(ctx context.Context, explain bool) (client.ResolveResult, error)
}

func runResolve(ctx context.Context, cli resolveClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	explain := fs.Bool("explain", false, "list every rule comparison")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	result, err := cli.Resolve(ctx, *explain)
	if err != nil {
		return err
	}
	if obs := result.Observation; obs != nil {
		fmt.Fprintf(out, "Focused: %s %q on %q\n", strings.Join(obs.Classes, ","), obs.Title, obs.Workspace)
	} else {
		fmt.Fprintln(out, "Focused: nothing")
	}
	switch {
	case !result.Matched:
		fmt.Fprintln(out, "No rule matches")
	case result.Scene == nil:
		fmt.Fprintf(out, "%s rule %q matched %q, scene stays unchanged\n", result.Stage, result.Rule, result.Identifier)
	default:
		fmt.Fprintf(out, "%s rule %q matched %q, scene %s\n", result.Stage, result.Rule, result.Identifier, *result.Scene)
	}
	for _, step := range result.Steps {
		mark := " "
		if step.Matched {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %-22s %q vs %q\n", mark, step.Stage, step.Rule, step.Candidate)
	}
	return nil
}

type metricsClient interface {
	Metrics(ctx context.Context) (client.MetricsSnapshot, error)
}

func runMetrics(ctx context.Context, cli metricsClient, out io.Writer) error {
	snap, err := cli.Metrics(ctx)
	if err != nil {
		return err
	}
	if !snap.Enabled {
		fmt.Fprintln(out, "Metrics are disabled")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "cycles\t%d\n", snap.Cycles)
	fmt.Fprintf(tw, "observation misses\t%d\n", snap.ObservationMisses)
	fmt.Fprintf(tw, "persist errors\t%d\n", snap.PersistErrors)
	for _, key := range sortedKeys(snap.Matches) {
		fmt.Fprintf(tw, "matches %s\t%d\n", key, snap.Matches[key])
	}
	for _, key := range sortedKeys(snap.Outcomes) {
		fmt.Fprintf(tw, "outcome %s\t%d\n", key, snap.Outcomes[key])
	}
	for _, sc := range snap.Scenes {
		fmt.Fprintf(tw, "scene %s\t%d\n", sc.Scene, sc.Entered)
	}
	return tw.Flush()
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runWatch(cli *client.Client) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	renderer := tui.New(cli, os.Stdout)
	if err := renderer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
