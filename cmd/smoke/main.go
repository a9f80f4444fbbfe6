package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/engine"
	"github.com/hyprpal/scenepal/internal/ipc"
	"github.com/hyprpal/scenepal/internal/rules"
	"github.com/hyprpal/scenepal/internal/util"
)

// discardWriter satisfies engine.SceneWriter without touching the disk.
type discardWriter struct{}

func (discardWriter) WriteScene(string) error { return nil }

func main() {
	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".config", "scenepal", "screens.json")

	cfgPath := flag.String("config", defaultConfig, "path to JSON config")
	logLevel := flag.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	backendName := flag.String("backend", string(ipc.BackendAuto), "focus backend (auto|hyprland|x11|xprop|windows|darwin)")
	explain := flag.Bool("explain", true, "list every rule comparison")
	flag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	cfg, _, err := config.Load(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}

	backend, err := ipc.ParseBackend(*backendName)
	if err != nil {
		exitErr(err)
	}
	observer, backend, err := ipc.NewObserver(logger, backend, ipc.QueryStrategySocket)
	if err != nil {
		exitErr(fmt.Errorf("configure focus backend: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fmt.Printf("Loaded config from %s\n", *cfgPath)
	fmt.Println("\n=== Rules ===")
	if err := marshalYAML(rules.Derive(cfg)); err != nil {
		logger.Warnf("failed to print rules: %v", err)
	}
	if len(cfg.Warnings) > 0 {
		fmt.Println("\n=== Config Issues ===")
		for _, w := range cfg.Warnings {
			fmt.Printf("- %s\n", w.Error())
		}
	}

	src := staticSource{cfg: cfg}
	eng := engine.New(observer, src, discardWriter{}, logger, engine.Options{DryRun: true})
	preview, err := eng.Preview(ctx, *explain)
	if err != nil {
		exitErr(fmt.Errorf("resolve focused window via %s: %w", backend, err))
	}

	fmt.Printf("\n=== Focused Window (%s) ===\n", backend)
	if preview.Observation == nil {
		fmt.Println("none")
	} else if err := marshalJSON(preview.Observation); err != nil {
		logger.Warnf("failed to print observation: %v", err)
	}

	fmt.Println("\n=== Resolution ===")
	switch {
	case !preview.Matched && cfg.UnknownAppScene != nil:
		fmt.Printf("no rule matched, unknown app scene %s would be used\n", *cfg.UnknownAppScene)
	case !preview.Matched:
		fmt.Println("no rule matched, the scene would stay unchanged")
	case preview.Scene == nil:
		fmt.Printf("%s rule %q matched %q, the scene would stay unchanged\n", preview.Stage, preview.Rule, preview.Identifier)
	default:
		fmt.Printf("%s rule %q matched %q, scene %s\n", preview.Stage, preview.Rule, preview.Identifier, *preview.Scene)
	}

	if len(preview.Steps) > 0 {
		fmt.Println("\n=== Rule Comparisons ===")
		for _, step := range preview.Steps {
			status := "skipped"
			if step.Matched {
				status = "matched"
			}
			fmt.Printf("%s %q vs %q → %s\n", step.Stage, step.Rule, step.Candidate, status)
		}
	}
}

type staticSource struct {
	cfg *config.Config
}

func (s staticSource) Current(context.Context) (*config.Config, error) {
	if s.cfg == nil {
		return nil, errors.New("no config loaded")
	}
	return s.cfg, nil
}

func (staticSource) Invalidate() {}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func marshalYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func marshalJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
