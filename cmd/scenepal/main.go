package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/control"
	"github.com/hyprpal/scenepal/internal/engine"
	"github.com/hyprpal/scenepal/internal/ipc"
	"github.com/hyprpal/scenepal/internal/metrics"
	"github.com/hyprpal/scenepal/internal/output"
	"github.com/hyprpal/scenepal/internal/util"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitStructural = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(argv []string, stderr io.Writer) int {
	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".config", "scenepal", "screens.json")

	fs := flag.NewFlagSet("scenepal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", defaultConfig, "path to JSON config")
	outPath := fs.String("output", "", "scene output file (default scene.txt next to the config)")
	logLevel := fs.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	backendName := fs.String("backend", string(ipc.BackendAuto), "focus backend (auto|hyprland|x11|xprop|windows|darwin)")
	queryStrategy := fs.String("hypr-query", string(ipc.QueryStrategySocket), "Hyprland query strategy (socket|hyprctl)")
	dryRun := fs.Bool("dry-run", false, "resolve and log scenes without writing the output file")
	redactTitles := fs.Bool("redact-titles", false, "hide window titles in logs and control responses")
	metricsAddr := fs.String("metrics-addr", "", "listen address for the Prometheus endpoint (empty disables it)")
	noControl := fs.Bool("no-control", false, "do not start the control socket")
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	logger := util.NewLoggerWithWriter(util.ParseLogLevel(*logLevel), stderr)

	backend, err := ipc.ParseBackend(*backendName)
	if err != nil {
		logger.Errorf("%v", err)
		return exitFailure
	}
	strategy := ipc.QueryStrategy(strings.ToLower(*queryStrategy))
	switch strategy {
	case ipc.QueryStrategySocket, ipc.QueryStrategyHyprctl:
	default:
		logger.Errorf("unsupported Hyprland query strategy %q", *queryStrategy)
		return exitFailure
	}

	cfgFullPath, err := filepath.Abs(*cfgPath)
	if err != nil {
		logger.Errorf("resolve config path: %v", err)
		return exitFailure
	}
	cfgFullPath = filepath.Clean(cfgFullPath)
	if *outPath == "" {
		*outPath = filepath.Join(filepath.Dir(cfgFullPath), "scene.txt")
	}

	if _, err := os.Stat(cfgFullPath); config.IsNotExist(err) {
		if err := config.Generate(cfgFullPath); err != nil {
			logger.Errorf("generate config template: %v", err)
			return exitFailure
		}
		logger.Infof("config file not found, a template was written to %s", cfgFullPath)
		logger.Infof("edit it to map your windows to scenes, then start the daemon again")
		return exitOK
	}

	observer, backend, err := ipc.NewObserver(logger, backend, strategy)
	if err != nil {
		logger.Errorf("configure focus backend: %v", err)
		return exitFailure
	}
	logger.Infof("using %s focus backend", backend)

	collector := metrics.NewCollector(true)
	source := config.NewSource(cfgFullPath, logger)
	writer := output.NewSceneFile(*outPath)
	eng := engine.New(observer, source, writer, logger, engine.Options{
		DryRun:       *dryRun,
		RedactTitles: *redactTitles,
		Metrics:      collector,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					logger.Infof("received SIGHUP, reloading config")
					eng.Reload()
					continue
				}
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}()

	logger.Infof("reading config from %s, writing scenes to %s", cfgFullPath, writer.Path())
	if err := eng.Start(ctx); err != nil {
		return exitCode(logger, err)
	}

	if watcher, err := watchConfigFile(logger, cfgFullPath, eng.Reload); err != nil {
		logger.Warnf("config watcher unavailable, edits are picked up on the next poll: %v", err)
	} else {
		defer watcher.Close()
	}

	if backend == ipc.BackendHyprland {
		go func() {
			if err := ipc.WatchFocus(ctx, logger, eng.Wake); err != nil && ctx.Err() == nil {
				logger.Warnf("hyprland event stream unavailable, relying on polling: %v", err)
			}
		}()
	}

	if !*noControl {
		reload := func(reason string) error {
			logger.Infof("%s, reloading config", reason)
			eng.Reload()
			return nil
		}
		ctrlSrv, err := control.NewServer(eng, logger, reload, collector, control.Info{
			ConfigPath: cfgFullPath,
			OutputPath: writer.Path(),
			Backend:    string(backend),
		})
		if err != nil {
			logger.Warnf("control server disabled: %v", err)
		} else {
			go func() {
				if err := ctrlSrv.Serve(ctx); err != nil {
					logger.Errorf("control server stopped: %v", err)
				}
			}()
		}
	}

	if *metricsAddr != "" {
		go serveMetrics(ctx, logger, *metricsAddr, collector)
	}

	return exitCode(logger, eng.Run(ctx))
}

func exitCode(logger *util.Logger, err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Infof("exiting daemon")
		return exitOK
	case config.IsStructural(err):
		logger.Errorf("%v", err)
		logger.Errorf("the config file is structurally invalid; fix it and start the daemon again")
		return exitStructural
	default:
		logger.Errorf("daemon stopped: %v", err)
		return exitFailure
	}
}

func serveMetrics(ctx context.Context, logger *util.Logger, addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(collector))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Infof("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("metrics endpoint stopped: %v", err)
	}
}

func watchConfigFile(logger *util.Logger, target string, notify func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	go watchConfig(logger, watcher, target, func(reason string) {
		logger.Debugf("%s, re-reading config", reason)
		notify()
	})
	return watcher, nil
}

func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, notify func(reason string)) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			notify("config file updated")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}
