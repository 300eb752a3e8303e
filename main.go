package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"voiceai/capture"
	"voiceai/clipboard"
	"voiceai/config"
	"voiceai/controller"
	"voiceai/gateway"
	"voiceai/hotkey"
	"voiceai/log"
	"voiceai/messenger"
	"voiceai/shutdown"
	"voiceai/tray"
	"voiceai/webpanel"
)

var version = "dev"

const closeTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setupLogging resolves the log directory, installs the crash log and
// opens the diagnostics log. Failures only cost diagnostics.
func setupLogging(logPath string) {
	dir, err := log.ResolveDir(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		return
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
}

func settingsPath(flagPath string) (string, error) {
	if flagPath != "" {
		return filepath.Abs(flagPath)
	}
	return config.Path()
}

func openSettingsFile(path string) func() error {
	return func() error {
		if err := config.EnsureFile(path); err != nil {
			return err
		}
		return browser.OpenFile(path)
	}
}

func newGateway(f *rootFlags, s config.Settings) gateway.Gateway {
	if f.fakeGateway {
		return gateway.NewFake("This is a simulated transcription.", "This is a simulated ChatGPT reply.")
	}
	return gateway.NewOpenAI(s.BaseURL)
}

func run(ctx context.Context, f *rootFlags) error {
	if f.panel != "web" && f.panel != "tui" {
		return fmt.Errorf("unknown panel %q (use web or tui)", f.panel)
	}

	setupLogging(f.logPath)
	defer log.Close()

	path, err := settingsPath(f.configPath)
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}
	store, err := config.NewStore(path)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	initial, _ := store.Settings()
	log.Settings(config.MaskKey(initial.APIKey), initial.TranscriptionModel, initial.GPTModel, initial.Temperature, initial.AudioQuality)
	if !initial.HasAPIKey() {
		fmt.Fprintf(os.Stderr, "Warning: no OpenAI API key configured. Edit %s or set VOICEAI_API_KEY.\n", path)
	}

	var cmdFn capture.CommandFunc
	if f.fakeCapture {
		cmdFn = capture.SimulatedCommand
	} else if err := capture.Available(); err != nil {
		return fmt.Errorf("recorder unavailable: %w (try --fake-capture)", err)
	}
	recorder := capture.New(cmdFn)
	defer recorder.Close()

	bridge := messenger.NewBridge()
	defer bridge.Close()

	var srv *webpanel.Server
	var url string
	if f.panel == "web" {
		srv = webpanel.New(bridge)
		if url, err = srv.Listen(f.addr); err != nil {
			return err
		}
	}

	var panelSink controller.Sink
	var tuiFeed *tuiSink
	if f.panel == "tui" {
		tuiFeed = newTUISink()
		panelSink = tuiFeed
	} else {
		panelSink = consoleSink{w: os.Stdout, now: time.Now}
	}

	ctrl := controller.New(controller.Options{
		Capturer: recorder,
		Gateway:  newGateway(f, initial),
		Outbox:   bridge,
		Settings: func() config.Settings {
			s, err := store.Settings()
			if err != nil {
				log.Warnf("settings: %v (keeping previous values)", err)
			}
			return s
		},
		Clipboard:    clipboard.Copy,
		OpenSettings: openSettingsFile(path),
		Sink:         controller.MultiSink(traySink{}, panelSink),
	})
	bridge.OnDetach(ctrl.Dispose)

	ctx, stop := shutdown.Context(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(bridge.Serve(gctx, ctrl)) })

	combo := ""
	if !f.noHotkey {
		if hk, err := hotkey.New(); err != nil {
			log.Infof("global hotkey disabled: %v", err)
		} else if err := hk.Register(); err != nil {
			log.Warnf("could not register %s: %v", hotkey.Combo, err)
		} else {
			combo = hotkey.Combo
			g.Go(func() error {
				defer hk.Unregister()
				return ignoreCanceled(hotkey.Drive(gctx, hk, ctrl, f.longPress))
			})
		}
	}

	openPanel := func() {}
	switch f.panel {
	case "web":
		openPanel = func() {
			if err := browser.OpenURL(url); err != nil {
				log.Warnf("open browser: %v", err)
			}
		}
		fmt.Printf("Voice AI panel: %s\n", url)
		if !f.noOpen {
			openPanel()
		}
		g.Go(func() error { return srv.Serve(gctx) })
	case "tui":
		g.Go(func() error {
			defer stop()
			return runTUI(gctx, bridge, tuiFeed, combo)
		})
	}

	if !f.noTray {
		tray.OnRecord(ctrl.Start, ctrl.Stop)
		tray.OnOpenPanel(openPanel)
		tray.OnSettings(ctrl.OpenSettings)
		tray.Init()
		g.Go(func() error {
			select {
			case <-tray.Done():
				stop()
			case <-gctx.Done():
			}
			return nil
		})
	}

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if cerr := ctrl.Close(closeCtx); cerr != nil {
		log.Warnf("shutdown: %v", cerr)
	}
	tray.Quit()
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
