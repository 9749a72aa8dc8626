package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shakegestures/internal/gesture"
	"shakegestures/internal/handlers"
	"shakegestures/internal/ipc"
	"shakegestures/internal/power"
	"shakegestures/internal/settings"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("shakegestured v%s\n", version)
	fmt.Println("Shake gesture to action dispatch daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  shakegestured [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Listens for shake gestures (a key press from a Linux input device or a")
	fmt.Println("  shake_detected IPC event) and runs the configured action: torch, media")
	fmt.Println("  key, screen power, or a bound command. The device is kept awake while")
	fmt.Println("  actions that need it run.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device emitting the shake key (overrides input.devices)")
	fmt.Println()
	fmt.Println("  -key-code int")
	fmt.Printf("        Key code reported for a shake (default %d, KEY_PROG1)\n", KEY_PROG1)
	fmt.Println()
	fmt.Println("  -settings-backend string")
	fmt.Println("        Settings backend: memory, file, redis (default \"file\")")
	fmt.Println()
	fmt.Println("  -settings-file string")
	fmt.Printf("        YAML settings file for the file backend (default %q)\n", defaultSettingsFS)
	fmt.Println()
	fmt.Println("  -redis-url string")
	fmt.Println("        Redis URL for the redis backend (e.g. redis://localhost:6379/0)")
	fmt.Println()
	fmt.Println("  -wake-source string")
	fmt.Println("        Wake lock source: logind, none (default \"logind\")")
	fmt.Println()
	fmt.Println("  -backlight string")
	fmt.Println("        Backlight device for screen_power (default: first found, \"none\" to disable)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Printf("        Listen address for /ws, /metrics and /healthz, empty disables (default %q)\n", defaultHTTPAddr)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-format string")
	fmt.Println("        Log format: text, json (default \"text\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SETTINGS:")
	fmt.Printf("  %s  1 enables shake gestures, anything else disables them\n", gesture.KeyEnabled)
	fmt.Printf("  %s   action id:\n", gesture.KeyAction)
	for _, a := range gesture.Actions() {
		fmt.Printf("        %d  %s\n", int(a), a)
	}
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with a config file")
	fmt.Println("  shakegestured -config /etc/shakegestured/config.yaml")
	fmt.Println()
	fmt.Println("  # Keep settings in memory and trigger gestures with shakectl")
	fmt.Println("  shakegestured -settings-backend memory -wake-source none")
	fmt.Println("  shakectl set shake_gestures_action toggle_torch")
	fmt.Println("  shakectl shake")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - Screen power and torch need write access to /sys/class/backlight and /sys/class/leds")
	fmt.Println()
}

func main() {
	// Check for version/help early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		inputDevice     = flag.String("input-device", "", "Linux input event device emitting the shake key")
		keyCode         = flag.Int("key-code", KEY_PROG1, "Key code reported for a shake")
		settingsBackend = flag.String("settings-backend", "file", "Settings backend: memory, file, redis")
		settingsFile    = flag.String("settings-file", defaultSettingsFS, "YAML settings file for the file backend")
		redisURL        = flag.String("redis-url", "", "Redis URL for the redis backend")
		wakeSource      = flag.String("wake-source", "logind", "Wake lock source: logind, none")
		backlight       = flag.String("backlight", "", "Backlight device for screen_power")
		ipcSocketPath   = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpAddr        = flag.String("http-addr", defaultHTTPAddr, "Listen address for /ws, /metrics and /healthz")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFormat       = flag.String("log-format", "text", "Log format: text, json")
		_               = flag.Bool("version", false, "Print version and exit")
		_               = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags the user actually passed override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-device":
			o.InputDevice = inputDevice
		case "key-code":
			o.KeyCode = keyCode
		case "settings-backend":
			o.SettingsBackend = settingsBackend
		case "settings-file":
			o.SettingsFile = settingsFile
		case "redis-url":
			o.RedisURL = redisURL
		case "wake-source":
			o.WakeSource = wakeSource
		case "backlight":
			o.Backlight = backlight
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-format":
			o.LogFormat = logFormat
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("shakegestured stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// run builds every component from cfg and blocks until ctx is canceled or a
// component fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	backend, err := openSettingsBackend(ctx, cfg.Settings, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	wake, closeWake, err := openWakeSource(cfg.Power, logger)
	if err != nil {
		return err
	}
	defer closeWake()

	display := openDisplay(cfg.Power, logger)

	registry, closeHandlers := buildRegistry(cfg.Actions, logger)
	defer closeHandlers()

	store := gesture.NewConfigStore(backend, logger.With("component", "config"))
	broadcasts := make(chan stateBroadcast, defaultReportBuf)
	publish := publisher(broadcasts)
	store.OnChange(func(old, cur gesture.Configuration) {
		logger.Info("gesture config changed", "enabled", cur.Enabled, "action", cur.Action)
		publish(broadcastConfigChanged{Old: old, New: cur, At: time.Now().UTC()})
	})

	// A nil *Backlight must not become a non-nil interface.
	var screen gesture.Display
	if display != nil {
		screen = display
	}
	dispatcher := gesture.NewDispatcher(store, wake, screen,
		gesture.WithLogger(logger.With("component", "dispatcher")),
		gesture.WithHandlers(registry),
	)
	dispatcher.Observe(func(rep gesture.Report) {
		publish(broadcastGesture{Report: rep})
	})

	// Load settings before accepting gestures; Watch refreshes again, harmlessly.
	initial := store.Refresh(ctx)
	logger.Info("gesture config loaded", "enabled", initial.Enabled, "action", initial.Action)

	changes, err := backend.Subscribe(ctx, settings.Keys...)
	if err != nil {
		return fmt.Errorf("subscribe to settings: %w", err)
	}

	events := make(chan ipc.Event, defaultEventBuf)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		store.Watch(gctx, changes)
		return nil
	})

	g.Go(func() error {
		return ipc.Serve(gctx, cfg.IPC.SocketPath, events, logger.With("component", "ipc"))
	})

	if cfg.HTTP.Enabled {
		state := NewStateServer(logger.With("component", "ws"), dispatcher, HubConfig{})
		g.Go(func() error {
			state.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, state.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Addr, newRouter(state, dispatcher), logger)
		})
	}

	if len(cfg.Input.Devices) > 0 {
		files, err := openInputDevices(cfg.Input.Devices)
		if err != nil {
			logger.Error("failed to open input device", "error", err, "tip", "run as root or add user to 'input' group")
			return err
		}
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()

		raw := make(chan inputEvent, defaultEventBuf)
		g.Go(func() error {
			err := readInputEventsEpoll(gctx, files, raw)
			if err != nil {
				return fmt.Errorf("input reader: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			translateInput(gctx, raw, events, cfg.Input.KeyCode, logger)
			return nil
		})
	}

	g.Go(func() error {
		runDaemon(gctx, events, dispatcher, store, backend, logger)
		return nil
	})

	logger.Info("listening",
		"input_devices", cfg.Input.Devices,
		"key_code", cfg.Input.KeyCode,
		"settings_backend", cfg.Settings.Backend,
		"wake_source", cfg.Power.WakeSource,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Addr,
		"http_enabled", cfg.HTTP.Enabled)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openSettingsBackend(ctx context.Context, cfg SettingsConfig, logger *slog.Logger) (settings.Backend, error) {
	logger = logger.With("component", "settings", "backend", cfg.Backend)
	switch cfg.Backend {
	case "memory":
		return settings.NewMemory(cfg.Initial), nil
	case "file":
		b, err := settings.NewFile(ExpandPath(cfg.File), logger)
		if err != nil {
			return nil, fmt.Errorf("open settings file: %w", err)
		}
		return b, nil
	case "redis":
		b, err := settings.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connect settings redis: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}

// openWakeSource connects to logind. When the system bus is unavailable the
// daemon keeps running without wake locks.
func openWakeSource(cfg PowerConfig, logger *slog.Logger) (gesture.WakeSource, func(), error) {
	if cfg.WakeSource == "none" {
		return power.Nop{}, func() {}, nil
	}
	l, err := power.ConnectLogind(cfg.InhibitWho)
	if err != nil {
		logger.Warn("logind unavailable, running without wake locks", "error", err)
		return power.Nop{}, func() {}, nil
	}
	return l, func() { _ = l.Close() }, nil
}

// openDisplay returns nil when no backlight is usable; screen_power is then
// reported as unbound.
func openDisplay(cfg PowerConfig, logger *slog.Logger) *power.Backlight {
	if cfg.Backlight == "none" {
		return nil
	}
	b, err := power.NewBacklight(cfg.BacklightRoot, cfg.Backlight)
	if err != nil {
		logger.Warn("no backlight, screen_power disabled", "error", err)
		return nil
	}
	logger.Debug("backlight found", "device", b.Device())
	return b
}

func buildRegistry(cfg ActionsConfig, logger *slog.Logger) (*handlers.Registry, func()) {
	logger = logger.With("component", "handlers")
	opts := []handlers.RegistryOption{
		handlers.WithCommands(handlers.NewCommands(cfg.CommandArgv(), cfg.CommandTimeout())),
	}
	closeFn := func() {}

	if cfg.TorchLED != "" {
		t, err := handlers.NewTorch(cfg.LEDRoot, cfg.TorchLED)
		if err != nil {
			logger.Warn("torch LED unavailable", "led", cfg.TorchLED, "error", err)
		} else {
			opts = append(opts, handlers.WithTorch(t))
		}
	}

	if cfg.MPRIS {
		m, err := handlers.ConnectMPRIS(cfg.MPRISPlayer)
		if err != nil {
			logger.Warn("session bus unavailable, media key uses commands only", "error", err)
		} else {
			opts = append(opts, handlers.WithMedia(m))
			closeFn = func() { _ = m.Close() }
		}
	}

	return handlers.NewRegistry(logger, opts...), closeFn
}
