package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-probe/internal/backend"
	"github.com/cptspacemanspiff/battery-probe/internal/collector"
	"github.com/cptspacemanspiff/battery-probe/internal/config"
	dbussvc "github.com/cptspacemanspiff/battery-probe/internal/dbus"
	"github.com/cptspacemanspiff/battery-probe/internal/manager"
	"github.com/cptspacemanspiff/battery-probe/internal/storage"
)

const defaultConfigPath = "/etc/battery-probe/config.toml"

// topicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

func parseTopics(verbose bool, list string) map[string]bool {
	topics := make(map[string]bool)
	if verbose {
		topics["all"] = true
	}
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = true
		}
	}
	return topics
}

type options struct {
	configPath string
	verbose    bool
	logTopics  string
	resetDB    bool
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "battery-monitor-daemon",
		Short:        "Record battery telemetry and serve it over D-Bus",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the TOML config file")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable all verbose logging (equivalent to --log=all)")
	flags.StringVar(&opts.logTopics, "log", "", "comma-separated log topics: battery,hotplug,sleep,storage (or 'all')")
	flags.BoolVar(&opts.resetDB, "reset-db", false, "delete the database and exit")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads path. A missing file at the default location means
// defaults; a missing file named explicitly is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.DefaultConfig(), nil
	}
	return nil, fmt.Errorf("load config %s: %w", path, err)
}

func resetDatabase(dbPath string, logger *slog.Logger) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete database: %w", err)
		}
	}
	logger.Info("database deleted", "path", dbPath)
	return nil
}

func run(opts options) error {
	handler := &topicHandler{
		inner:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: parseTopics(opts.verbose, opts.logTopics),
	}
	logger := slog.New(handler)

	batteryLog := logger.With("topic", "battery")
	hotplugLog := logger.With("topic", "hotplug")
	sleepLog := logger.With("topic", "sleep")
	storageLog := logger.With("topic", "storage")

	cfg, err := loadConfig(opts.configPath, opts.configPath != defaultConfigPath)
	if err != nil {
		logger.Error("load config", "err", err)
		return err
	}

	dbPath := cfg.Storage.DBPath
	if opts.resetDB {
		if err := resetDatabase(dbPath, logger); err != nil {
			logger.Error("reset database", "err", err)
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("create data dir", "err", err)
		return err
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("open database", "err", err)
		return err
	}
	defer store.Close()

	mgr, err := manager.Open(cfg.BackendConfig(), manager.WithLogger(batteryLog))
	if err != nil {
		logger.Error("open battery manager", "err", err)
		return err
	}
	defer mgr.Close()
	logger.Info("battery backend selected", "backend", mgr.Backend())

	sampler := collector.NewSampler(mgr, batteryLog)

	svc := dbussvc.NewService(store, sampler)
	conn, err := svc.Export()
	if err != nil {
		logger.Error("export dbus service", "err", err)
		return err
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", "org.batteryprobe.Monitor")

	var wakeCh <-chan collector.SleepEvent
	if sleepMon, err := collector.NewSleepMonitor(sleepLog); err != nil {
		logger.Warn("sleep monitor unavailable", "err", err)
	} else {
		wakeCh = sleepMon.Wake()
		defer sleepMon.Close()
	}

	var hotplugCh <-chan struct{}
	if mgr.Backend() == backend.NameSysfs {
		debounce := time.Duration(cfg.Collection.HotplugDebounceMs) * time.Millisecond
		watcher, err := collector.NewHotplugWatcher(cfg.Backend.SysfsRoot, debounce, hotplugLog)
		if err != nil {
			logger.Warn("hotplug watcher unavailable", "err", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
			hotplugCh = watcher.Changed()
		}
	}

	collect := func(reason string) {
		samples, err := sampler.Collect()
		if err != nil {
			batteryLog.Warn("collect failed", "reason", reason, "err", err)
			return
		}
		if err := store.InsertSnapshots(samples); err != nil {
			logger.Error("store snapshots", "err", err)
			return
		}
		storageLog.Debug("stored snapshots", "reason", reason, "count", len(samples))
	}

	cleanup := func() {
		cutoff := time.Now().AddDate(0, 0, -cfg.Cleanup.RetentionDays).Unix()
		deleted, err := store.DeleteOlderThan(cutoff)
		if err != nil {
			logger.Error("cleanup", "err", err)
			return
		}
		storageLog.Info("cleanup", "deleted", deleted, "retention_days", cfg.Cleanup.RetentionDays)
	}

	interval := time.Duration(cfg.Collection.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(time.Duration(cfg.Cleanup.IntervalHours) * time.Hour)
	defer cleanupTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cleanup()
	collect("startup")
	logger.Info("battery-monitor-daemon started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			collect("tick")
		case <-hotplugCh:
			hotplugLog.Info("power supplies changed")
			collect("hotplug")
		case evt := <-wakeCh:
			if err := store.InsertSleepEvent(evt); err != nil {
				logger.Error("store sleep event", "err", err)
			} else {
				sleepLog.Info("stored sleep event", "type", evt.Type, "slept_secs", evt.WakeTime-evt.SleepTime)
			}
			collect("wake")
		case <-cleanupTicker.C:
			cleanup()
		case <-sigCh:
			logger.Info("shutting down")
			return nil
		}
	}
}
