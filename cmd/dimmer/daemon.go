// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/dbus"
	"github.com/shini4i/dimmer/internal/display"
	"github.com/shini4i/dimmer/internal/tray"
	"github.com/shini4i/dimmer/internal/udev"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve presets over D-Bus and re-apply them on hot-plug",
	Long: `daemon exports io.github.shini4i.Dimmer on the session bus.

The last preset is re-applied when a display is plugged in, when the config
file changes and, for "Time based", every --refresh interval.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var (
	// settleDelay gives a new USB device time to expose its HID interface.
	settleDelay = 500 * time.Millisecond

	// retryBackoff is the linear backoff step between re-apply attempts.
	retryBackoff = 500 * time.Millisecond
)

const maxRetries = 3

func init() {
	f := daemonCmd.Flags()
	f.String("preset", "", "Preset to apply on startup")
	f.Duration("refresh", 5*time.Minute, "How often the Time based preset is re-evaluated")
	_ = v.BindPFlags(f)
}

// controller serves the D-Bus methods from the dispatcher and the display driver.
type controller struct {
	*tray.Dispatcher
	*display.Driver
}

// reapplier is the part of the dispatcher the background handlers use.
type reapplier interface {
	Reapply(ctx context.Context) error
	Last() (tray.Preset, bool)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	delta, err := deltaMinutes(v)
	if err != nil {
		return err
	}
	path, err := configPath()
	if err != nil {
		return err
	}
	file, _, err := config.Load(path)
	if err != nil {
		return err
	}

	log.Info().Str("config", path).Msg("Starting dimmer daemon")

	driver, err := newDriver(file)
	if err != nil {
		return err
	}
	defer closeDriver(driver)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := tray.NewDispatcher(engineFactory(path, driver), delta)
	defer dispatcher.Stop()

	server := dbus.NewServer(ctx, controller{Dispatcher: dispatcher, Driver: driver})
	server.SetQuitHandler(stop)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		if err := server.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop D-Bus server")
		}
	}()

	monitor := udev.NewMonitor(createHotplugHandler(ctx, dispatcher))
	monitor.SetRecoveryHandler(createRecoveryHandler(ctx, dispatcher))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}
	defer func() {
		if err := monitor.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop udev monitor")
		}
	}()

	v.SetConfigFile(path)
	v.OnConfigChange(configChangeHandler(ctx, path, dispatcher))
	v.WatchConfig()

	if name := v.GetString("preset"); name != "" {
		preset, err := tray.ParsePreset(name)
		if err != nil {
			return err
		}
		if _, err := dispatcher.Trigger(ctx, preset); err != nil {
			log.Error().Err(err).Str("preset", name).Msg("Failed to apply startup preset")
		}
	}

	go refreshTimeBased(ctx, dispatcher, v.GetDuration("refresh"))

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	return nil
}

// reapplyMu serializes re-applies from hot-plug, recovery and config events.
var reapplyMu sync.Mutex

// reapplyWithRetry re-applies the last preset with linear backoff.
func reapplyWithRetry(ctx context.Context, r reapplier, retries int) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * retryBackoff
			log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying re-apply")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.Reapply(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempts", attempt+1).Msg("Re-apply succeeded after retry")
			}
			return nil
		}
		// Bad config will not fix itself.
		if errors.Is(err, config.ErrConfigLoad) {
			return err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Int("maxRetries", retries+1).Msg("Re-apply failed")
	}
	return lastErr
}

// createHotplugHandler re-applies the last preset after a display appears or changes.
func createHotplugHandler(ctx context.Context, r reapplier) udev.EventHandler {
	return func(event udev.Event) {
		reapplyMu.Lock()
		defer reapplyMu.Unlock()

		// Removing a display leaves nothing to set.
		if event.Type == udev.EventRemove {
			return
		}
		time.Sleep(settleDelay)

		if err := reapplyWithRetry(ctx, r, maxRetries); err != nil {
			log.Error().Err(err).Str("event", event.Type.String()).Msg("Failed to re-apply after hot-plug event")
		}
	}
}

// createRecoveryHandler re-applies after netlink dropped events.
func createRecoveryHandler(ctx context.Context, r reapplier) udev.RecoveryHandler {
	return func() {
		reapplyMu.Lock()
		defer reapplyMu.Unlock()

		log.Info().Msg("Re-applying after netlink buffer overflow")
		time.Sleep(settleDelay)

		if err := reapplyWithRetry(ctx, r, maxRetries); err != nil {
			log.Error().Err(err).Msg("Recovery re-apply failed")
		}
	}
}

// configChangeHandler re-applies the last preset once the file is valid again.
func configChangeHandler(ctx context.Context, path string, r reapplier) func(fsnotify.Event) {
	return func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		if _, _, err := config.Load(path); err != nil {
			log.Error().Err(err).Msg("Ignoring invalid config change")
			return
		}

		reapplyMu.Lock()
		defer reapplyMu.Unlock()

		log.Info().Str("config", path).Msg("Config changed, re-applying")
		if err := r.Reapply(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to re-apply after config change")
		}
	}
}

// refreshTimeBased re-evaluates the Time based preset so sunrise and sunset
// take effect without a trigger.
func refreshTimeBased(ctx context.Context, r reapplier, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if last, ok := r.Last(); !ok || last != tray.PresetTime {
				continue
			}
			reapplyMu.Lock()
			err := r.Reapply(ctx)
			reapplyMu.Unlock()
			if err != nil {
				log.Error().Err(err).Msg("Failed to refresh Time based preset")
			}
		}
	}
}
