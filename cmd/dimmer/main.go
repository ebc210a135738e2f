// Package main provides the dimmer command line: one-shot brightness presets,
// the webcam loop, a preset menu and a D-Bus daemon.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
	"github.com/shini4i/dimmer/internal/engine"
)

var (
	v       = viper.New()
	rootCmd = &cobra.Command{
		Use:   "dimmer",
		Short: "Set display brightness from presets, the time of day or a webcam",
		Long: `dimmer applies brightness profiles from a YAML file to laptop backlights,
DDC/CI monitors and Apple Studio Displays.

Without flags the "default" profile is applied. --level takes a profile name
or a percentage, --time picks min or max from sunrise and sunset, --toggle
flips between min and max and --webcam follows the ambient light until
interrupted or "q" is entered.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(v.GetBool("verbose"))
		},
		RunE: runOnce,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Enable verbose logging")
	pf.StringP("config", "c", "", "Path to the config file (default $XDG_CONFIG_HOME/dimmer/config.yaml)")
	pf.IntP("delta", "d", engine.DefaultDeltaMinutes, "Minutes to widen the daylight window on each side")

	f := rootCmd.Flags()
	f.StringP("level", "l", "", "Profile name or percentage to apply")
	f.BoolP("time", "t", false, "Choose min or max from the time of day")
	f.Bool("toggle", false, "Switch between the min and max profiles")
	f.BoolP("webcam", "w", false, "Follow the ambient light seen by the webcam")

	_ = v.BindPFlags(pf)
	_ = v.BindPFlags(f)
	v.SetEnvPrefix("DIMMER")
	v.AutomaticEnv()

	rootCmd.AddCommand(timesCmd, displaysCmd, menuCmd, daemonCmd)
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// configPath returns --config or the per-user default.
func configPath() (string, error) {
	if path := v.GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// deltaMinutes reads --delta or DIMMER_DELTA. Values that are not a
// non-negative integer are rejected.
func deltaMinutes(cfg *viper.Viper) (int, error) {
	delta, err := cast.ToIntE(cfg.Get("delta"))
	if err != nil || delta < 0 {
		return 0, fmt.Errorf("%w: got %q", daylight.ErrInvalidDelta, cfg.GetString("delta"))
	}
	return delta, nil
}

func flagsFromViper() (engine.Flags, error) {
	delta, err := deltaMinutes(v)
	if err != nil {
		return engine.Flags{}, err
	}
	return engine.Flags{
		Level:        v.GetString("level"),
		Time:         v.GetBool("time"),
		DeltaMinutes: delta,
		Toggle:       v.GetBool("toggle"),
		Webcam:       v.GetBool("webcam"),
	}, nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	flags, err := flagsFromViper()
	if err != nil {
		return err
	}
	path, err := configPath()
	if err != nil {
		return err
	}
	file, model, err := config.Load(path)
	if err != nil {
		return err
	}

	driver, err := newDriver(file)
	if err != nil {
		return err
	}
	defer closeDriver(driver)

	eng, err := newEngine(file, model, driver)
	if err != nil {
		return err
	}

	mode := engine.ModeFromFlags(flags)
	ctx := cmd.Context()
	if mode.Kind == engine.KindSensor {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = stopOnQuitLine(ctx, os.Stdin)
		log.Info().Msg("Following ambient light, press q and Enter or Ctrl+C to stop")
	}

	target, err := eng.Run(ctx, mode)
	if err != nil {
		return err
	}
	if mode.Kind != engine.KindSensor {
		log.Info().Str("mode", mode.String()).Str("target", target.String()).Msg("Brightness applied")
	}
	return nil
}

// stopOnQuitLine returns a context cancelled when a line reading "q" arrives on r.
func stopOnQuitLine(ctx context.Context, r io.Reader) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == "q" {
				cancel()
				return
			}
		}
	}()
	return ctx
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
