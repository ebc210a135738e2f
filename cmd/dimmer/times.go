package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
)

var timesCmd = &cobra.Command{
	Use:   "times",
	Short: "Show today's sunrise, sunset and the current phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		source := daylight.SunSource{Locator: newLocator(file.Location)}
		window, err := source.Times(cmd.Context())
		if err != nil {
			return err
		}
		window.DeltaMinutes = delta
		return printTimes(cmd.OutOrStdout(), window)
	},
}

func printTimes(w io.Writer, window daylight.Window) error {
	start, end, err := window.Bounds()
	if err != nil {
		return err
	}
	phase, err := daylight.Classify(window)
	if err != nil {
		return err
	}

	rel := func(t time.Time) string {
		return humanize.RelTime(t, window.Now, "ago", "from now")
	}
	clock := func(t time.Time) string {
		return t.Local().Format("15:04 MST")
	}

	_, err = fmt.Fprintf(w, "Sunrise: %s (%s)\nSunset:  %s (%s)\nDay:     %s - %s (delta %dm)\nPhase:   %s\n",
		clock(window.Sunrise), rel(window.Sunrise),
		clock(window.Sunset), rel(window.Sunset),
		clock(start), clock(end), window.DeltaMinutes,
		phase)
	return err
}
