package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/dimmer/internal/config"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List the displays dimmer can drive and their brightness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		ids, err := driver.Displays()
		if err != nil {
			log.Warn().Err(err).Msg("Some backends could not list displays")
		}
		values, err := driver.GetBrightness()
		if err != nil {
			log.Warn().Err(err).Msg("Some displays could not be read")
		}
		return printDisplays(cmd.OutOrStdout(), ids, values, model.Displays())
	},
}

// printDisplays prints one line per detected or configured display.
func printDisplays(w io.Writer, detected []string, values map[string]int, configured []string) error {
	ids := slices.Clone(detected)
	for _, id := range configured {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		level := "-"
		if percent, ok := values[id]; ok {
			level = fmt.Sprintf("%d%%", percent)
		}
		var notes []string
		if slices.Contains(configured, id) {
			notes = append(notes, "configured")
		}
		if !slices.Contains(detected, id) {
			notes = append(notes, "missing")
		}
		if _, err := fmt.Fprintf(w, "%-36s %5s  %v\n", id, level, notes); err != nil {
			return err
		}
	}
	return nil
}
