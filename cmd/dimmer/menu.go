package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/tray"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Pick presets from a dialog until Quit is chosen",
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

		driver, err := newDriver(file)
		if err != nil {
			return err
		}
		defer closeDriver(driver)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dispatcher := tray.NewDispatcher(engineFactory(path, driver), delta)
		return tray.RunMenu(ctx, dispatcher, tray.ZenityChooser)
	},
}
