package tray

import (
	"context"
	"errors"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// Chooser asks the user to pick one of items.
type Chooser func(ctx context.Context, items []string) (string, error)

// ZenityChooser shows the presets in a zenity list dialog.
func ZenityChooser(ctx context.Context, items []string) (string, error) {
	return zenity.List("Choose a brightness preset", items,
		zenity.Title("dimmer"),
		zenity.Context(ctx),
	)
}

// RunMenu shows the preset menu until Quit is chosen, the dialog is
// cancelled or ctx is done. Failing presets are logged and the menu shown again.
func RunMenu(ctx context.Context, d *Dispatcher, choose Chooser) error {
	items := make([]string, 0, len(presets))
	for _, p := range presets {
		items = append(items, string(p))
	}
	defer d.Stop()

	for {
		choice, err := choose(ctx, items)
		switch {
		case errors.Is(err, zenity.ErrCanceled), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		preset, err := ParsePreset(choice)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring menu choice")
			continue
		}

		_, err = d.Trigger(ctx, preset)
		switch {
		case errors.Is(err, ErrQuit):
			return nil
		case err != nil:
			log.Error().Err(err).Str("preset", choice).Msg("Failed to apply preset")
		}
	}
}
