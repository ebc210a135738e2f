// SPDX-License-Identifier: GPL-3.0-only

package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/dimmer/internal/brightness"
	"github.com/shini4i/dimmer/internal/config"
)

// Apply sets every display in displays to the value target resolves to.
// Displays are handled independently; a failure on one does not stop the
// others and all failures are returned joined.
func Apply(model *config.Model, displays []string, target Target, driver Driver) error {
	if !target.IsLiteral() && !model.HasProfile(target.Profile()) {
		return fmt.Errorf("%w %q", ErrUnknownLevel, target.Profile())
	}

	var errs []error
	for _, display := range displays {
		value, err := resolve(model, display, target)
		if err != nil {
			log.Error().Err(err).Str("display", display).Str("target", target.String()).Msg("Failed to resolve brightness")
			errs = append(errs, err)
			continue
		}

		if err := driver.SetBrightness(display, value); err != nil {
			log.Error().Err(err).Str("display", display).Int("brightness", value).Msg("Failed to set brightness")
			errs = append(errs, fmt.Errorf("%w: display %s: %w", ErrDriver, display, err))
			continue
		}

		log.Debug().Str("display", display).Int("brightness", value).Msg("Set brightness")
	}

	return errors.Join(errs...)
}

func resolve(model *config.Model, display string, target Target) (int, error) {
	if target.IsLiteral() {
		return brightness.ClampPercent(target.Literal()), nil
	}
	value, ok := model.Value(target.Profile(), display)
	if !ok {
		return 0, fmt.Errorf("%w: profile %q, display %s", ErrMissingDisplay, target.Profile(), display)
	}
	return value, nil
}
