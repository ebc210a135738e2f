package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/dimmer/internal/ambient"
	"github.com/shini4i/dimmer/internal/backlight"
	"github.com/shini4i/dimmer/internal/camera"
	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
	"github.com/shini4i/dimmer/internal/ddc"
	"github.com/shini4i/dimmer/internal/display"
	"github.com/shini4i/dimmer/internal/engine"
	"github.com/shini4i/dimmer/internal/hid"
	"github.com/shini4i/dimmer/internal/tray"
)

// newBacklight writes through logind and falls back to a read-only backend
// when the system bus is unavailable.
var newBacklight = func() display.Backend {
	b, err := backlight.NewLogind()
	if err != nil {
		log.Warn().Err(err).Msg("logind unavailable, backlights are read-only")
		return backlight.New()
	}
	return b
}

// newDriver loads the backends listed in the config file.
func newDriver(file *config.File) (*display.Driver, error) {
	backends := make([]display.Backend, 0, len(file.Backends))
	for _, name := range file.Backends {
		switch name {
		case backlight.BackendName:
			backends = append(backends, newBacklight())
		case ddc.BackendName:
			backends = append(backends, ddc.NewBackend(ddc.WithBuses(file.DDC.Buses...)))
		case hid.BackendName:
			backends = append(backends, hid.NewManager())
		default:
			for _, b := range backends {
				_ = b.Close()
			}
			return nil, fmt.Errorf("%w %q", display.ErrUnknownBackend, name)
		}
	}
	log.Debug().Strs("backends", file.Backends).Msg("Display backends loaded")
	return display.NewDriver(backends...), nil
}

func closeDriver(driver *display.Driver) {
	if err := driver.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close display driver")
	}
}

// newLocator uses fixed coordinates unless auto is set or none are given.
func newLocator(loc config.Location) daylight.Locator {
	if loc.Auto || (loc.Latitude == 0 && loc.Longitude == 0) {
		return daylight.IPLocator{}
	}
	return daylight.StaticLocator{Latitude: loc.Latitude, Longitude: loc.Longitude}
}

func newEngine(file *config.File, model *config.Model, driver engine.Driver) (*engine.Engine, error) {
	curve, err := ambient.NewCurve(file.Sensor.Curve, file.Sensor.Rate, file.Sensor.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid sensor curve: %w", err)
	}

	return engine.New(model, driver,
		engine.WithTimeSource(daylight.SunSource{Locator: newLocator(file.Location)}),
		engine.WithCurve(curve),
		engine.WithSampler(camera.NewOpener(file.Sensor.Device, file.Sensor.Width, file.Sensor.Height)),
		engine.WithInterval(file.Sensor.Interval),
	), nil
}

// engineFactory reloads the config file on every call.
func engineFactory(path string, driver engine.Driver) tray.EngineFactory {
	return func() (*engine.Engine, error) {
		file, model, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return newEngine(file, model, driver)
	}
}
