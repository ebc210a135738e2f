// SPDX-License-Identifier: GPL-3.0-only

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/dimmer/internal/ambient"
	"github.com/shini4i/dimmer/internal/brightness"
	"github.com/shini4i/dimmer/internal/camera"
	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
)

// ErrDeviceUnavailable is returned when the sensor loop cannot open the camera.
var ErrDeviceUnavailable = camera.ErrDeviceUnavailable

// ErrNoSampler is returned when a sensor mode runs without a camera.
var ErrNoSampler = errors.New("no capture device configured")

// DefaultInterval paces the sensor loop when no interval is configured.
const DefaultInterval = 250 * time.Millisecond

// Engine runs one requested mode against a configuration and a driver.
type Engine struct {
	model    *config.Model
	driver   Driver
	times    daylight.Source
	curve    ambient.Curve
	open     camera.Opener
	interval time.Duration
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithTimeSource sets the sunrise/sunset source used by time based modes.
func WithTimeSource(source daylight.Source) Option {
	return func(e *Engine) {
		e.times = source
	}
}

// WithCurve sets the ambient light mapping of the sensor loop.
func WithCurve(curve ambient.Curve) Option {
	return func(e *Engine) {
		e.curve = curve
	}
}

// WithSampler sets how the sensor loop opens the camera.
func WithSampler(open camera.Opener) Option {
	return func(e *Engine) {
		e.open = open
	}
}

// WithInterval sets the minimum time between two sensor samples.
func WithInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.interval = interval
	}
}

// New creates an engine. The model must not be modified afterwards.
func New(model *config.Model, driver Driver, opts ...Option) *Engine {
	e := &Engine{
		model:    model,
		driver:   driver,
		curve:    ambient.Linear{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve gathers the readings mode needs and selects a target.
// Only toggle reads the hardware and only time based modes query the time source.
func (e *Engine) Resolve(ctx context.Context, mode Mode) (Target, error) {
	var in Inputs

	switch mode.Kind {
	case KindToggle:
		current, err := e.driver.GetBrightness()
		if err != nil {
			if len(current) == 0 {
				return Target{}, fmt.Errorf("%w: failed to read brightness: %w", ErrDriver, err)
			}
			// Unreadable displays count as matching neither profile.
			log.Warn().Err(err).Int("read", len(current)).Msg("Some displays could not be read")
		}
		in.Current = current
	case KindTime:
		if mode.DeltaMinutes < 0 {
			return Target{}, fmt.Errorf("%w: got %d", daylight.ErrInvalidDelta, mode.DeltaMinutes)
		}
		if e.times == nil {
			return Target{}, ErrNoTimeSource
		}
		window, err := e.times.Times(ctx)
		if err != nil {
			return Target{}, fmt.Errorf("failed to get sunrise/sunset times: %w", err)
		}
		in.Window = window
	}

	return Select(e.model, mode, in)
}

// Run executes mode once. Sensor modes block until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, mode Mode) (Target, error) {
	if mode.Kind == KindSensor {
		return Target{}, e.RunSensor(ctx)
	}

	target, err := e.Resolve(ctx, mode)
	if err != nil {
		return Target{}, err
	}

	log.Info().Str("mode", mode.String()).Str("target", target.String()).Msg("Applying brightness")
	return target, Apply(e.model, e.model.Displays(), target, e.driver)
}

// RunSensor samples the camera, maps each sample through the curve and
// applies the result to every configured display until ctx is cancelled.
// Sample and apply errors are logged and the next sample is taken. The
// camera is closed on every return path.
func (e *Engine) RunSensor(ctx context.Context) error {
	if e.open == nil {
		return ErrNoSampler
	}

	sampler, err := e.open()
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		return err
	}
	defer func() {
		if err := sampler.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close capture device")
		}
	}()

	interval := e.interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	displays := e.model.Displays()
	last := -1

	log.Info().Dur("interval", interval).Int("displays", len(displays)).Msg("Sensor loop started")
	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Info().Msg("Sensor loop stopped")
			return nil
		}

		sample, err := sampler.Sample()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to capture sample")
			continue
		}

		percent := brightness.RoundPercent(e.curve.Map(sample))
		if percent == last {
			continue
		}

		log.Debug().Float64("sample", sample).Int("brightness", percent).Msg("Ambient light sampled")
		if err := Apply(e.model, displays, LiteralTarget(percent), e.driver); err != nil {
			log.Warn().Err(err).Msg("Failed to apply ambient brightness")
			continue
		}
		last = percent
	}
}
