package tray

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/dimmer/internal/engine"
)

// EngineFactory builds an engine from freshly loaded configuration.
type EngineFactory func() (*engine.Engine, error)

// Dispatcher runs presets one at a time. The webcam preset keeps running in
// the background until the next trigger or Stop.
type Dispatcher struct {
	mu      sync.Mutex
	build   EngineFactory
	delta   int
	cancel  context.CancelFunc
	done    chan struct{}
	last    Preset
	hasLast bool
}

// NewDispatcher creates a dispatcher. deltaMinutes is used by the time based preset.
func NewDispatcher(build EngineFactory, deltaMinutes int) *Dispatcher {
	return &Dispatcher{build: build, delta: deltaMinutes}
}

// Trigger runs preset and returns the target it applied. Webcam returns as soon
// as the sensor loop is started.
func (d *Dispatcher) Trigger(ctx context.Context, preset Preset) (engine.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	if preset == PresetQuit {
		return engine.Target{}, ErrQuit
	}
	mode, ok := preset.Mode(d.delta)
	if !ok {
		return engine.Target{}, ErrUnknownPreset
	}

	eng, err := d.build()
	if err != nil {
		return engine.Target{}, err
	}
	d.last, d.hasLast = preset, true

	if mode.Kind == engine.KindSensor {
		d.startSensorLocked(ctx, eng)
		return engine.Target{}, nil
	}

	target, err := eng.Run(ctx, mode)
	if err != nil {
		return target, err
	}
	log.Info().Str("preset", string(preset)).Str("target", target.String()).Msg("Preset applied")
	return target, nil
}

// SetLevel applies a profile name or a literal percentage. It stops the
// sensor loop but does not replace the remembered preset.
func (d *Dispatcher) SetLevel(ctx context.Context, level string) (engine.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	eng, err := d.build()
	if err != nil {
		return engine.Target{}, err
	}
	return eng.Run(ctx, engine.Level(level))
}

// Reapply triggers the last preset again. It does nothing before the first
// trigger or while the sensor loop is running.
func (d *Dispatcher) Reapply(ctx context.Context) error {
	d.mu.Lock()
	last, hasLast, sensing := d.last, d.hasLast, d.sensingLocked()
	d.mu.Unlock()

	if !hasLast || sensing {
		return nil
	}
	_, err := d.Trigger(ctx, last)
	return err
}

// Last returns the most recently triggered preset.
func (d *Dispatcher) Last() (Preset, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Sensing reports whether the webcam loop is running.
func (d *Dispatcher) Sensing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensingLocked()
}

// Stop ends the webcam loop, if any, and waits for it to close the device.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Dispatcher) startSensorLocked(ctx context.Context, eng *engine.Engine) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	d.cancel, d.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		if err := eng.RunSensor(runCtx); err != nil {
			log.Error().Err(err).Msg("Webcam preset stopped")
		}
	}()
	log.Info().Str("preset", string(PresetWebcam)).Msg("Webcam preset started")
}

func (d *Dispatcher) sensingLocked() bool {
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *Dispatcher) stopLocked() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel, d.done = nil, nil
}
