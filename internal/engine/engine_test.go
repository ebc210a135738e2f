package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shini4i/dimmer/internal/ambient"
	"github.com/shini4i/dimmer/internal/camera"
	"github.com/shini4i/dimmer/internal/config"
	"github.com/shini4i/dimmer/internal/daylight"
	"github.com/shini4i/dimmer/internal/display"
	"github.com/shini4i/dimmer/internal/engine"
	"github.com/shini4i/dimmer/internal/engine/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// memoryDriver remembers the last value set per display.
type memoryDriver struct {
	mu     sync.Mutex
	values map[string]int
	failOn string
}

func newMemoryDriver() *memoryDriver {
	return &memoryDriver{values: map[string]int{}}
}

func (d *memoryDriver) GetBrightness() (map[string]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]int, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out, nil
}

func (d *memoryDriver) SetBrightness(display string, percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if display == d.failOn {
		return errors.New("i2c write failed")
	}
	d.values[display] = percent
	return nil
}

type fixedTimes struct {
	window daylight.Window
	err    error
	calls  int
}

func (f *fixedTimes) Times(context.Context) (daylight.Window, error) {
	f.calls++
	return f.window, f.err
}

func sunAt(hour int) *fixedTimes {
	return &fixedTimes{window: daylight.Window{Now: clock(hour), Sunrise: clock(6), Sunset: clock(18)}}
}

func TestApply_Literal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().SetBrightness("A", 75).Return(nil)
	driver.EXPECT().SetBrightness("B", 75).Return(nil)

	err := engine.Apply(testModel(t), []string{"A", "B"}, engine.LiteralTarget(75), driver)
	require.NoError(t, err)
}

func TestApply_Profile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().SetBrightness("A", 50).Return(nil)
	driver.EXPECT().SetBrightness("B", 60).Return(nil)

	err := engine.Apply(testModel(t), []string{"A", "B"}, engine.ProfileTarget("default"), driver)
	require.NoError(t, err)
}

func TestApply_MissingDisplayContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().SetBrightness("A", 90).Return(nil)
	driver.EXPECT().SetBrightness("B", 90).Return(nil)

	err := engine.Apply(testModel(t), []string{"A", "C", "B"}, engine.ProfileTarget("max"), driver)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrMissingDisplay)
	assert.Contains(t, err.Error(), "C")
}

func TestApply_DriverErrorContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	gomock.InOrder(
		driver.EXPECT().SetBrightness("A", 10).Return(errors.New("device gone")),
		driver.EXPECT().SetBrightness("B", 10).Return(nil),
	)

	err := engine.Apply(testModel(t), []string{"A", "B"}, engine.ProfileTarget("min"), driver)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDriver)
	assert.Contains(t, err.Error(), "device gone")
}

func TestApply_UnknownProfileMakesNoCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)

	err := engine.Apply(testModel(t), []string{"A", "B"}, engine.ProfileTarget("bogus"), driver)
	assert.ErrorIs(t, err, engine.ErrUnknownLevel)
}

func TestApply_LiteralIsIdempotent(t *testing.T) {
	driver := newMemoryDriver()
	model := testModel(t)

	require.NoError(t, engine.Apply(model, model.Displays(), engine.LiteralTarget(33), driver))
	first, err := driver.GetBrightness()
	require.NoError(t, err)

	require.NoError(t, engine.Apply(model, model.Displays(), engine.LiteralTarget(33), driver))
	second, err := driver.GetBrightness()
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 33, "B": 33}, first)
	assert.Equal(t, first, second)
}

func TestEngine_Run_TimeBasedScenarios(t *testing.T) {
	tests := []struct {
		name     string
		hour     int
		expected map[string]int
		profile  string
	}{
		{name: "noon selects max", hour: 12, expected: map[string]int{"A": 90, "B": 90}, profile: "max"},
		{name: "five in the morning selects min", hour: 5, expected: map[string]int{"A": 10, "B": 10}, profile: "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := config.NewModel(map[string]map[string]int{
				"min": {"A": 10, "B": 10},
				"max": {"A": 90, "B": 90},
			})
			require.NoError(t, err)

			driver := newMemoryDriver()
			e := engine.New(model, driver, engine.WithTimeSource(sunAt(tt.hour)))

			target, err := e.Run(context.Background(), engine.TimeBased(0))
			require.NoError(t, err)
			assert.Equal(t, tt.profile, target.Profile())

			values, _ := driver.GetBrightness()
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestEngine_Run_LiteralLevel(t *testing.T) {
	driver := newMemoryDriver()
	e := engine.New(testModel(t), driver)

	target, err := e.Run(context.Background(), engine.Level("75"))
	require.NoError(t, err)
	assert.True(t, target.IsLiteral())

	values, _ := driver.GetBrightness()
	assert.Equal(t, map[string]int{"A": 75, "B": 75}, values)
}

func TestEngine_Run_UnknownLevelMakesNoDriverCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	e := engine.New(testModel(t), driver)

	_, err := e.Run(context.Background(), engine.Level("bogus"))
	assert.ErrorIs(t, err, engine.ErrUnknownLevel)
}

func TestEngine_Run_Toggle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().GetBrightness().Return(map[string]int{"B": 90, "A": 90}, nil)
	driver.EXPECT().SetBrightness("A", 10).Return(nil)
	driver.EXPECT().SetBrightness("B", 10).Return(nil)

	target, err := engine.New(testModel(t), driver).Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "min", target.Profile())
}

func TestEngine_Run_ToggleRoundTrip(t *testing.T) {
	driver := newMemoryDriver()
	e := engine.New(testModel(t), driver)

	target, err := e.Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "max", target.Profile())

	target, err = e.Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "min", target.Profile())

	target, err = e.Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "max", target.Profile())
}

func TestEngine_Run_ToggleReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().GetBrightness().Return(nil, errors.New("bus busy"))

	_, err := engine.New(testModel(t), driver).Run(context.Background(), engine.Toggle())
	assert.ErrorIs(t, err, engine.ErrDriver)
}

// readOnlyBackend serves fixed readings; names listed in unreadable fail.
type readOnlyBackend struct {
	name       string
	values     map[string]int
	unreadable []string
	set        map[string]int
}

func (b *readOnlyBackend) Name() string { return b.name }

func (b *readOnlyBackend) Displays() ([]string, error) {
	names := append([]string(nil), b.unreadable...)
	for n := range b.values {
		names = append(names, n)
	}
	return names, nil
}

func (b *readOnlyBackend) Brightness(name string) (int, error) {
	if v, ok := b.values[name]; ok {
		return v, nil
	}
	return 0, errors.New("no DDC/CI reply")
}

func (b *readOnlyBackend) SetBrightness(name string, percent int) error {
	if b.set == nil {
		b.set = map[string]int{}
	}
	b.set[name] = percent
	return nil
}

func (b *readOnlyBackend) Close() error { return nil }

func TestEngine_Run_ToggleIgnoresUnconfiguredReadErrors(t *testing.T) {
	model, err := config.NewModel(map[string]map[string]int{
		"min": {"backlight/A": 10},
		"max": {"backlight/A": 90},
	})
	require.NoError(t, err)

	panel := &readOnlyBackend{name: "backlight", values: map[string]int{"A": 90}}
	monitors := &readOnlyBackend{name: "ddc", unreadable: []string{"5"}}
	driver := display.NewDriver(panel, monitors)

	target, err := engine.New(model, driver).Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "min", target.Profile())
	assert.Equal(t, map[string]int{"A": 10}, panel.set)
	assert.Empty(t, monitors.set)
}

func TestEngine_Run_ToggleUnreadableConfiguredDisplay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().GetBrightness().Return(map[string]int{"A": 90}, errors.New("B: bus busy"))
	driver.EXPECT().SetBrightness("A", 90).Return(nil)
	driver.EXPECT().SetBrightness("B", 90).Return(nil)

	target, err := engine.New(testModel(t), driver).Run(context.Background(), engine.Toggle())
	require.NoError(t, err)
	assert.Equal(t, "max", target.Profile())
}

func TestEngine_Run_TimeBasedErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)

	times := sunAt(12)
	_, err := engine.New(testModel(t), driver, engine.WithTimeSource(times)).Run(context.Background(), engine.TimeBased(-5))
	assert.ErrorIs(t, err, daylight.ErrInvalidDelta)
	assert.Equal(t, 0, times.calls)

	_, err = engine.New(testModel(t), driver).Run(context.Background(), engine.TimeBased(20))
	assert.ErrorIs(t, err, engine.ErrNoTimeSource)

	failing := &fixedTimes{err: daylight.ErrNoSunEvents}
	_, err = engine.New(testModel(t), driver, engine.WithTimeSource(failing)).Run(context.Background(), engine.TimeBased(20))
	assert.ErrorIs(t, err, daylight.ErrNoSunEvents)
}

// scriptedSampler replays samples and cancels the loop once drained.
type scriptedSampler struct {
	samples []float64
	errs    map[int]error
	next    int
	cancel  context.CancelFunc
	closed  bool
}

func (s *scriptedSampler) Sample() (float64, error) {
	i := s.next
	s.next++
	if i >= len(s.samples) {
		s.cancel()
		return 0, errors.New("drained")
	}
	if err := s.errs[i]; err != nil {
		return 0, err
	}
	return s.samples[i], nil
}

func (s *scriptedSampler) Close() error {
	s.closed = true
	return nil
}

func TestEngine_RunSensor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sampler := &scriptedSampler{
		samples: []float64{0, 255, 255, 0, 127.5},
		errs:    map[int]error{3: camera.ErrFrameTimeout},
		cancel:  cancel,
	}

	driver := mocks.NewMockDriver(ctrl)
	gomock.InOrder(
		driver.EXPECT().SetBrightness("A", 0).Return(nil),
		driver.EXPECT().SetBrightness("B", 0).Return(nil),
		driver.EXPECT().SetBrightness("A", 100).Return(nil),
		driver.EXPECT().SetBrightness("B", 100).Return(nil),
		driver.EXPECT().SetBrightness("A", 50).Return(nil),
		driver.EXPECT().SetBrightness("B", 50).Return(nil),
	)

	e := engine.New(testModel(t), driver,
		engine.WithSampler(func() (camera.Sampler, error) { return sampler, nil }),
		engine.WithInterval(time.Millisecond),
	)

	_, err := e.Run(ctx, engine.Sensor())
	require.NoError(t, err)
	assert.True(t, sampler.closed)
	assert.Equal(t, 6, sampler.next)
}

func TestEngine_RunSensor_RetriesAfterApplyFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sampler := &scriptedSampler{samples: []float64{255, 255}, cancel: cancel}
	driver := newMemoryDriver()
	driver.failOn = "B"

	e := engine.New(testModel(t), driver,
		engine.WithSampler(func() (camera.Sampler, error) { return sampler, nil }),
		engine.WithInterval(time.Millisecond),
	)

	require.NoError(t, e.RunSensor(ctx))
	values, _ := driver.GetBrightness()
	assert.Equal(t, map[string]int{"A": 100}, values)
	assert.True(t, sampler.closed)
}

func TestEngine_RunSensor_PlateauCurve(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sampler := &scriptedSampler{samples: []float64{255}, cancel: cancel}
	driver := newMemoryDriver()

	curve, err := ambient.NewCurve(ambient.CurvePlateau, 0, "")
	require.NoError(t, err)

	e := engine.New(testModel(t), driver,
		engine.WithCurve(curve),
		engine.WithSampler(func() (camera.Sampler, error) { return sampler, nil }),
		engine.WithInterval(time.Millisecond),
	)

	require.NoError(t, e.RunSensor(ctx))
	values, _ := driver.GetBrightness()
	assert.Equal(t, map[string]int{"A": 98, "B": 98}, values)
}

func TestEngine_RunSensor_DeviceUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := mocks.NewMockDriver(ctrl)

	e := engine.New(testModel(t), driver, engine.WithSampler(func() (camera.Sampler, error) {
		return nil, errors.New("no such device")
	}))

	err := e.RunSensor(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "no such device")
}

func TestEngine_RunSensor_NoSampler(t *testing.T) {
	err := engine.New(testModel(t), newMemoryDriver()).RunSensor(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoSampler)
}

func TestEngine_RunSensor_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sampler := &scriptedSampler{samples: []float64{100}, cancel: cancel}
	e := engine.New(testModel(t), newMemoryDriver(),
		engine.WithSampler(func() (camera.Sampler, error) { return sampler, nil }),
	)

	require.NoError(t, e.RunSensor(ctx))
	assert.Equal(t, 0, sampler.next)
	assert.True(t, sampler.closed)
}
