// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the brightness presets as a session bus service.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/dimmer/internal/engine"
	"github.com/shini4i/dimmer/internal/tray"
)

// ErrEmptyLevel is returned when SetLevel is called with an empty level.
var ErrEmptyLevel = errors.New("level cannot be empty")

// ErrRateLimitExceeded is returned when requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// rateLimitPerSecond is the maximum number of applied presets per second.
	rateLimitPerSecond = 5

	// rateLimitBurst is the maximum burst size for applied presets.
	rateLimitBurst = 3
)

const (
	ServiceName   = "io.github.shini4i.Dimmer"
	ObjectPath    = "/io/github/shini4i/Dimmer"
	InterfaceName = "io.github.shini4i.Dimmer"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="ListPresets">
      <arg name="presets" type="as" direction="out"/>
    </method>
    <method name="Trigger">
      <arg name="preset" type="s" direction="in"/>
      <arg name="id" type="s" direction="out"/>
    </method>
    <method name="SetLevel">
      <arg name="level" type="s" direction="in"/>
      <arg name="id" type="s" direction="out"/>
    </method>
    <method name="GetBrightness">
      <arg name="brightness" type="a{su}" direction="out"/>
    </method>
    <signal name="PresetApplied">
      <arg name="preset" type="s"/>
      <arg name="id" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Controller runs presets and reads displays. This allows for mocking in tests.
type Controller interface {
	Trigger(ctx context.Context, preset tray.Preset) (engine.Target, error)
	SetLevel(ctx context.Context, level string) (engine.Target, error)
	GetBrightness() (map[string]int, error)
}

// QuitHandler is called when the Quit preset is triggered over the bus.
type QuitHandler func()

// Server implements the D-Bus preset service.
type Server struct {
	ctx         context.Context
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	controller  Controller
	rateLimiter *rate.Limiter
	handlerMu   sync.RWMutex // Protects quitHandler
	quitHandler QuitHandler
}

// NewServer creates a server. ctx bounds every preset run by the server.
func NewServer(ctx context.Context, controller Controller) *Server {
	return &Server{
		ctx:         ctx,
		controller:  controller,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SetQuitHandler sets the callback invoked when Quit is triggered.
func (s *Server) SetQuitHandler(handler QuitHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.quitHandler = handler
}

// ListPresets returns the preset names in menu order.
func (s *Server) ListPresets() ([]string, *dbus.Error) {
	presets := tray.Presets()
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = string(p)
	}
	return names, nil
}

// Trigger runs a preset and returns the correlation id of the run.
func (s *Server) Trigger(name string) (string, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for Trigger")
		return "", dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	preset, err := tray.ParsePreset(name)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}

	id := uuid.NewString()
	logger := log.With().Str("id", id).Str("preset", name).Logger()

	_, err = s.controller.Trigger(s.ctx, preset)
	if errors.Is(err, tray.ErrQuit) {
		logger.Info().Msg("Quit requested over D-Bus")
		s.handlerMu.RLock()
		handler := s.quitHandler
		s.handlerMu.RUnlock()
		if handler != nil {
			go handler()
		}
		return id, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to trigger preset")
		return "", dbus.MakeFailedError(err)
	}

	logger.Debug().Msg("Triggered preset")
	s.emitPresetApplied(name, id)
	return id, nil
}

// SetLevel applies a profile name or a literal percentage.
func (s *Server) SetLevel(level string) (string, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetLevel")
		return "", dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if level == "" {
		return "", dbus.MakeFailedError(ErrEmptyLevel)
	}

	id := uuid.NewString()
	target, err := s.controller.SetLevel(s.ctx, level)
	if err != nil {
		log.Error().Err(err).Str("id", id).Str("level", level).Msg("Failed to set level")
		return "", dbus.MakeFailedError(err)
	}

	log.Debug().Str("id", id).Str("target", target.String()).Msg("Set level")
	s.emitPresetApplied(level, id)
	return id, nil
}

// GetBrightness returns the brightness of every readable display by id.
// Displays that fail to read are logged and left out.
func (s *Server) GetBrightness() (map[string]uint32, *dbus.Error) {
	values, err := s.controller.GetBrightness()
	if err != nil {
		log.Warn().Err(err).Msg("Some displays could not be read")
		if len(values) == 0 {
			return nil, dbus.MakeFailedError(err)
		}
	}

	result := make(map[string]uint32, len(values))
	for id, percent := range values {
		result[id] = uint32(max(percent, 0))
	}
	return result, nil
}

func (s *Server) emitPresetApplied(preset, id string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+".PresetApplied", preset, id); err != nil {
		log.Error().Err(err).Msg("Failed to emit PresetApplied signal")
	}
}
