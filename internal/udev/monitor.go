// Package udev watches for display hot-plug: DRM connector changes and Apple
// Studio Display USB add/remove, delivered over netlink uevents.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// Hot-plug produces bursts of messages; 2MB avoids ENOBUFS for typical docks.
	netlinkBufferSize = 2 * 1024 * 1024

	// debounceWindow collapses the burst of events one physical plug produces.
	debounceWindow = 2 * time.Second

	// debounceRetention is how long debounce timestamps are kept.
	debounceRetention = time.Minute
)

const (
	// AppleVendorIDPattern matches the Apple vendor id in the udev PRODUCT
	// variable, with or without leading zero and in any case.
	AppleVendorIDPattern = "0?5[aA][cC]"

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID = "1114"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a Studio Display was connected.
	EventAdd EventType = iota
	// EventRemove indicates a Studio Display was disconnected.
	EventRemove
	// EventChange indicates a DRM connector changed state.
	EventChange
)

func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventRemove:
		return "remove"
	case EventChange:
		return "change"
	}
	return "unknown"
}

// Event represents a display hot-plug event.
type Event struct {
	Type   EventType
	Device string
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called after events may have been lost, e.g. on a
// netlink buffer overflow.
type RecoveryHandler func()

// Monitor watches for display hot-plug events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	lastSeen        map[string]time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:  handler,
		lastSeen: make(map[string]time.Time),
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring. Events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher matches Studio Display add/remove and DRM hotplug changes.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// PRODUCT is "vendorId/productId/bcdDevice", e.g. "5ac/1114/157".
	studio := map[string]string{
		"SUBSYSTEM": "^usb$",
		"PRODUCT":   fmt.Sprintf("^%s/%s/[^/]+$", AppleVendorIDPattern, StudioDisplayProductID),
	}
	for _, action := range []string{string(netlink.ADD), string(netlink.REMOVE)} {
		rules.AddRule(netlink.RuleDefinition{Action: &action, Env: studio})
	}

	change := string(netlink.CHANGE)
	rules.AddRule(netlink.RuleDefinition{
		Action: &change,
		Env: map[string]string{
			"SUBSYSTEM": "^drm$",
			"HOTPLUG":   "^1$",
		},
	})

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Events may have been dropped, so ask for a full re-apply.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize tries SO_RCVBUFFORCE (CAP_NET_ADMIN) and falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// go-udev does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounce reports whether key was seen within debounceWindow and
// records it. Old entries are pruned on the way.
func (m *Monitor) shouldDebounce(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, seen := range m.lastSeen {
		if now.Sub(seen) > debounceRetention {
			delete(m.lastSeen, k)
		}
	}

	if seen, ok := m.lastSeen[key]; ok && now.Sub(seen) < debounceWindow {
		return true
	}
	m.lastSeen[key] = now
	return false
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	var event Event
	switch uevent.Action {
	case netlink.ADD:
		// Interfaces of the display also announce themselves; only the device counts.
		if uevent.Env["DEVTYPE"] != "usb_device" {
			return
		}
		event = Event{Type: EventAdd, Device: uevent.Env["PRODUCT"]}
	case netlink.REMOVE:
		// DEVTYPE may be missing on remove, so every interface shows up; keep the first.
		product := uevent.Env["PRODUCT"]
		if m.shouldDebounce("remove:" + product) {
			return
		}
		event = Event{Type: EventRemove, Device: product}
	case netlink.CHANGE:
		if m.shouldDebounce("change:" + uevent.KObj) {
			return
		}
		event = Event{Type: EventChange, Device: uevent.KObj}
	default:
		return
	}

	log.Info().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("device", event.Device).
		Msg("Display hot-plug event")

	if m.handler != nil {
		m.handler(event)
	}
}
