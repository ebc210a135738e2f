package engine

//go:generate mockgen -source=driver.go -destination=mocks/driver_mock.go -package=mocks

// Driver reads and sets per-display brightness percentages.
type Driver interface {
	// GetBrightness returns the current percentage of every known display.
	GetBrightness() (map[string]int, error)

	// SetBrightness sets one display to percent (0-100).
	SetBrightness(display string, percent int) error
}
