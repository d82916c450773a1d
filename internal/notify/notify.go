// Package notify sends desktop notifications when a simulation run finishes.
// Bakes often take minutes, so the notification lets the user switch away
// from the terminal while Blender works.
package notify

import "time"

// Kind is the outcome a notification reports.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// OutputType selects how a notification is delivered.
type OutputType string

const (
	OutputSound  OutputType = "sound"
	OutputVisual OutputType = "visual"
	OutputBoth   OutputType = "both"
)

// ValidOutputType reports whether s names a delivery type.
func ValidOutputType(s string) bool {
	switch OutputType(s) {
	case OutputSound, OutputVisual, OutputBoth:
		return true
	default:
		return false
	}
}

// Config holds the notification preferences.
type Config struct {
	// Enabled is the master switch. Notifications are opt-in.
	Enabled   bool
	Type      OutputType
	SoundFile string

	OnSuccess bool
	OnFailure bool

	// MinDuration suppresses notifications for runs shorter than this.
	// Zero or negative always notifies.
	MinDuration time.Duration
}

// DefaultConfig returns the preferences used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Type:        OutputBoth,
		OnSuccess:   true,
		OnFailure:   true,
		MinDuration: 30 * time.Second,
	}
}

// Notification is a single message to dispatch.
type Notification struct {
	Title   string
	Message string
	Kind    Kind
}
