// Package alert delivers human-readable failure notifications. The sink
// is fire-and-forget: a notification that cannot be delivered is logged
// locally and never escalates into the caller's error path.
package alert

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier is the alert sink contract. Notify must never block the
// caller on sink availability and must never return an error.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Nop is a Notifier that discards everything. Used in tests and when no
// sink is configured.
type Nop struct{}

// Notify discards the notification.
func (Nop) Notify(Severity, string) {}
