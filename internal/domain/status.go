package domain

// Status represents the operational status of a service.
type Status string

// Service statuses. The wire values match the persisted status.json format.
const (
	StatusResolved Status = "resolved"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusAtRisk   Status = "at risk"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusResolved, StatusDegraded, StatusDown, StatusAtRisk:
		return true
	}
	return false
}

// Emoji returns the display emoji for the status.
func (s Status) Emoji() string {
	switch s {
	case StatusResolved:
		return "✅"
	case StatusDegraded:
		return "☢️"
	case StatusDown:
		return "⛔️"
	case StatusAtRisk:
		return "⚠️"
	}
	return "⚠️"
}

// AllStatuses lists every valid status in display order.
func AllStatuses() []Status {
	return []Status{StatusResolved, StatusDegraded, StatusDown, StatusAtRisk}
}
