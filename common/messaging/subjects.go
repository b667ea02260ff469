package messaging

import "strings"

// Channel constants for the pulse message bus.
// Follow the pattern: {domain}.{resource}.{scope}
const (
	// SubjectFacilityEventsAll is the catch-all channel carrying every
	// facility change event. The cache invalidator and region-scoped
	// streams subscribe here.
	SubjectFacilityEventsAll = "facility.events.all"

	// subjectFacilityEventsPrefix prefixes per-facility channels.
	// Append the facility ID for a specific facility's events.
	subjectFacilityEventsPrefix = "facility.events.id."
)

// FacilityEventSubject returns the channel for a single facility's events.
// Example: facility.events.id.fac-7f3a
func FacilityEventSubject(facilityID string) string {
	return subjectFacilityEventsPrefix + facilityID
}

// IsFacilityEventSubject reports whether subject names a per-facility channel.
func IsFacilityEventSubject(subject string) bool {
	return strings.HasPrefix(subject, subjectFacilityEventsPrefix)
}

// FacilityIDFromSubject extracts the facility ID from a per-facility channel
// name. Returns empty string when subject is not a per-facility channel.
func FacilityIDFromSubject(subject string) string {
	if !IsFacilityEventSubject(subject) {
		return ""
	}
	return strings.TrimPrefix(subject, subjectFacilityEventsPrefix)
}
