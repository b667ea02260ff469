package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService    = "service"
	FieldFacilityID = "facility_id"
	FieldWardID     = "ward_id"
	FieldEventID    = "event_id"
	FieldEventType  = "event_type"
	FieldChannel    = "channel"
	FieldCacheKey   = "cache_key"
	FieldTier       = "tier"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// FacilityID returns a slog attribute for the facility identifier.
func FacilityID(id string) slog.Attr {
	return slog.String(FieldFacilityID, id)
}

// WardID returns a slog attribute for the ward identifier.
func WardID(id string) slog.Attr {
	return slog.String(FieldWardID, id)
}

// EventID returns a slog attribute for the change event identifier.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for the change event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Channel returns a slog attribute for the pub/sub channel name.
func Channel(c string) slog.Attr {
	return slog.String(FieldChannel, c)
}

// CacheKey returns a slog attribute for a cache key.
func CacheKey(k string) slog.Attr {
	return slog.String(FieldCacheKey, k)
}

// Tier returns a slog attribute for the read-path tier (cache, index, store).
func Tier(t string) slog.Attr {
	return slog.String(FieldTier, t)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
