package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFacilityEventSubject(t *testing.T) {
	assert.Equal(t, "facility.events.id.fac-7f3a", FacilityEventSubject("fac-7f3a"))
}

func TestIsFacilityEventSubject(t *testing.T) {
	assert.True(t, IsFacilityEventSubject("facility.events.id.fac-1"))
	assert.False(t, IsFacilityEventSubject(SubjectFacilityEventsAll))
	assert.False(t, IsFacilityEventSubject("facility.events"))
	assert.False(t, IsFacilityEventSubject(""))
}

func TestFacilityIDFromSubject(t *testing.T) {
	assert.Equal(t, "fac-1", FacilityIDFromSubject("facility.events.id.fac-1"))
	assert.Equal(t, "", FacilityIDFromSubject(SubjectFacilityEventsAll))
	assert.Equal(t, "", FacilityIDFromSubject("unrelated.subject"))
}
