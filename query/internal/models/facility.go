// Package models defines the facility read models served by the query
// service.
package models

import "time"

// Facility is a healthcare facility and its live state snapshot.
type Facility struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	FacilityType string  `json:"facility_type"`
	Address      string  `json:"address,omitempty"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`

	// Live state, updated by the out-of-scope write path.
	CapacityStatus      string   `json:"capacity_status"`
	AvgWaitMinutes      int      `json:"avg_wait_minutes"`
	UrgentCareAvailable bool     `json:"urgent_care_available"`
	Services            []string `json:"services,omitempty"`
	ServiceHealth       string   `json:"service_health,omitempty"`

	Wards []FacilityWard `json:"wards,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// FacilityWard is a ward or department within a facility.
type FacilityWard struct {
	ID                  string    `json:"id"`
	FacilityID          string    `json:"facility_id"`
	WardName            string    `json:"ward_name"`
	WardType            *string   `json:"ward_type,omitempty"`
	CapacityStatus      *string   `json:"capacity_status,omitempty"`
	AvgWaitMinutes      *int      `json:"avg_wait_minutes,omitempty"`
	UrgentCareAvailable *bool     `json:"urgent_care_available,omitempty"`
	LastUpdated         time.Time `json:"last_updated"`
}
