// Package store implements the source-of-truth tier over Postgres. The
// query service only reads from it; facility writes are owned by the
// booking platform's write path.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careatlas-systems/pulse/query/internal/models"
)

// ErrNotFound reports that no facility exists with the requested ID.
var ErrNotFound = errors.New("store: facility not found")

// PostgresStore reads facilities from the source-of-truth database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// GetFacility returns one facility with its wards.
func (s *PostgresStore) GetFacility(ctx context.Context, id string) (*models.Facility, error) {
	q := `SELECT id, name, facility_type, address, city, state,
	             latitude, longitude, capacity_status, avg_wait_minutes,
	             urgent_care_available, services, service_health,
	             last_updated, created_at
	      FROM facilities
	      WHERE id = $1`

	var f models.Facility
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&f.ID, &f.Name, &f.FacilityType, &f.Address, &f.City, &f.State,
		&f.Latitude, &f.Longitude, &f.CapacityStatus, &f.AvgWaitMinutes,
		&f.UrgentCareAvailable, &f.Services, &f.ServiceHealth,
		&f.LastUpdated, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get facility: %w", err)
	}

	wards, err := s.facilityWards(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Wards = wards
	return &f, nil
}

func (s *PostgresStore) facilityWards(ctx context.Context, facilityID string) ([]models.FacilityWard, error) {
	q := `SELECT id, facility_id, ward_name, ward_type, capacity_status,
	             avg_wait_minutes, urgent_care_available, last_updated
	      FROM facility_wards
	      WHERE facility_id = $1
	      ORDER BY ward_name`

	rows, err := s.pool.Query(ctx, q, facilityID)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()

	var wards []models.FacilityWard
	for rows.Next() {
		var w models.FacilityWard
		if err := rows.Scan(
			&w.ID, &w.FacilityID, &w.WardName, &w.WardType, &w.CapacityStatus,
			&w.AvgWaitMinutes, &w.UrgentCareAvailable, &w.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		wards = append(wards, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wards: %w", err)
	}
	return wards, nil
}

// SearchFacilities answers a search directly from Postgres. This is the
// degraded-mode fallback when the search index is unavailable: correct but
// slower, with a coarse bounding-box approximation of the geo constraint.
func (s *PostgresStore) SearchFacilities(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	p := params.Normalize()

	q := `SELECT id, name, facility_type, address, city, state,
	             latitude, longitude, capacity_status, avg_wait_minutes,
	             urgent_care_available, services, service_health,
	             last_updated, created_at
	      FROM facilities
	      WHERE 1=1`
	args := []any{}

	if p.Query != "" {
		args = append(args, "%"+p.Query+"%")
		q += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if p.City != "" {
		args = append(args, p.City)
		q += fmt.Sprintf(" AND LOWER(city) = $%d", len(args))
	}
	if p.Service != "" {
		args = append(args, p.Service)
		q += fmt.Sprintf(" AND $%d = ANY(services)", len(args))
	}
	if p.CapacityStatus != "" {
		args = append(args, p.CapacityStatus)
		q += fmt.Sprintf(" AND capacity_status = $%d", len(args))
	}
	if p.Latitude != nil && p.Longitude != nil {
		// ~111km per degree of latitude; good enough for a fallback.
		latDelta := p.RadiusKm / 111.0
		lonDelta := p.RadiusKm / 111.0
		args = append(args, *p.Latitude-latDelta, *p.Latitude+latDelta)
		q += fmt.Sprintf(" AND latitude BETWEEN $%d AND $%d", len(args)-1, len(args))
		args = append(args, *p.Longitude-lonDelta, *p.Longitude+lonDelta)
		q += fmt.Sprintf(" AND longitude BETWEEN $%d AND $%d", len(args)-1, len(args))
	}

	args = append(args, p.Limit)
	q += fmt.Sprintf(" ORDER BY name LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search facilities: %w", err)
	}
	defer rows.Close()

	var facilities []models.Facility
	for rows.Next() {
		var f models.Facility
		if err := rows.Scan(
			&f.ID, &f.Name, &f.FacilityType, &f.Address, &f.City, &f.State,
			&f.Latitude, &f.Longitude, &f.CapacityStatus, &f.AvgWaitMinutes,
			&f.UrgentCareAvailable, &f.Services, &f.ServiceHealth,
			&f.LastUpdated, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facilities: %w", err)
	}

	return &models.SearchResult{Facilities: facilities, Total: len(facilities)}, nil
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
