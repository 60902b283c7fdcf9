package geofence

import "time"

// Geofence is a circular campus boundary.
type Geofence struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       *string    `json:"description,omitempty"`
	Latitude          float64    `json:"latitude"`
	Longitude         float64    `json:"longitude"`
	RadiusMeters      float64    `json:"radius_meters"`
	AccuracyThreshold float64    `json:"accuracy_threshold"`
	IsActive          bool       `json:"is_active"`
	IsPrimary         bool       `json:"is_primary"`
	CreatedBy         *string    `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"-"`
}

func (g Geofence) Center() Point {
	return Point{Latitude: g.Latitude, Longitude: g.Longitude}
}

const (
	DefaultRadiusMeters      = 500
	DefaultAccuracyThreshold = 50
)

// Input is the admin create payload. Zero radius and accuracy take defaults.
type Input struct {
	Name              string  `json:"name" validate:"required,max=100"`
	Description       *string `json:"description"`
	Latitude          float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude         float64 `json:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters      float64 `json:"radius_meters" validate:"omitempty,gte=10,lte=10000"`
	AccuracyThreshold float64 `json:"accuracy_threshold" validate:"omitempty,gte=5,lte=1000"`
	IsPrimary         bool    `json:"is_primary"`
}

// Patch holds the fields an update may change.
type Patch struct {
	Name              *string  `json:"name" validate:"omitnil,min=1,max=100"`
	Description       *string  `json:"description"`
	Latitude          *float64 `json:"latitude" validate:"omitnil,gte=-90,lte=90"`
	Longitude         *float64 `json:"longitude" validate:"omitnil,gte=-180,lte=180"`
	RadiusMeters      *float64 `json:"radius_meters" validate:"omitnil,gte=10,lte=10000"`
	AccuracyThreshold *float64 `json:"accuracy_threshold" validate:"omitnil,gte=5,lte=1000"`
	IsActive          *bool    `json:"is_active"`
	IsPrimary         *bool    `json:"is_primary"`
}
