// Package geofence checks GPS fixes against a unit's allowed zone.
package geofence

import (
	"fmt"
	"math"

	"ponto.service/internal/core/model"
)

const (
	// EarthRadiusMeters is the mean radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	toleranceRatio     = 0.2
	minToleranceMeters = 30.0
)

// Point is a GPS fix in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Finite reports whether both coordinates are real numbers inside the
// latitude and longitude ranges.
func (p Point) Finite() bool {
	return finite(p.Latitude) && finite(p.Longitude) &&
		math.Abs(p.Latitude) <= 90 && math.Abs(p.Longitude) <= 180
}

// Result is the outcome of a validation. DistanceMeters is nil when no
// geofence is configured.
type Result struct {
	Valid          bool   `json:"valid"`
	DistanceMeters *int64 `json:"distanceMeters,omitempty"`
	Message        string `json:"message"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Tolerance is the GPS error margin added on top of the allowed radius.
func Tolerance(radiusMeters float64) float64 {
	return math.Max(radiusMeters*toleranceRatio, minToleranceMeters)
}

// Validate reports whether current lies inside target. A target with any
// missing field always passes; a position that is not a finite fix fails.
func Validate(current Point, target model.GeofenceTarget) Result {
	if !configured(target.Latitude) || !configured(target.Longitude) || !configured(target.AllowedRadiusMeters) {
		return Result{Valid: true, Message: "no geofence configured"}
	}

	if !current.Finite() {
		return Result{Valid: false, Message: "invalid position"}
	}

	radius := *target.AllowedRadiusMeters
	d := Distance(current, Point{Latitude: *target.Latitude, Longitude: *target.Longitude})
	rounded := int64(math.Round(d))

	if d > radius+Tolerance(radius) {
		return Result{
			Valid:          false,
			DistanceMeters: &rounded,
			Message:        fmt.Sprintf("%dm from unit; must be within %sm", rounded, formatMeters(radius)),
		}
	}

	return Result{
		Valid:          true,
		DistanceMeters: &rounded,
		Message:        fmt.Sprintf("valid (%dm from unit)", rounded),
	}
}

func configured(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// maxExactMeters keeps integral radii printable as int64 without overflow.
const maxExactMeters = 1 << 53

func formatMeters(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) <= maxExactMeters {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
