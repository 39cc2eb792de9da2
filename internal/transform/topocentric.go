package transform

import (
	"fmt"
	"math"
	"time"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ObserverPosition holds a ground observer's location in both geodetic and ECEF frames.
// ECEF coordinates are precomputed once so they can be reused across a whole time grid.
type ObserverPosition struct {
	LatRad, LonRad, AltKm float64 // geodetic (radians, km above ellipsoid)
	ECEFx, ECEFy, ECEFz   float64 // precomputed ECEF (km)

	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles holds azimuth, elevation, and range from observer to satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise, [0, 360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// ValidateGeodetic reports observer coordinates outside the accepted domain.
func ValidateGeodetic(latDeg, lonDeg float64) error {
	if math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90 {
		return fmt.Errorf("latitude %.6f outside [-90, 90]", latDeg)
	}
	if math.IsNaN(lonDeg) || lonDeg < -180 || lonDeg > 180 {
		return fmt.Errorf("longitude %.6f outside [-180, 180]", lonDeg)
	}
	return nil
}

// NewObserverPosition creates an ObserverPosition from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in km above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altKm float64) ObserverPosition {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEFx:  (N + altKm) * cosLat * cosLon,
		ECEFy:  (N + altKm) * cosLat * sinLon,
		ECEFz:  (N*(1-wgs84E2) + altKm) * sinLat,
		sinLat: sinLat,
		cosLat: cosLat,
		sinLon: sinLon,
		cosLon: cosLon,
	}
}

// ECEFToLookAngles computes azimuth, elevation, and range from an observer
// to a satellite given in ECEF km.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
// Elevation is taken from atan2 rather than asin so a near-zero range cannot
// push the argument outside [-1, 1].
func ECEFToLookAngles(obs ObserverPosition, sat PositionECEF) LookAngles {
	rx := sat.X - obs.ECEFx
	ry := sat.Y - obs.ECEFy
	rz := sat.Z - obs.ECEFz

	south := obs.sinLat*obs.cosLon*rx + obs.sinLat*obs.sinLon*ry - obs.cosLat*rz
	east := -obs.sinLon*rx + obs.cosLon*ry
	zenith := obs.cosLat*obs.cosLon*rx + obs.cosLat*obs.sinLon*ry + obs.sinLat*rz

	rangeMag := math.Sqrt(south*south + east*east + zenith*zenith)
	el := math.Atan2(zenith, math.Sqrt(south*south+east*east))

	// In SEZ, North = -South, so az = atan2(east, -south).
	return LookAngles{
		AzimuthDeg:   NormalizeAzimuth(math.Atan2(east, -south) * 180.0 / math.Pi),
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeMag,
	}
}

// NormalizeAzimuth folds any angle in degrees into [0, 360).
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	// -1e-15 + 360 rounds to exactly 360 in float64.
	if deg >= 360.0 {
		deg = 0
	}
	return deg
}

// Observe runs the full chain for one instant: GMST, TEME → ECEF, and the
// SEZ rotation for the given observer.
func Observe(teme PositionTEME, t time.Time, obs ObserverPosition) LookAngles {
	return ECEFToLookAngles(obs, TEMEToECEF(teme, t))
}
