// Package transform implements the frame transforms shared by every visibility
// calculator: inertial (TEME) to Earth-fixed, geodetic to Earth-fixed, and
// Earth-fixed to topocentric horizon angles.
//
// TEME → ECEF is the simplified Vallado rotation using GMST only (TEME → PEF ≈ ECEF).
// Polar motion and the equation of the equinoxes are ignored; every calculator
// under test makes the same simplification, so cross-implementation results stay
// comparable.
//
// All lengths are kilometres and all velocities km/s.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EarthRadiusSphericalKm is the mean spherical Earth radius used only for
// reporting satellite altitude. Observer placement uses the WGS-84 ellipsoid.
const EarthRadiusSphericalKm = 6371.0

// PositionTEME represents a satellite position and velocity in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// Magnitude returns |r| in km.
func (p PositionTEME) Magnitude() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// TEMEToECEF transforms a TEME position/velocity to ECEF at the given UTC time.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle (radians).
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	xECEF := teme.X*cosG + teme.Y*sinG
	yECEF := -teme.X*sinG + teme.Y*cosG
	zECEF := teme.Z

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vxRot := teme.VX*cosG + teme.VY*sinG
	vyRot := -teme.VX*sinG + teme.VY*cosG

	return PositionECEF{
		X:  xECEF,
		Y:  yECEF,
		Z:  zECEF,
		VX: vxRot + OmegaEarth*yECEF,
		VY: vyRot - OmegaEarth*xECEF,
		VZ: teme.VZ,
	}
}

// Plausible orbit radii for an Earth-orbiting satellite, in km from the geocentre.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

var (
	// ErrNonFinite marks a state with a NaN or infinite component.
	ErrNonFinite = errors.New("state is NaN/Inf")
	// ErrImplausibleRadius marks a position outside the plausible orbit radii.
	ErrImplausibleRadius = errors.New("unreasonable position magnitude")
)

// CheckState rejects propagator output that no real orbit produces: any
// non-finite component, or a radius outside [MinOrbitRadiusKm, MaxOrbitRadiusKm].
// The Earth-fixed rotation preserves the radius, so the check holds in both frames.
func CheckState(p PositionTEME) error {
	for _, v := range [...]float64{p.X, p.Y, p.Z, p.VX, p.VY, p.VZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	if mag := p.Magnitude(); mag < MinOrbitRadiusKm || mag > MaxOrbitRadiusKm {
		return fmt.Errorf("%w %.1f km", ErrImplausibleRadius, mag)
	}
	return nil
}

// SatelliteAltitudeKm returns the satellite height above the spherical Earth.
func SatelliteAltitudeKm(teme PositionTEME) float64 {
	return teme.Magnitude() - EarthRadiusSphericalKm
}
