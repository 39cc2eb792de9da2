package transform

import (
	"math"
	"time"
)

const (
	// jdUnixEpoch is the Julian Date of 1970-01-01T00:00:00Z.
	jdUnixEpoch = 2440587.5
	// jdJ2000 is the Julian Date of the J2000.0 epoch.
	jdJ2000 = 2451545.0

	secondsPerDay = 86400.0
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// JulianDate converts t to a Julian Date. UTC is treated as UT1.
func JulianDate(t time.Time) float64 {
	sec := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return jdUnixEpoch + sec/secondsPerDay
}

// GMST returns Greenwich Mean Sidereal Time in radians within [0, 2π), using
// the IAU-82 polynomial in seconds of time (Vallado eq. 3-47):
//
//	67310.54841 + (876600·3600 + 8640184.812866)·T + 0.093104·T² − 6.2e-6·T³
//
// with T in Julian centuries from J2000.0.
func GMST(t time.Time) float64 {
	c := (JulianDate(t) - jdJ2000) / 36525.0
	sec := 67310.54841 + (876600*3600+8640184.812866)*c + 0.093104*c*c - 6.2e-6*c*c*c

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}

// GMSTDegrees is GMST in degrees within [0, 360).
func GMSTDegrees(t time.Time) float64 {
	return math.Mod(GMST(t)*180/math.Pi, 360)
}
