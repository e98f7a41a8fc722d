// Package ensemble normalizes decoded forecast values into a common tabular
// schema and computes cross-model statistics over it.
package ensemble

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Record is one normalized forecast data point: the schema every model's
// decoded output is converted into before aggregation.
type Record struct {
	Timestamp       time.Time `json:"timestamp"`
	ForecastHour    int       `json:"forecastHour"`
	TemperatureC    float64   `json:"temperatureC"`
	WindSpeedMS     float64   `json:"windSpeedMs"`
	WindDirDeg      float64   `json:"windDirectionDeg"` // 0-360
	PrecipMMPerHour float64   `json:"precipMmHr"`
	Model           string    `json:"model"`
}

// NormalizeTemperature converts a temperature that is plausibly in Kelvin to
// Celsius. Values at or below 200 are assumed to already be Celsius.
func NormalizeTemperature(v float64) float64 {
	if v > 200 {
		return v - 273.15
	}
	return v
}

// NormalizePrecipRate converts a precipitation rate in kg/m²/s to mm/hr.
// Rates of 1 or more are assumed to already be mm/hr.
func NormalizePrecipRate(v float64) float64 {
	if v < 1 {
		return v * 3600
	}
	return v
}

// WindSpeed computes wind speed from the 10 m u/v components.
func WindSpeed(u, v float64) float64 {
	return math.Sqrt(u*u + v*v)
}

// WindDirection decomposes the 10 m u/v wind vector into a direction in
// degrees, normalized to [0, 360).
func WindDirection(u, v float64) float64 {
	deg := math.Atan2(u, v) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

var forecastHourRe = regexp.MustCompile(`_f(\d{2,3})(?:_|\.)`)

// ForecastHourFromPath recovers the forecast hour from the deterministic
// destination filename convention (…_f{fff}….grib2).
func ForecastHourFromPath(path string) (int, error) {
	m := forecastHourRe.FindStringSubmatch(path)
	if m == nil {
		return 0, fmt.Errorf("no forecast hour in filename %q", path)
	}
	fh, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("bad forecast hour in filename %q: %w", path, err)
	}
	return fh, nil
}
