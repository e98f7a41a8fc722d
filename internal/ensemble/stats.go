package ensemble

import (
	"math"
	"sort"
)

// StatVariables are the record fields statistics are computed over.
var StatVariables = []string{"temperature", "wind_speed", "wind_direction", "precipitation"}

// HourStats is the cross-model distribution of one variable at one forecast
// hour.
type HourStats struct {
	ForecastHour int     `json:"forecastHour"`
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Median       float64 `json:"median"`
	CILower      float64 `json:"ciLower"` // mean - 1.96·std
	CIUpper      float64 `json:"ciUpper"` // mean + 1.96·std
}

// AgreementPoint is one model's mean values at one forecast hour, used to
// compare how closely the models track each other.
type AgreementPoint struct {
	ForecastHour  int     `json:"forecastHour"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection float64 `json:"windDirection"`
	Precipitation float64 `json:"precipitation"`
}

// Analysis bundles per-variable distributions and the model-agreement table.
type Analysis struct {
	Variables map[string][]HourStats `json:"variables"`
	Agreement []AgreementPoint       `json:"agreement"`
}

func value(r Record, variable string) float64 {
	switch variable {
	case "temperature":
		return r.TemperatureC
	case "wind_speed":
		return r.WindSpeedMS
	case "wind_direction":
		return r.WindDirDeg
	case "precipitation":
		return r.PrecipMMPerHour
	}
	return math.NaN()
}

// Analyze groups records by forecast hour and computes mean, sample standard
// deviation, min, max, median and a 95% confidence interval per variable,
// plus per-(hour, model) means for model agreement.
func Analyze(records []Record) Analysis {
	analysis := Analysis{Variables: make(map[string][]HourStats)}
	if len(records) == 0 {
		return analysis
	}

	byHour := make(map[int][]Record)
	for _, r := range records {
		byHour[r.ForecastHour] = append(byHour[r.ForecastHour], r)
	}

	hours := make([]int, 0, len(byHour))
	for fh := range byHour {
		hours = append(hours, fh)
	}
	sort.Ints(hours)

	for _, variable := range StatVariables {
		stats := make([]HourStats, 0, len(hours))
		for _, fh := range hours {
			values := make([]float64, 0, len(byHour[fh]))
			for _, r := range byHour[fh] {
				if v := value(r, variable); !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			if len(values) == 0 {
				continue
			}
			stats = append(stats, hourStats(fh, values))
		}
		analysis.Variables[variable] = stats
	}

	analysis.Agreement = modelAgreement(byHour, hours)
	return analysis
}

func hourStats(fh int, values []float64) HourStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var std float64
	if len(sorted) > 1 {
		var ss float64
		for _, v := range sorted {
			d := v - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(len(sorted)-1))
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return HourStats{
		ForecastHour: fh,
		Mean:         mean,
		Std:          std,
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Median:       median,
		CILower:      mean - 1.96*std,
		CIUpper:      mean + 1.96*std,
	}
}

func modelAgreement(byHour map[int][]Record, hours []int) []AgreementPoint {
	var points []AgreementPoint
	for _, fh := range hours {
		byModel := make(map[string][]Record)
		for _, r := range byHour[fh] {
			byModel[r.Model] = append(byModel[r.Model], r)
		}

		models := make([]string, 0, len(byModel))
		for m := range byModel {
			models = append(models, m)
		}
		sort.Strings(models)

		for _, model := range models {
			recs := byModel[model]
			var temp, speed, dir, precip float64
			for _, r := range recs {
				temp += r.TemperatureC
				speed += r.WindSpeedMS
				dir += r.WindDirDeg
				precip += r.PrecipMMPerHour
			}
			n := float64(len(recs))
			points = append(points, AgreementPoint{
				ForecastHour:  fh,
				Model:         model,
				Temperature:   temp / n,
				WindSpeed:     speed / n,
				WindDirection: dir / n,
				Precipitation: precip / n,
			})
		}
	}
	return points
}
