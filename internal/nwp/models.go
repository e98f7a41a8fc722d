package nwp

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies one of the supported NWP data sources.
type Provider string

const (
	ProviderGFS  Provider = "gfs"
	ProviderICON Provider = "icon"
	ProviderCMC  Provider = "cmc"
	ProviderHRRR Provider = "hrrr"
	ProviderNAM  Provider = "nam"
	ProviderRAP  Provider = "rap"
	ProviderNBM  Provider = "nbm"
)

// AllProviders lists every supported provider in a stable order.
var AllProviders = []Provider{
	ProviderGFS, ProviderICON, ProviderCMC, ProviderHRRR,
	ProviderNAM, ProviderRAP, ProviderNBM,
}

// ParseProviders parses a comma-separated provider list. An empty string
// selects every supported provider. Unknown names are an error so the caller
// can bail out before any network activity happens.
func ParseProviders(s string) ([]Provider, error) {
	if strings.TrimSpace(s) == "" {
		out := make([]Provider, len(AllProviders))
		copy(out, AllProviders)
		return out, nil
	}

	known := make(map[Provider]bool, len(AllProviders))
	for _, p := range AllProviders {
		known[p] = true
	}

	var out []Provider
	seen := make(map[Provider]bool)
	for _, part := range strings.Split(s, ",") {
		name := Provider(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown provider %q", part)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no providers selected")
	}
	return out, nil
}

// Variable is a requested physical quantity, named by its canonical id.
// Provider-specific codes live in the registry's variable-code maps.
type Variable string

const (
	VarUWind Variable = "u10"   // 10 m u-component of wind
	VarVWind Variable = "v10"   // 10 m v-component of wind
	VarTemp  Variable = "t2m"   // 2 m temperature
	VarPrate Variable = "prate" // surface precipitation rate
)

// DefaultVariables is the standard set used for ensemble retrieval.
var DefaultVariables = []Variable{VarUWind, VarVWind, VarTemp, VarPrate}

// Region is a geographic bounding box. Providers that support server-side
// subsetting receive it as query parameters; all others ignore it.
type Region struct {
	LatMin float64 `json:"latMin" validate:"gte=-90,lte=90,ltfield=LatMax"`
	LatMax float64 `json:"latMax" validate:"gte=-90,lte=90"`
	LonMin float64 `json:"lonMin" validate:"gte=-180,lte=180,ltfield=LonMax"`
	LonMax float64 `json:"lonMax" validate:"gte=-180,lte=180"`
}

// Run identifies one forecast cycle of a provider. Immutable once resolved.
type Run struct {
	Provider Provider  `json:"provider"`
	Date     time.Time `json:"date"` // UTC midnight of the run day
	Hour     int       `json:"hour"` // UTC run hour
}

// When returns the run's initialization time.
func (r Run) When() time.Time {
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), r.Hour, 0, 0, 0, time.UTC)
}

// DateString formats the run date as yyyymmdd.
func (r Run) DateString() string { return r.When().Format("20060102") }

// HourString formats the run hour as a zero-padded two-digit string.
func (r Run) HourString() string { return fmt.Sprintf("%02d", r.Hour) }

func (r Run) String() string {
	return fmt.Sprintf("%s %s %sZ", r.Provider, r.DateString(), r.HourString())
}

// Task is a single file download: stateless, independently retryable and
// uniquely identified by its destination path.
type Task struct {
	Provider     Provider `json:"provider"`
	URL          string   `json:"url"`
	Dest         string   `json:"dest"`
	Compressed   bool     `json:"compressed"` // source is bzip2-compressed
	ForecastHour int      `json:"forecastHour"`
	Variable     Variable `json:"variable,omitempty"` // set for per-variable providers
}

// Result is the outcome of one executed Task.
type Result struct {
	Task     Task          `json:"task"`
	Err      error         `json:"-"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the task completed successfully.
func (r Result) OK() bool { return r.Err == nil }

// Request describes what one retrieval pass should fetch from a provider.
type Request struct {
	Variables    []Variable
	Hours        int // total forecast hours requested
	Step         int // forecast-hour step; 0 means the provider default
	Region       Region
	SkipExisting bool // skip tasks whose destination file already exists
}

// Summary is the per-provider outcome of one retrieval pass.
type Summary struct {
	InvocationID string    `json:"invocationId"`
	Provider     Provider  `json:"provider"`
	Run          *Run      `json:"run,omitempty"` // nil when no run was available
	Planned      int       `json:"planned"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"` // existing files skipped by policy
	Files        []string  `json:"files,omitempty"`
	Errors       error     `json:"-"`
	ErrorText    string    `json:"errors,omitempty"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
}
