package nwp

import (
	"fmt"
	"strings"
)

// Discovery selects how a provider's artifact URLs are found.
type Discovery string

const (
	// DiscoveryFilter builds filter-service query URLs directly; one
	// multi-variable file per forecast hour.
	DiscoveryFilter Discovery = "filter"
	// DiscoveryListing resolves exact filenames from an HTML directory
	// listing; one file per (forecast hour, variable) pair.
	DiscoveryListing Discovery = "listing"
)

// Spec captures everything provider-specific as data: cadence, retention,
// templates and variable codes. The resolver and planner are generic
// interpreters of this record, so adding a provider means adding a Spec,
// not new code paths.
//
// Templates use token substitution: {yyyymmdd} run date, {hh} run hour,
// {ff}/{fff} zero-padded forecast hour, {var}/{VAR} provider variable code
// (lower/upper case) and, for CMC's inconsistent padding, {p} for a
// candidate forecast-hour token.
type Spec struct {
	Name       Provider
	Resolution string // label used in destination filenames, e.g. "0.25"

	RunHours        []int // valid UTC run hours, ascending
	RetentionDays   int   // how many days backward to probe
	MaxForecastHour int
	DefaultStep     int

	Discovery  Discovery
	Subsetting bool // supports server-side spatial subsetting
	Compressed bool // artifacts are bzip2-compressed

	// Run probing.
	ProbeURL    string // run-directory listing to probe for availability
	ProbeMarker string // substring that must appear among the listing anchors

	// Filter-service providers.
	FilterURL  string // CGI endpoint
	FilterFile string // template for the file= parameter
	FilterDir  string // template for the dir= parameter

	// Listing providers.
	ListingURL   string   // directory holding artifacts; may contain {var}
	FileTemplate string   // artifact filename template
	FHTokens     []string // candidate forecast-hour tokens, priority order

	// Clamping of requested hours to what is actually published (HRRR).
	ListAvailableHours bool
	AvailableFHPattern string // regexp with one capture group for the hour

	VarCodes map[Variable]string
}

// expand substitutes run/forecast-hour/variable tokens into a template.
func (s *Spec) expand(tpl string, run Run, fh int, varCode string) string {
	r := strings.NewReplacer(
		"{yyyymmdd}", run.DateString(),
		"{hh}", run.HourString(),
		"{ff}", fmt.Sprintf("%02d", fh),
		"{fff}", fmt.Sprintf("%03d", fh),
		"{var}", varCode,
		"{VAR}", strings.ToUpper(varCode),
	)
	return r.Replace(tpl)
}

// Registry maps providers to their specs for one retrieval invocation.
// It is passed explicitly into resolver and planner construction; there is
// no process-wide mutable configuration.
type Registry map[Provider]*Spec

// Lookup returns the spec for a provider.
func (r Registry) Lookup(p Provider) (*Spec, error) {
	spec, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("no spec registered for provider %q", p)
	}
	return spec, nil
}

// ncepVarCodes is shared by all NOMADS filter-service providers.
func ncepVarCodes() map[Variable]string {
	return map[Variable]string{
		VarUWind: "UGRD",
		VarVWind: "VGRD",
		VarTemp:  "TMP",
		VarPrate: "PRATE",
	}
}

// DefaultRegistry builds the registry of all supported providers. Each call
// returns a fresh value so callers may override entries (tests do).
func DefaultRegistry() Registry {
	return Registry{
		ProviderGFS: {
			Name:            ProviderGFS,
			Resolution:      "0.25",
			RunHours:        []int{0, 6, 12, 18},
			RetentionDays:   7,
			MaxForecastHour: 384,
			DefaultStep:     3,
			Discovery:       DiscoveryFilter,
			Subsetting:      true,
			ProbeURL:        "https://nomads.ncep.noaa.gov/pub/data/nccf/com/gfs/prod/gfs.{yyyymmdd}/{hh}/atmos/",
			ProbeMarker:     "gfs.t{hh}z.pgrb2.0p25.f000",
			FilterURL:       "https://nomads.ncep.noaa.gov/cgi-bin/filter_gfs_0p25.pl",
			FilterFile:      "gfs.t{hh}z.pgrb2.0p25.f{fff}",
			FilterDir:       "/gfs.{yyyymmdd}/{hh}/atmos",
			VarCodes:        ncepVarCodes(),
		},
		ProviderHRRR: {
			Name:               ProviderHRRR,
			Resolution:         "3km",
			RunHours:           hourlyRunHours(),
			RetentionDays:      2,
			MaxForecastHour:    48,
			DefaultStep:        1,
			Discovery:          DiscoveryFilter,
			Subsetting:         true,
			ProbeURL:           "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod/hrrr.{yyyymmdd}/conus/",
			ProbeMarker:        "hrrr.t{hh}z.wrfsfcf00.grib2",
			FilterURL:          "https://nomads.ncep.noaa.gov/cgi-bin/filter_hrrr_2d.pl",
			FilterFile:         "hrrr.t{hh}z.wrfsfcf{ff}.grib2",
			FilterDir:          "/hrrr.{yyyymmdd}/conus",
			ListAvailableHours: true,
			AvailableFHPattern: `hrrr\.t{hh}z\.wrfsfcf(\d{2})\.grib2$`,
			VarCodes:           ncepVarCodes(),
		},
		ProviderNAM: {
			Name:            ProviderNAM,
			Resolution:      "12km",
			RunHours:        []int{0, 6, 12, 18},
			RetentionDays:   3,
			MaxForecastHour: 84,
			DefaultStep:     3,
			Discovery:       DiscoveryFilter,
			Subsetting:      true,
			ProbeURL:        "https://nomads.ncep.noaa.gov/pub/data/nccf/com/nam/prod/nam.{yyyymmdd}/",
			ProbeMarker:     "nam.t{hh}z.awphys00.tm00.grib2",
			FilterURL:       "https://nomads.ncep.noaa.gov/cgi-bin/filter_nam.pl",
			FilterFile:      "nam.t{hh}z.awphys{ff}.tm00.grib2",
			FilterDir:       "/nam.{yyyymmdd}",
			VarCodes:        ncepVarCodes(),
		},
		ProviderRAP: {
			Name:            ProviderRAP,
			Resolution:      "13km",
			RunHours:        hourlyRunHours(),
			RetentionDays:   2,
			MaxForecastHour: 21,
			DefaultStep:     1,
			Discovery:       DiscoveryFilter,
			Subsetting:      true,
			ProbeURL:        "https://nomads.ncep.noaa.gov/pub/data/nccf/com/rap/prod/rap.{yyyymmdd}/",
			ProbeMarker:     "rap.t{hh}z.awp130pgrbf00.grib2",
			FilterURL:       "https://nomads.ncep.noaa.gov/cgi-bin/filter_rap.pl",
			FilterFile:      "rap.t{hh}z.awp130pgrbf{ff}.grib2",
			FilterDir:       "/rap.{yyyymmdd}",
			VarCodes:        ncepVarCodes(),
		},
		ProviderNBM: {
			Name:            ProviderNBM,
			Resolution:      "2.5km",
			RunHours:        hourlyRunHours(),
			RetentionDays:   2,
			MaxForecastHour: 264,
			DefaultStep:     1,
			Discovery:       DiscoveryFilter,
			Subsetting:      true,
			// NBM publishes no f000 file; probe for the first forecast hour.
			ProbeURL:    "https://nomads.ncep.noaa.gov/pub/data/nccf/com/blend/prod/blend.{yyyymmdd}/{hh}/core/",
			ProbeMarker: "blend.t{hh}z.core.f001.co.grib2",
			FilterURL:   "https://nomads.ncep.noaa.gov/cgi-bin/filter_blend.pl",
			FilterFile:  "blend.t{hh}z.core.f{fff}.co.grib2",
			FilterDir:   "/blend.{yyyymmdd}/{hh}/core",
			VarCodes:    ncepVarCodes(),
		},
		ProviderICON: {
			Name:            ProviderICON,
			Resolution:      "13km",
			RunHours:        []int{0, 6, 12, 18},
			RetentionDays:   2,
			MaxForecastHour: 180,
			DefaultStep:     3,
			Discovery:       DiscoveryListing,
			Compressed:      true,
			// DWD keys directories by run hour and variable; the run date only
			// appears inside filenames, so the probe checks a variable
			// subdirectory for a file stamped with the candidate run.
			ProbeURL:     "https://opendata.dwd.de/weather/nwp/icon/grib/{hh}/t_2m/",
			ProbeMarker:  "_{yyyymmdd}{hh}_",
			ListingURL:   "https://opendata.dwd.de/weather/nwp/icon/grib/{hh}/{var}/",
			FileTemplate: "icon_global_icosahedral_single-level_{yyyymmdd}{hh}_{fff}_{VAR}.grib2.bz2",
			VarCodes: map[Variable]string{
				VarUWind: "u_10m",
				VarVWind: "v_10m",
				VarTemp:  "t_2m",
				VarPrate: "tot_prec",
			},
		},
		ProviderCMC: {
			Name:            ProviderCMC,
			Resolution:      "25km",
			RunHours:        []int{0, 12},
			RetentionDays:   2,
			MaxForecastHour: 240,
			DefaultStep:     3,
			Discovery:       DiscoveryListing,
			ProbeURL:        "https://dd.weather.gc.ca/model_gem_global/25km/grib2/lat_lon/{yyyymmdd}/{hh}/",
			ProbeMarker:     "_{yyyymmdd}{hh}_",
			ListingURL:      "https://dd.weather.gc.ca/model_gem_global/25km/grib2/lat_lon/{yyyymmdd}/{hh}/",
			// The {p} token is replaced by each candidate forecast-hour token
			// in turn; datamart is inconsistent about zero padding.
			FileTemplate: "CMC_glb_{var}_latlon.24x.24_{yyyymmdd}{hh}_{p}.grib2",
			FHTokens:     []string{"P{fff}", "{fff}", "P{ff}", "{ff}"},
			VarCodes: map[Variable]string{
				VarUWind: "UGRD_TGL_10",
				VarVWind: "VGRD_TGL_10",
				VarTemp:  "TMP_TGL_2",
				VarPrate: "PRATE_SFC_0",
			},
		},
	}
}

func hourlyRunHours() []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	return hours
}
