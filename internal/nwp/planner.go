package nwp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Planner expands a resolved run and a retrieval request into concrete
// download tasks, applying the provider's naming and variable-mapping rules.
// Planning is idempotent: the same inputs always yield the same destination
// path set.
type Planner struct {
	spec   *Spec
	prober *ListingProber
	outDir string
	log    zerolog.Logger
}

// NewPlanner builds a planner for one provider spec. Destinations are laid
// out under outDir in a per-provider subdirectory.
func NewPlanner(spec *Spec, prober *ListingProber, outDir string, log zerolog.Logger) *Planner {
	return &Planner{
		spec:   spec,
		prober: prober,
		outDir: outDir,
		log:    log.With().Str("component", "planner").Str("provider", string(spec.Name)).Logger(),
	}
}

// PlanTasks builds the task list for one run. Requested hours beyond the
// provider's horizon are clamped, never rejected. The second return value is
// the number of tasks dropped because their destination already exists
// (only when the request opts into skipping).
func (p *Planner) PlanTasks(ctx context.Context, run Run, req Request) ([]Task, int) {
	variables := req.Variables
	if len(variables) == 0 {
		variables = DefaultVariables
	}

	step := req.Step
	if step <= 0 {
		step = p.spec.DefaultStep
	}

	hours := req.Hours
	if hours > p.spec.MaxForecastHour {
		p.log.Debug().Int("requested", hours).Int("horizon", p.spec.MaxForecastHour).
			Msg("clamping request to forecast horizon")
		hours = p.spec.MaxForecastHour
	}
	if hours < 0 {
		hours = 0
	}

	var tasks []Task
	switch p.spec.Discovery {
	case DiscoveryListing:
		tasks = p.planListing(ctx, run, variables, hours, step)
	default:
		tasks = p.planFilter(ctx, run, variables, hours, step, req.Region)
	}

	if !req.SkipExisting {
		return tasks, 0
	}

	kept := tasks[:0]
	skipped := 0
	for _, task := range tasks {
		if _, err := os.Stat(task.Dest); err == nil {
			p.log.Debug().Str("dest", task.Dest).Msg("destination exists, skipping")
			skipped++
			continue
		}
		kept = append(kept, task)
	}
	return kept, skipped
}

// planFilter builds one multi-variable filter-service URL per forecast hour.
// The query string is assembled in a fixed order so planned URLs are stable
// across runs.
func (p *Planner) planFilter(ctx context.Context, run Run, variables []Variable, hours, step int, region Region) []Task {
	requested := make(map[Variable]bool, len(variables))
	for _, v := range variables {
		requested[v] = true
	}
	onOff := func(v Variable) string {
		if requested[v] {
			return "on"
		}
		return "off"
	}

	available := p.availableHours(ctx, run)

	var tasks []Task
	for fh := 0; fh <= hours; fh += step {
		if available != nil && !available[fh] {
			p.log.Debug().Int("forecastHour", fh).Msg("hour not yet published, skipping")
			continue
		}

		parts := []string{
			"file=" + p.spec.expand(p.spec.FilterFile, run, fh, ""),
			"lev_10_m_above_ground=on",
			"lev_2_m_above_ground=on",
			"lev_surface=on",
			"var_UGRD=" + onOff(VarUWind),
			"var_VGRD=" + onOff(VarVWind),
			"var_TMP=" + onOff(VarTemp),
			"var_PRATE=" + onOff(VarPrate),
		}
		if p.spec.Subsetting {
			parts = append(parts,
				"subregion=",
				"leftlon="+formatCoord(region.LonMin),
				"rightlon="+formatCoord(region.LonMax),
				"toplat="+formatCoord(region.LatMax),
				"bottomlat="+formatCoord(region.LatMin),
			)
		}
		parts = append(parts, "dir="+p.spec.expand(p.spec.FilterDir, run, fh, ""))

		tasks = append(tasks, Task{
			Provider:     p.spec.Name,
			URL:          p.spec.FilterURL + "?" + strings.Join(parts, "&"),
			Dest:         p.destPath(run, fh, ""),
			Compressed:   p.spec.Compressed,
			ForecastHour: fh,
		})
	}
	return tasks
}

// planListing builds one task per (forecast hour, variable) pair, resolving
// exact filenames against the provider's directory listing. Pairs with no
// matching file are skipped with a warning; a missing file is not fatal.
func (p *Planner) planListing(ctx context.Context, run Run, variables []Variable, hours, step int) []Task {
	listings := make(map[string]map[string]struct{})
	listingFor := func(url string) map[string]struct{} {
		if names, ok := listings[url]; ok {
			return names
		}
		names, err := p.prober.ListDirectory(ctx, url)
		if err != nil {
			p.log.Warn().Err(err).Str("url", url).Msg("listing unavailable")
			names = map[string]struct{}{}
		}
		listings[url] = names
		return names
	}

	var tasks []Task
	for fh := 0; fh <= hours; fh += step {
		for _, v := range variables {
			code, ok := p.spec.VarCodes[v]
			if !ok {
				p.log.Warn().Str("variable", string(v)).Msg("no variable code mapping")
				continue
			}

			dirURL := p.spec.expand(p.spec.ListingURL, run, fh, code)
			names := listingFor(dirURL)

			filename, found := p.resolveFilename(run, fh, code, names)
			if !found {
				p.log.Warn().Int("forecastHour", fh).Str("variable", string(v)).
					Msg("no matching file in listing, skipping")
				continue
			}

			tasks = append(tasks, Task{
				Provider:     p.spec.Name,
				URL:          dirURL + filename,
				Dest:         p.destPath(run, fh, v),
				Compressed:   p.spec.Compressed,
				ForecastHour: fh,
				Variable:     v,
			})
		}
	}
	return tasks
}

// resolveFilename expands the provider's filename template and checks it
// against the listing. When the spec carries candidate forecast-hour tokens
// (CMC's padding is inconsistent) each is tried in priority order and the
// first listed match wins.
func (p *Planner) resolveFilename(run Run, fh int, code string, names map[string]struct{}) (string, bool) {
	base := p.spec.expand(p.spec.FileTemplate, run, fh, code)

	if len(p.spec.FHTokens) == 0 {
		_, ok := names[base]
		return base, ok
	}

	for _, tok := range p.spec.FHTokens {
		candidate := strings.ReplaceAll(base, "{p}", p.spec.expand(tok, run, fh, code))
		if _, ok := names[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// availableHours returns the set of forecast hours actually present in the
// run directory, for providers that publish one (observed for HRRR). A nil
// map means "no clamping": either the provider does not support it or the
// listing could not be fetched, in which case planning stays optimistic.
func (p *Planner) availableHours(ctx context.Context, run Run) map[int]bool {
	if !p.spec.ListAvailableHours || p.spec.AvailableFHPattern == "" {
		return nil
	}

	url := p.spec.expand(p.spec.ProbeURL, run, 0, "")
	names, err := p.prober.ListDirectory(ctx, url)
	if err != nil {
		p.log.Debug().Err(err).Msg("could not list published hours")
		return nil
	}

	re, err := regexp.Compile(p.spec.expand(p.spec.AvailableFHPattern, run, 0, ""))
	if err != nil {
		p.log.Warn().Err(err).Msg("bad available-hour pattern")
		return nil
	}

	available := make(map[int]bool)
	for name := range names {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if fh, err := strconv.Atoi(m[1]); err == nil {
			available[fh] = true
		}
	}
	if len(available) == 0 {
		return nil
	}
	return available
}

// destPath is a pure function of (provider, resolution, run, forecast hour,
// variable); re-planning the same inputs always yields the same paths.
func (p *Planner) destPath(run Run, fh int, v Variable) string {
	name := fmt.Sprintf("%s_%s_%s_%s_f%03d",
		p.spec.Name, p.spec.Resolution, run.DateString(), run.HourString(), fh)
	if v != "" {
		name += "_" + string(v)
	}
	return filepath.Join(p.outDir, string(p.spec.Name), name+".grib2")
}

// formatCoord renders a bounding-box coordinate without trailing zeros,
// matching the form providers expect in filter queries.
func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
