package nwp

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var halifax = Region{LatMin: 44.5, LatMax: 44.8, LonMin: -63.6, LonMax: -63.4}

func testRun(p Provider, hour int) Run {
	return Run{Provider: p, Date: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), Hour: hour}
}

// offlinePlanner builds a planner whose prober never succeeds; fine for
// filter-service providers that need no listings.
func offlinePlanner(t *testing.T, spec *Spec, outDir string) *Planner {
	t.Helper()
	tr := NewTransport(nil, "test", testBackoff(1), zerolog.Nop())
	return NewPlanner(spec, NewListingProber(tr, zerolog.Nop()), outDir, zerolog.Nop())
}

func TestPlanTasksGFSHalifaxScenario(t *testing.T) {
	spec := DefaultRegistry()[ProviderGFS]
	p := offlinePlanner(t, spec, t.TempDir())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderGFS, 6), Request{
		Variables: []Variable{VarUWind, VarVWind, VarTemp, VarPrate},
		Hours:     72,
		Step:      1,
		Region:    halifax,
	})

	require.Len(t, tasks, 73, "forecast hours 0..72 inclusive at step 1")
	for _, task := range tasks {
		assert.Contains(t, task.URL, "leftlon=-63.6&rightlon=-63.4&toplat=44.8&bottomlat=44.5")
		assert.Contains(t, task.URL, "var_UGRD=on&var_VGRD=on&var_TMP=on&var_PRATE=on")
		assert.Contains(t, task.URL, "dir=/gfs.20260830/06/atmos")
	}
	assert.Contains(t, tasks[0].URL, "file=gfs.t06z.pgrb2.0p25.f000")
	assert.Equal(t, filepath.Base(tasks[0].Dest), "gfs_0.25_20260830_06_f000.grib2")
	assert.Equal(t, filepath.Base(tasks[72].Dest), "gfs_0.25_20260830_06_f072.grib2")
}

func TestPlanTasksUnrequestedVariablesOff(t *testing.T) {
	spec := DefaultRegistry()[ProviderGFS]
	p := offlinePlanner(t, spec, t.TempDir())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderGFS, 0), Request{
		Variables: []Variable{VarTemp},
		Hours:     0,
		Step:      3,
		Region:    halifax,
	})

	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].URL, "var_UGRD=off&var_VGRD=off&var_TMP=on&var_PRATE=off")
}

func TestPlanTasksIdempotent(t *testing.T) {
	spec := DefaultRegistry()[ProviderGFS]
	p := offlinePlanner(t, spec, "/tmp/out")
	run := testRun(ProviderGFS, 12)
	req := Request{Variables: DefaultVariables, Hours: 24, Step: 3, Region: halifax}

	first, _ := p.PlanTasks(context.Background(), run, req)
	second, _ := p.PlanTasks(context.Background(), run, req)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Dest, second[i].Dest)
		assert.Equal(t, first[i].URL, second[i].URL)
	}
}

func TestPlanTasksClampsToHorizon(t *testing.T) {
	spec := DefaultRegistry()[ProviderRAP] // horizon 21
	p := offlinePlanner(t, spec, t.TempDir())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderRAP, 5), Request{
		Variables: DefaultVariables,
		Hours:     100,
		Step:      1,
		Region:    halifax,
	})

	assert.Len(t, tasks, 22, "hours clamped to 0..21, not an error")
}

func TestPlanTasksCMCPatternPriority(t *testing.T) {
	// Listing carries only the "003" padding form, not "P003"; the planner
	// must fall through the candidate tokens and pick the listed one.
	listing := `<html><body>
<a href="CMC_glb_UGRD_TGL_10_latlon.24x.24_2026083000_003.grib2">x</a>
</body></html>`
	prober, srv := newTestProber(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listing)
	}))

	spec := DefaultRegistry()[ProviderCMC]
	spec.ListingURL = srv.URL + "/{yyyymmdd}/{hh}/"
	p := NewPlanner(spec, prober, t.TempDir(), zerolog.Nop())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderCMC, 0), Request{
		Variables: []Variable{VarUWind},
		Hours:     3,
		Step:      3,
		Region:    halifax,
	})

	require.Len(t, tasks, 1, "hour 0 has no listed file and is skipped")
	assert.Equal(t, 3, tasks[0].ForecastHour)
	assert.Contains(t, tasks[0].URL, "_2026083000_003.grib2")
	assert.NotContains(t, tasks[0].URL, "P003")
}

func TestPlanTasksICONPerVariableDiscovery(t *testing.T) {
	prober, srv := newTestProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/u_10m/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<a href="icon_global_icosahedral_single-level_2026083000_000_U_10M.grib2.bz2">x</a>
</body></html>`)
	}))

	spec := DefaultRegistry()[ProviderICON]
	spec.ListingURL = srv.URL + "/{hh}/{var}/"
	p := NewPlanner(spec, prober, t.TempDir(), zerolog.Nop())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderICON, 0), Request{
		Variables: []Variable{VarUWind, VarTemp},
		Hours:     0,
		Step:      3,
		Region:    halifax,
	})

	require.Len(t, tasks, 1, "t2m listing is unavailable, pair skipped with a warning")
	assert.True(t, tasks[0].Compressed)
	assert.Equal(t, VarUWind, tasks[0].Variable)
	assert.Equal(t, "icon_13km_20260830_00_f000_u10.grib2", filepath.Base(tasks[0].Dest))
	assert.True(t, strings.HasSuffix(tasks[0].URL, "_U_10M.grib2.bz2"))
}

func TestPlanTasksHRRRClampsToPublishedHours(t *testing.T) {
	prober, srv := newTestProber(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="hrrr.t06z.wrfsfcf00.grib2">x</a>
<a href="hrrr.t06z.wrfsfcf01.grib2">x</a>
<a href="hrrr.t06z.wrfsfcf02.grib2">x</a>
</body></html>`)
	}))

	spec := DefaultRegistry()[ProviderHRRR]
	spec.ProbeURL = srv.URL + "/hrrr.{yyyymmdd}/conus/"
	p := NewPlanner(spec, prober, t.TempDir(), zerolog.Nop())

	tasks, _ := p.PlanTasks(context.Background(), testRun(ProviderHRRR, 6), Request{
		Variables: DefaultVariables,
		Hours:     5,
		Step:      1,
		Region:    halifax,
	})

	require.Len(t, tasks, 3, "only published hours 0..2 are planned")
	for i, task := range tasks {
		assert.Equal(t, i, task.ForecastHour)
	}
}
