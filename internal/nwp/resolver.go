package nwp

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/nwp-ensemble/internal/common"
)

// Resolver determines the most recent forecast run a provider has actually
// published, by probing candidate run directories backward in time.
type Resolver struct {
	spec   *Spec
	prober *ListingProber
	log    zerolog.Logger
}

// NewResolver builds a resolver for one provider spec.
func NewResolver(spec *Spec, prober *ListingProber, log zerolog.Logger) *Resolver {
	return &Resolver{
		spec:   spec,
		prober: prober,
		log:    log.With().Str("component", "resolver").Str("provider", string(spec.Name)).Logger(),
	}
}

// ResolveLatestRun probes candidate runs in strictly descending time order
// and returns the first one whose catalog listing carries the expected
// marker. Descending order guarantees the first hit is the latest available
// run, and the result is never in the future relative to now.
//
// Exhausting the retention window without a hit returns ok=false; that is a
// normal outcome when a provider is behind schedule, not an error. Network
// failures on individual probes are logged and treated as "not found at this
// candidate".
func (r *Resolver) ResolveLatestRun(ctx context.Context, now time.Time) (Run, bool) {
	now = now.UTC()

	hours := make([]int, len(r.spec.RunHours))
	copy(hours, r.spec.RunHours)
	sort.Sort(sort.Reverse(sort.IntSlice(hours)))

	for day := 0; day <= r.spec.RetentionDays; day++ {
		date := now.AddDate(0, 0, -day)
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

		for _, hour := range hours {
			run := Run{Provider: r.spec.Name, Date: date, Hour: hour}
			if run.When().After(now) {
				continue
			}
			if ctx.Err() != nil {
				return Run{}, false
			}
			if r.probe(ctx, run) {
				r.log.Info().Str("run", run.String()).Msg("resolved latest run")
				return run, true
			}
		}
	}

	r.log.Warn().Int("retentionDays", r.spec.RetentionDays).Msg("no available run in search window")
	return Run{}, false
}

func (r *Resolver) probe(ctx context.Context, run Run) bool {
	url := r.spec.expand(r.spec.ProbeURL, run, 0, "")
	names, err := r.prober.ListDirectory(ctx, url)
	if err != nil {
		r.log.Debug().Err(err).Str("run", run.String()).Msg("probe miss")
		return false
	}

	marker := r.spec.expand(r.spec.ProbeMarker, run, 0, "")
	if !common.AnyContains(names, marker) {
		r.log.Debug().Str("run", run.String()).Str("marker", marker).Msg("marker absent from listing")
		return false
	}
	return true
}
