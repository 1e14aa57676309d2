// Package gaps works out which days still have to be exported by comparing
// what the metering source has with what the store already holds.
package gaps

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/kube-reporting/allocation-exporter/pkg/artifact"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// SourceDiscoverer reports the days the metering source has data for.
type SourceDiscoverer interface {
	DiscoverPeriods(ctx context.Context, w window.Window) ([]window.Period, error)
}

// Lister lists store keys under a prefix, after startAfter.
type Lister interface {
	List(ctx context.Context, prefix, startAfter string) ([]string, error)
}

type Detector struct {
	logger log.FieldLogger
	source SourceDiscoverer
	store  Lister
	prefix string
}

func NewDetector(logger log.FieldLogger, source SourceDiscoverer, store Lister, prefix string) *Detector {
	return &Detector{
		logger: logger.WithField("component", "gaps"),
		source: source,
		store:  store,
		prefix: prefix,
	}
}

// DiscoverSourcePeriods returns the candidate periods the source reports in
// w.
func (d *Detector) DiscoverSourcePeriods(ctx context.Context, w window.Window) ([]window.Period, error) {
	periods, err := d.source.DiscoverPeriods(ctx, w)
	if err != nil {
		return nil, err
	}
	d.logger.Debugf("source has data for %d days in %s", len(periods), w)
	return periods, nil
}

// DiscoverStoredPeriods returns the dates in w that already have an artifact
// for ent. Keys of other entities sharing the prefix are ignored.
func (d *Detector) DiscoverStoredPeriods(ctx context.Context, ent entity.Entity, w window.Window) (map[string]struct{}, error) {
	prefix := artifact.EntityPrefix(d.prefix, ent)
	startAfter := artifact.MonthPrefix(d.prefix, ent, window.NewPeriod(w.Start))

	keys, err := d.store.List(ctx, prefix, startAfter)
	if err != nil {
		return nil, exporterrors.StoreRead(exporterrors.StageDiscover, err)
	}

	stored := make(map[string]struct{})
	for _, key := range keys {
		name, ok := artifact.ParseArtifactKey(key)
		if !ok || name.Entity != ent.Name {
			continue
		}
		p, err := window.ParsePeriod(name.Date)
		if err != nil || !w.Contains(p.Start) {
			continue
		}
		stored[name.Date] = struct{}{}
	}
	d.logger.Debugf("store has %d days in %s for %s", len(stored), w, ent.Name)
	return stored, nil
}

// DetectMissing returns the periods the source has in w that are not yet
// stored for ent.
func (d *Detector) DetectMissing(ctx context.Context, ent entity.Entity, w window.Window) ([]window.Period, error) {
	candidate, err := d.DiscoverSourcePeriods(ctx, w)
	if err != nil {
		return nil, err
	}
	stored, err := d.DiscoverStoredPeriods(ctx, ent, w)
	if err != nil {
		return nil, err
	}
	return ComputeMissing(candidate, stored), nil
}

// ComputeMissing returns the candidate periods whose date is not in stored,
// ordered by date.
func ComputeMissing(candidate []window.Period, stored map[string]struct{}) []window.Period {
	var missing []window.Period
	seen := make(map[string]struct{}, len(candidate))
	for _, p := range candidate {
		if _, ok := stored[p.Date]; ok {
			continue
		}
		if _, dup := seen[p.Date]; dup {
			continue
		}
		seen[p.Date] = struct{}{}
		missing = append(missing, p)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Date < missing[j].Date })
	return missing
}
