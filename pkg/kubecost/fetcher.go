package kubecost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// DiscoveryResolution is the resolution of the coarse period discovery
// query. Only the windows of the result are used.
const DiscoveryResolution = "1h"

// Querier is implemented by Client.
type Querier interface {
	QueryAllocation(ctx context.Context, w window.Window, opts AllocationOptions) ([]Entry, error)
	QueryAssets(ctx context.Context, w window.Window) ([]Entry, error)
}

// Fetcher retrieves the records of a period.
type Fetcher struct {
	logger   log.FieldLogger
	querier  Querier
	opts     AllocationOptions
	paginate bool
}

func NewFetcher(logger log.FieldLogger, querier Querier, cfg Config) *Fetcher {
	return &Fetcher{
		logger:  logger.WithField("component", "fetcher"),
		querier: querier,
		opts: AllocationOptions{
			Aggregation: cfg.Aggregation,
			Step:        cfg.Step(),
			Resolution:  cfg.Resolution,
			Accumulate:  cfg.Accumulate,
			IncludeIdle: cfg.IncludeIdle,
			IdleByNode:  cfg.IdleByNode,
			ShareIdle:   cfg.ShareIdle,
		},
		paginate: cfg.Paginate && cfg.Step() == "1h",
	}
}

// FetchAllocations returns the allocation entries of period p. With
// pagination on and hourly granularity, the period is queried one hour at a
// time and the first entry of each non-empty hour is kept, in hour order.
// Daily granularity always issues a single query.
func (f *Fetcher) FetchAllocations(ctx context.Context, p window.Period) ([]Entry, error) {
	logger := f.logger.WithField("period", p.Date)
	if !f.paginate {
		entries, err := f.querier.QueryAllocation(ctx, p.Window(), f.opts)
		if err != nil {
			return nil, err
		}
		entries = nonEmpty(entries)
		if len(entries) == 0 {
			return nil, exporterrors.EmptyResult(exporterrors.StageFetch, "Kubecost allocation API returned no data for %s", p.Window())
		}
		return entries, nil
	}

	var entries []Entry
	for _, hour := range window.HourlyRanges(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hourEntries, err := f.querier.QueryAllocation(ctx, hour, f.opts)
		if err != nil {
			return nil, err
		}
		hourEntries = nonEmpty(hourEntries)
		if len(hourEntries) == 0 {
			logger.Debugf("no allocation data for %s, skipping", hour)
			continue
		}
		entries = append(entries, hourEntries[0])
	}
	if len(entries) == 0 {
		return nil, exporterrors.EmptyResult(exporterrors.StageFetch, "Kubecost allocation API returned no data for any hour of %s", p.Window())
	}
	logger.Debugf("fetched %d hourly allocation entries", len(entries))
	return entries, nil
}

// FetchAssets returns the node assets of period p.
func (f *Fetcher) FetchAssets(ctx context.Context, p window.Period) ([]Entry, error) {
	entries, err := f.querier.QueryAssets(ctx, p.Window())
	if err != nil {
		return nil, err
	}
	entries = nonEmpty(entries)
	if len(entries) == 0 {
		return nil, exporterrors.EmptyResult(exporterrors.StageFetch, "Kubecost assets API returned no data for %s", p.Window())
	}
	return entries, nil
}

// DiscoverPeriods issues one daily, cluster-aggregated query over w and
// returns the days the source has data for, ordered by date.
func (f *Fetcher) DiscoverPeriods(ctx context.Context, w window.Window) ([]window.Period, error) {
	entries, err := f.querier.QueryAllocation(ctx, w, AllocationOptions{
		Aggregation: AggregationCluster,
		Step:        "1d",
		Resolution:  DiscoveryResolution,
		Accumulate:  false,
	})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]window.Period)
	for _, entry := range entries {
		p, ok, err := entryPeriod(entry)
		if err != nil {
			return nil, exporterrors.New(exporterrors.KindSourceUnavailable, exporterrors.StageDiscover, err)
		}
		if !ok || !w.Contains(p.Start) {
			continue
		}
		byDate[p.Date] = p
	}

	periods := make([]window.Period, 0, len(byDate))
	for _, p := range byDate {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Date < periods[j].Date })
	return periods, nil
}

// entryPeriod reads the window of the first record, by key order, that
// carries one.
func entryPeriod(entry Entry) (window.Period, bool, error) {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		record, ok := entry[k].(map[string]interface{})
		if !ok {
			continue
		}
		win, ok := record["window"].(map[string]interface{})
		if !ok {
			continue
		}
		startStr, _ := win["start"].(string)
		endStr, _ := win["end"].(string)
		if startStr == "" || endStr == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return window.Period{}, false, fmt.Errorf("record %q has an invalid window start %q: %v", k, startStr, err)
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return window.Period{}, false, fmt.Errorf("record %q has an invalid window end %q: %v", k, endStr, err)
		}
		start = start.UTC()
		return window.Period{
			Date:  start.Format(window.DateFormat),
			Start: start,
			End:   end.UTC(),
		}, true, nil
	}
	return window.Period{}, false, nil
}

func nonEmpty(entries []Entry) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.HasData() {
			out = append(out, e)
		}
	}
	return out
}

// DecodeEntry decodes a JSON entry keeping numbers as json.Number.
func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		return nil, err
	}
	return e, nil
}
