/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"context"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/golang/glog"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	// Cumulative metrics.
	NumIndexOps = stats.Int64("index_ops_total",
		"Total number of index operations", stats.UnitDimensionless)
	NumIndexReloads = stats.Int64("index_reloads_total",
		"Total number of index reloads", stats.UnitDimensionless)
	NumSearchCells = stats.Int64("zone_search_cells_visited",
		"Number of cells visited by zone searches", stats.UnitDimensionless)
	NumSubZoneCandidates = stats.Int64("subzone_candidates_total",
		"Number of ring candidates tested for geometric containment", stats.UnitDimensionless)
	LatencyMs = stats.Float64("latency",
		"Latency of the various methods", stats.UnitMilliseconds)

	// Point-in-time metrics.
	IndexEntries = stats.Int64("index_entries",
		"Number of entries in the index", stats.UnitDimensionless)

	// Tag keys here
	KeyStatus, _ = tag.NewKey("status")
	KeyMethod, _ = tag.NewKey("method")

	// Tag values here
	TagValueStatusOK    = "ok"
	TagValueStatusError = "error"

	defaultLatencyMsDistribution = view.Distribution(
		0, 0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16,
		20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500,
		650, 800, 1000, 2000, 5000, 10000, 20000, 50000, 100000)

	allTagKeys = []tag.Key{
		KeyStatus, KeyMethod,
	}

	allViews = []*view.View{
		{
			Name:        LatencyMs.Name(),
			Measure:     LatencyMs,
			Description: LatencyMs.Description(),
			Aggregation: defaultLatencyMsDistribution,
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumIndexOps.Name(),
			Measure:     NumIndexOps,
			Description: NumIndexOps.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumIndexReloads.Name(),
			Measure:     NumIndexReloads,
			Description: NumIndexReloads.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumSearchCells.Name(),
			Measure:     NumSearchCells,
			Description: NumSearchCells.Description(),
			Aggregation: view.Sum(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumSubZoneCandidates.Name(),
			Measure:     NumSubZoneCandidates,
			Description: NumSubZoneCandidates.Description(),
			Aggregation: view.Sum(),
			TagKeys:     allTagKeys,
		},

		// Last value aggregations
		{
			Name:        IndexEntries.Name(),
			Measure:     IndexEntries,
			Description: IndexEntries.Description(),
			Aggregation: view.LastValue(),
			TagKeys:     allTagKeys,
		},
	}
)

func init() {
	Check(view.Register(allViews...))
}

// SinceMs returns the time since startTime in milliseconds (as a float).
func SinceMs(startTime time.Time) float64 {
	return float64(time.Since(startTime)) / 1e6
}

// RecordOp records one operation of the given method with its outcome and latency.
func RecordOp(ctx context.Context, method string, start time.Time, err error) {
	status := TagValueStatusOK
	if err != nil {
		status = TagValueStatusError
	}
	cctx, terr := tag.New(ctx, tag.Upsert(KeyMethod, method), tag.Upsert(KeyStatus, status))
	if terr != nil {
		glog.Warningf("while tagging %s: %v", method, terr)
		return
	}
	stats.Record(cctx, NumIndexOps.M(1), LatencyMs.M(SinceMs(start)))
}

// MetricsHandler returns an http.Handler serving all registered views in the
// Prometheus text format, under the given namespace.
func MetricsHandler(namespace string) (http.Handler, error) {
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: namespace,
		Registry:  prom.NewRegistry(),
		OnError:   func(err error) { glog.Errorf("%v", err) },
	})
	if err != nil {
		return nil, err
	}
	view.RegisterExporter(pe)
	return pe, nil
}
