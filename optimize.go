// Copyright 2024 LanceDB Developers.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lancedb

import (
	"context"
	"time"

	"github.com/lancedb/lancedb-go/dataset"
)

// defaultPruneWindow is the 7-day older_than that OptimizeAll passes to its
// prune step (spec.md §4.6).
const defaultPruneWindow = 7 * 24 * time.Hour

// OptimizeActionKind selects which maintenance action Table.Optimize runs.
type OptimizeActionKind int

const (
	// OptimizeAll runs compact, then prune (7-day window), then index
	// optimization, in that order.
	OptimizeAll OptimizeActionKind = iota
	OptimizeCompact
	OptimizePrune
	OptimizeIndex
)

// OptimizeAction is the sum-of-four-alternatives described in spec.md §3:
// All / Compact / Prune / Index. Only the fields relevant to Kind are read.
type OptimizeAction struct {
	Kind OptimizeActionKind

	CompactOptions dataset.CompactOptions
	RemapOptions   *dataset.RemapOptions

	PruneOlderThan        time.Duration
	PruneDeleteUnverified bool

	IndexOptions dataset.OptimizeIndicesOptions
}

// OptimizeStats aggregates the results of a Compact and/or Prune step. The
// All path leaves Index zero-valued per spec.md §4.6 ("step 3 contributes
// no stats" to the aggregate); Optimize(OptimizeAction{Kind: OptimizeIndex})
// called directly still returns its own Index stats.
type OptimizeStats struct {
	Compaction *dataset.CompactStats
	Prune      *dataset.PruneStats
	Index      *dataset.IndexOptimizeStats
}

// runOptimize executes action against ref, the shared implementation behind
// nativeTable.optimize.
func runOptimize(ctx context.Context, ref *datasetRef, action OptimizeAction) (OptimizeStats, error) {
	switch action.Kind {
	case OptimizeCompact:
		var stats dataset.CompactStats
		_, err := ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
			next, s, err := ds.CompactFiles(ctx, action.CompactOptions, action.RemapOptions)
			stats = s
			return next, err
		})
		if err != nil {
			return OptimizeStats{}, err
		}
		return OptimizeStats{Compaction: &stats}, nil

	case OptimizePrune:
		var stats dataset.PruneStats
		ds, err := ref.get(ctx)
		if err != nil {
			return OptimizeStats{}, err
		}
		stats, err = ds.CleanupOldVersions(ctx, action.PruneOlderThan, action.PruneDeleteUnverified)
		if err != nil {
			return OptimizeStats{}, err
		}
		return OptimizeStats{Prune: &stats}, nil

	case OptimizeIndex:
		var stats dataset.IndexOptimizeStats
		_, err := ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
			next, s, err := ds.OptimizeIndices(ctx, action.IndexOptions)
			stats = s
			return next, err
		})
		if err != nil {
			return OptimizeStats{}, err
		}
		return OptimizeStats{Index: &stats}, nil

	default: // OptimizeAll
		compactStats, err := runOptimize(ctx, ref, OptimizeAction{Kind: OptimizeCompact, CompactOptions: action.CompactOptions, RemapOptions: action.RemapOptions})
		if err != nil {
			return OptimizeStats{}, err
		}
		pruneStats, err := runOptimize(ctx, ref, OptimizeAction{Kind: OptimizePrune, PruneOlderThan: defaultPruneWindow})
		if err != nil {
			return OptimizeStats{}, err
		}
		if _, err := runOptimize(ctx, ref, OptimizeAction{Kind: OptimizeIndex, IndexOptions: action.IndexOptions}); err != nil {
			return OptimizeStats{}, err
		}
		return OptimizeStats{Compaction: compactStats.Compaction, Prune: pruneStats.Prune}, nil
	}
}
