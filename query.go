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
	"fmt"
	"sync/atomic"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/internal/lanceschema"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// defaultNearestLimit is the limit applied when a query vector is set and
// the caller never called Limit explicitly (spec.md §4.2).
const defaultNearestLimit = 10

// Query is a fluent, immutable-after-build description of one read
// (spec.md §3). It is built by Table.Query/Table.Search and consumed by
// ExecuteStream, which refuses a second call (spec.md §9, "fluent
// builders that consume themselves").
type Query struct {
	table *Table

	column     string
	vector     []float32
	hasVector  bool
	limit      int64
	hasLimit   bool
	filter     string
	projection []dataset.ProjectionExpr
	columns    []string
	nprobes    int
	hasNprobes bool
	refine     uint32
	metric     dataset.DistanceType
	hasMetric  bool
	useIndex   bool
	prefilter  bool

	consumed atomic.Bool
}

func newQuery(t *Table) *Query {
	return &Query{table: t, nprobes: 20, useIndex: true, prefilter: false}
}

// Nearest sets the query vector and, optionally, the column it targets;
// pass "" for column to infer it from the schema at execute time.
func (q *Query) Nearest(column string, vector []float32) *Query {
	q.column, q.vector, q.hasVector = column, vector, true
	return q
}

// Filter sets the SQL-like boolean predicate.
func (q *Query) Filter(expr string) *Query { q.filter = expr; return q }

// Limit caps the number of rows returned.
func (q *Query) Limit(n int64) *Query { q.limit, q.hasLimit = n, true; return q }

// Select projects a simple list of columns, in order.
func (q *Query) Select(columns ...string) *Query { q.columns = columns; return q }

// SelectWithProjection projects a list of (alias, expression) pairs.
func (q *Query) SelectWithProjection(projections ...dataset.ProjectionExpr) *Query {
	q.projection = projections
	return q
}

// Nprobes sets the number of IVF partitions probed.
func (q *Query) Nprobes(n int) *Query { q.nprobes, q.hasNprobes = n, true; return q }

// RefineFactor sets the re-ranking candidate multiplier.
func (q *Query) RefineFactor(factor uint32) *Query { q.refine = factor; return q }

// DistanceMetric overrides the index's trained metric. Mismatched metrics
// yield inaccurate results; callers are responsible for keeping this
// aligned with how the index was built (spec.md §4.2).
func (q *Query) DistanceMetric(dt dataset.DistanceType) *Query {
	q.metric, q.hasMetric = dt, true
	return q
}

// UseIndex toggles ANN index use (default true).
func (q *Query) UseIndex(use bool) *Query { q.useIndex = use; return q }

// Prefilter toggles applying Filter before (true) or after (false, the
// default) ANN candidate selection.
func (q *Query) Prefilter(p bool) *Query { q.prefilter = p; return q }

// ExecuteStream translates the query into a scan against the dataset and
// returns a lazy, finite, non-restartable sequence of record batches.
func (q *Query) ExecuteStream(ctx context.Context) (dataset.RecordIter, error) {
	if q.consumed.Swap(true) {
		return nil, lanceerrors.ErrBuilderAlreadyExecuted.New("Query")
	}
	scanner, err := q.table.impl.newScan(ctx)
	if err != nil {
		return nil, err
	}

	if q.hasVector {
		column := q.column
		if column == "" {
			schema, err := q.table.impl.schema(ctx)
			if err != nil {
				return nil, err
			}
			column, err = lanceschema.InferVectorColumn(schema, len(q.vector))
			if err != nil {
				return nil, err
			}
		} else {
			schema, err := q.table.impl.schema(ctx)
			if err != nil {
				return nil, err
			}
			f, ok := lanceschema.FindColumn(schema, column)
			if !ok {
				return nil, lanceerrors.ErrStore.New(fmt.Sprintf("column %q not found", column))
			}
			dim, ok := lanceschema.VectorDim(f.Type)
			if !ok || int(dim) != len(q.vector) {
				return nil, lanceerrors.ErrStore.New(fmt.Sprintf(
					"column %q is not a FixedSizeList<floating, %d>", column, len(q.vector)))
			}
		}
		scanner = scanner.Nearest(column, q.vector)
		scanner = scanner.Nprobes(q.nprobes)
		if q.refine > 0 {
			scanner = scanner.Refine(q.refine)
		}
		if q.hasMetric {
			q.warnOnMetricMismatch(ctx, column)
			scanner = scanner.DistanceMetric(q.metric)
		}
		scanner = scanner.UseIndex(q.useIndex).Prefilter(q.prefilter)
	}

	if q.filter != "" {
		scanner = scanner.Filter(q.filter)
	}
	if len(q.projection) > 0 {
		scanner = scanner.ProjectWithTransform(q.projection)
	} else if len(q.columns) > 0 {
		scanner = scanner.Project(q.columns)
	}

	limit := q.limit
	hasLimit := q.hasLimit
	if !hasLimit && q.hasVector {
		limit, hasLimit = defaultNearestLimit, true
	}
	if hasLimit {
		scanner = scanner.Limit(limit)
	}

	return scanner.TryIntoStream(ctx)
}

// warnOnMetricMismatch logs when the query's metric override differs from
// the metric the column's index was trained with; quantized candidates are
// then ranked by a different distance than the partitions were built for,
// so results are inaccurate.
func (q *Query) warnOnMetricMismatch(ctx context.Context, column string) {
	n, ok := q.table.AsNative()
	if !ok {
		return
	}
	indices, err := q.table.impl.listIndices(ctx)
	if err != nil {
		return
	}
	for _, def := range indices {
		p, isVec := def.Params.(dataset.IvfPqIndexParams)
		if !isVec || len(def.Columns) != 1 || def.Columns[0] != column {
			continue
		}
		if p.DistanceType != q.metric {
			n.log.Warnf("query metric %s does not match the %s metric index %q was trained with; results will be inaccurate",
				q.metric, p.DistanceType, def.Name)
		}
	}
}
