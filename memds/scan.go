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

package memds

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/lancedb/lancedb-go/dataset"
)

// scanner is memds's implementation of dataset.Scanner. It accumulates the
// fluent configuration and only touches the dataset once TryIntoStream is
// called, per spec.md §3's single-use query-builder shape.
type scanner struct {
	ds *memDataset

	filter        string
	columns       []string
	projections   []dataset.ProjectionExpr
	limit         int64
	hasLimit      bool
	nearestColumn string
	nearestVector []float32
	hasNearest    bool
	nprobes       int
	refineFactor  uint32
	metric        dataset.DistanceType
	useIndex      bool
	prefilter     bool
}

func newScanner(ds *memDataset) *scanner {
	return &scanner{ds: ds, useIndex: true, prefilter: false, nprobes: 20}
}

var _ dataset.Scanner = (*scanner)(nil)

func (s *scanner) Filter(expr string) dataset.Scanner { s.filter = expr; return s }

func (s *scanner) Project(columns []string) dataset.Scanner { s.columns = columns; return s }

func (s *scanner) ProjectWithTransform(p []dataset.ProjectionExpr) dataset.Scanner {
	s.projections = p
	return s
}

func (s *scanner) Limit(n int64) dataset.Scanner { s.limit = n; s.hasLimit = true; return s }

func (s *scanner) Nearest(column string, vector []float32) dataset.Scanner {
	s.nearestColumn, s.nearestVector, s.hasNearest = column, vector, true
	return s
}

func (s *scanner) Nprobes(n int) dataset.Scanner { s.nprobes = n; return s }

func (s *scanner) Refine(factor uint32) dataset.Scanner { s.refineFactor = factor; return s }

func (s *scanner) DistanceMetric(dt dataset.DistanceType) dataset.Scanner { s.metric = dt; return s }

func (s *scanner) UseIndex(use bool) dataset.Scanner { s.useIndex = use; return s }

func (s *scanner) Prefilter(p bool) dataset.Scanner { s.prefilter = p; return s }

type scoredRow struct {
	row  Row
	dist float64
}

// TryIntoStream materializes the scan plan against the dataset's current
// snapshot and returns its single result batch as a one-shot RecordIter.
func (s *scanner) TryIntoStream(ctx context.Context) (dataset.RecordIter, error) {
	snap := s.ds.snap()
	rows, err := snap.rows()
	if err != nil {
		return nil, err
	}

	matchesFilter := func(Row) (bool, error) { return true, nil }
	if s.filter != "" {
		expr, err := ParseFilter(s.filter)
		if err != nil {
			return nil, err
		}
		matchesFilter = func(r Row) (bool, error) { return EvalFilter(expr, r) }
	}

	if !s.hasNearest {
		if s.filter != "" {
			var filtered []Row
			for _, r := range rows {
				ok, err := matchesFilter(r)
				if err != nil {
					return nil, err
				}
				if ok {
					filtered = append(filtered, r)
				}
			}
			rows = filtered
		}
		if s.hasLimit && int64(len(rows)) > s.limit {
			rows = rows[:s.limit]
		}
		rec, err := s.project(snap.schema, rows)
		if err != nil {
			return nil, err
		}
		return newOneShotIter(rec), nil
	}

	return s.scanNearest(snap, rows, matchesFilter)
}

// scanNearest ranks rows (or an index-selected candidate subset) by distance
// to the query vector, honoring prefilter/use_index/nprobes/refine_factor
// per spec.md §4.2.
func (s *scanner) scanNearest(snap *snapshot, rows []Row, matchesFilter func(Row) (bool, error)) (dataset.RecordIter, error) {
	candidates := rows
	if s.prefilter && s.filter != "" {
		var filtered []Row
		for _, r := range candidates {
			ok, err := matchesFilter(r)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, r)
			}
		}
		candidates = filtered
	}

	if s.useIndex {
		if idx := snap.indexOn(s.nearestColumn); idx != nil && idx.centroids != nil {
			candidates = s.narrowByIvfPq(idx, candidates)
		}
	}

	scored := make([]scoredRow, 0, len(candidates))
	for _, r := range candidates {
		v, ok := r.Get(s.nearestColumn)
		if !ok {
			continue
		}
		vec, ok := v.([]float32)
		if !ok {
			return nil, fmt.Errorf("memds: column %q is not a vector column", s.nearestColumn)
		}
		scored = append(scored, scoredRow{row: r, dist: distance(s.metric, s.nearestVector, vec)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist < scored[j].dist })

	limit := int64(len(scored))
	if s.hasLimit {
		limit = s.limit
	}
	if refine := int64(s.refineFactor); refine > 1 {
		limit *= refine
	}
	if limit > int64(len(scored)) {
		limit = int64(len(scored))
	}
	scored = scored[:limit]

	if !s.prefilter && s.filter != "" {
		var filtered []scoredRow
		for _, sr := range scored {
			ok, err := matchesFilter(sr.row)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, sr)
			}
		}
		scored = filtered
	}

	if s.hasLimit && int64(len(scored)) > s.limit {
		scored = scored[:s.limit]
	}

	out := make([]Row, len(scored))
	for i, sr := range scored {
		out[i] = sr.row
	}
	rec, err := s.project(snap.schema, out)
	if err != nil {
		return nil, err
	}
	return newOneShotIter(rec), nil
}

// narrowByIvfPq restricts candidates to the nprobes partitions whose
// centroid is nearest the query vector.
func (s *scanner) narrowByIvfPq(idx *builtIndex, rows []Row) []Row {
	nprobes := s.nprobes
	if nprobes < 1 || nprobes > len(idx.centroids) {
		nprobes = len(idx.centroids)
	}
	type cd struct {
		i int
		d float64
	}
	dists := make([]cd, len(idx.centroids))
	for i, c := range idx.centroids {
		dists[i] = cd{i, distance(s.metric, s.nearestVector, c)}
	}
	sort.Slice(dists, func(a, b int) bool { return dists[a].d < dists[b].d })
	allowed := map[int]bool{}
	for _, d := range dists[:nprobes] {
		allowed[d.i] = true
	}
	var out []Row
	for _, r := range rows {
		v, ok := r.Get(s.nearestColumn)
		if !ok {
			continue
		}
		vec, ok := v.([]float32)
		if !ok {
			continue
		}
		if allowed[nearestCentroid(s.metric, vec, idx.centroids)] {
			out = append(out, r)
		}
	}
	return out
}

func (s *scanner) project(schema *arrow.Schema, rows []Row) (arrow.Record, error) {
	if len(s.projections) > 0 {
		fields := make([]arrow.Field, len(s.projections))
		for i, p := range s.projections {
			fields[i] = arrow.Field{Name: p.Alias, Type: arrow.BinaryTypes.String, Nullable: true}
		}
		projSchema := arrow.NewSchema(fields, nil)
		out := make([]Row, len(rows))
		for i, r := range rows {
			values := make(map[string]interface{}, len(s.projections))
			for _, p := range s.projections {
				expr, err := ParseValueExpr(p.Expr)
				if err != nil {
					return nil, err
				}
				v, err := EvalValue(expr, r)
				if err != nil {
					return nil, err
				}
				values[p.Alias] = v
			}
			out[i] = Row{Schema: projSchema, Values: values}
		}
		return rowsToRecord(projSchema, out)
	}
	if len(s.columns) > 0 {
		fields := make([]arrow.Field, 0, len(s.columns))
		for _, c := range s.columns {
			f, ok := schema.FieldsByName(c)
			if !ok || len(f) == 0 {
				return nil, fmt.Errorf("memds: unknown projection column %q", c)
			}
			fields = append(fields, f[0])
		}
		projSchema := arrow.NewSchema(fields, nil)
		return rowsToRecord(projSchema, rows)
	}
	return rowsToRecord(schema, rows)
}

// oneShotIter adapts a single already-materialized record batch into a
// RecordIter that yields it once and then io.EOF, matching the substrate's
// lazy-iterator contract without needing real streaming I/O.
type oneShotIter struct {
	rec  arrow.Record
	done bool
}

func newOneShotIter(rec arrow.Record) *oneShotIter { return &oneShotIter{rec: rec} }

func (it *oneShotIter) Next(ctx context.Context) (arrow.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	it.done = true
	return it.rec, nil
}

func (it *oneShotIter) Close() error { return nil }
