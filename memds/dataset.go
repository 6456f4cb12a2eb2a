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

// Package memds is an in-memory implementation of the dataset.Dataset
// substrate interface. It plays the same role the teacher's `memory`
// package plays for go-mysql-server: a runnable storage engine used both as
// a reference implementation and as the engine's own test fixture
// (spec.md §1 puts the real columnar file format and commit protocol out
// of scope; memds supplements that with something the engine's tests can
// actually run against).
package memds

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/blastrain/vitess-sqlparser/sqlparser"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// snapshot is one immutable dataset version.
type snapshot struct {
	version   dataset.Version
	schema    *arrow.Schema
	fragments []arrow.Record
	indices   []*builtIndex
	createdAt time.Time
}

func (s *snapshot) numRows() int64 {
	var n int64
	for _, f := range s.fragments {
		n += f.NumRows()
	}
	return n
}

func (s *snapshot) rows() ([]Row, error) {
	var out []Row
	for _, f := range s.fragments {
		rs, err := recordToRows(f)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

func (s *snapshot) indexDefs() []dataset.IndexDef {
	defs := make([]dataset.IndexDef, len(s.indices))
	for i, idx := range s.indices {
		defs[i] = idx.def
	}
	return defs
}

func (s *snapshot) indexNamed(name string) *builtIndex {
	for _, idx := range s.indices {
		if idx.def.Name == name {
			return idx
		}
	}
	return nil
}

func (s *snapshot) indexOn(column string) *builtIndex {
	for _, idx := range s.indices {
		if len(idx.def.Columns) == 1 && idx.def.Columns[0] == column {
			return idx
		}
	}
	return nil
}

// store is the shared, mutable history behind every Dataset handle checked
// out from the same uri. Writers are serialized by mu; each commit publishes
// a new snapshot and bumps latest atomically, implementing one level below
// the table engine's own consistency wrapper the "writers are serialized
// within a process" rule of spec.md §5.
type store struct {
	mu        sync.RWMutex
	uri       string
	snapshots map[dataset.Version]*snapshot
	latest    dataset.Version
}

func (s *store) commit(fn func(prev *snapshot) (*snapshot, error)) (*memDataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snapshots[s.latest]
	next, err := fn(prev)
	if err != nil {
		return nil, err
	}
	newVersion := s.latest + 1
	next.version = newVersion
	next.createdAt = time.Now()
	s.snapshots[newVersion] = next
	s.latest = newVersion
	return &memDataset{store: s}, nil
}

// memDataset is a dataset.Dataset handle into a store, either tracking the
// latest committed version (pinned == 0) or pinned to a specific one.
type memDataset struct {
	store  *store
	pinned dataset.Version
}

var _ dataset.Dataset = (*memDataset)(nil)

func (d *memDataset) snap() *snapshot {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	v := d.pinned
	if v == 0 {
		v = d.store.latest
	}
	return d.store.snapshots[v]
}

func (d *memDataset) Version(ctx context.Context) dataset.Version { return d.snap().version }

func (d *memDataset) Schema(ctx context.Context) *arrow.Schema { return d.snap().schema }

func (d *memDataset) CountRows(ctx context.Context, filter string) (int64, error) {
	snap := d.snap()
	if filter == "" {
		return snap.numRows(), nil
	}
	rows, err := snap.rows()
	if err != nil {
		return 0, err
	}
	expr, err := ParseFilter(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		ok, err := EvalFilter(expr, r)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (d *memDataset) Scan(ctx context.Context) dataset.Scanner {
	return newScanner(d)
}

// drain materializes a RecordIter to completion. fallback is used as the
// schema when the iterator yields zero records (e.g. an overwrite with an
// empty batch).
func drain(ctx context.Context, it dataset.RecordIter, fallback *arrow.Schema) ([]arrow.Record, *arrow.Schema, error) {
	defer it.Close()
	var recs []arrow.Record
	schema := fallback
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
		schema = rec.Schema()
	}
	return recs, schema, nil
}

func (d *memDataset) Write(ctx context.Context, rows dataset.RecordIter, params dataset.WriteParams) (dataset.Dataset, error) {
	materialized, schema, err := drain(ctx, rows, d.Schema(ctx))
	if err != nil {
		return nil, err
	}
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		next := &snapshot{schema: schema}
		switch params.Mode {
		case dataset.WriteOverwrite:
			next.fragments = materialized
		default:
			if prev != nil {
				next.fragments = append(append([]arrow.Record{}, prev.fragments...), materialized...)
				next.indices = prev.indices
			} else {
				next.fragments = materialized
			}
		}
		return next, nil
	})
}

func (d *memDataset) Delete(ctx context.Context, predicate string) (dataset.Dataset, error) {
	expr, err := ParseFilter(predicate)
	if err != nil {
		return nil, err
	}
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		kept := make([]Row, 0, len(rows))
		for _, r := range rows {
			match, err := EvalFilter(expr, r)
			if err != nil {
				return nil, err
			}
			if !match {
				kept = append(kept, r)
			}
		}
		rec, err := rowsToRecord(prev.schema, kept)
		if err != nil {
			return nil, err
		}
		return &snapshot{schema: prev.schema, fragments: []arrow.Record{rec}, indices: prev.indices}, nil
	})
}

func (d *memDataset) Update(ctx context.Context, predicate string, updates []dataset.ColumnUpdate) (dataset.Dataset, error) {
	matchAll := predicate == ""
	var predExpr sqlparser.Expr
	if !matchAll {
		e, err := ParseFilter(predicate)
		if err != nil {
			return nil, err
		}
		predExpr = e
	}

	setters := make([]columnSetter, len(updates))
	for i, u := range updates {
		e, err := ParseValueExpr(u.Expr)
		if err != nil {
			return nil, err
		}
		setters[i] = columnSetter{column: u.Column, expr: e}
	}

	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		out := make([]Row, len(rows))
		for i, r := range rows {
			apply := matchAll
			if !apply {
				ok, err := EvalFilter(predExpr, r)
				if err != nil {
					return nil, err
				}
				apply = ok
			}
			if !apply {
				out[i] = r
				continue
			}
			values := make(map[string]interface{}, len(r.Values))
			for k, v := range r.Values {
				values[k] = v
			}
			for _, s := range setters {
				v, err := EvalValue(s.expr, r)
				if err != nil {
					return nil, err
				}
				values[s.column] = v
			}
			out[i] = Row{Schema: r.Schema, Values: values}
		}
		rec, err := rowsToRecord(prev.schema, out)
		if err != nil {
			return nil, err
		}
		return &snapshot{schema: prev.schema, fragments: []arrow.Record{rec}, indices: prev.indices}, nil
	})
}

// CreateIndex builds a new index and commits a snapshot carrying it; it does
// not change the row data.
func (d *memDataset) CreateIndex(ctx context.Context, columns []string, kind dataset.IndexKind, name string, params dataset.IndexParams, replace bool) (dataset.Dataset, error) {
	if len(columns) != 1 {
		return nil, fmt.Errorf("memds: CreateIndex supports exactly one column, got %d", len(columns))
	}
	column := columns[0]
	if name == "" {
		name = column
	}
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		for _, existing := range prev.indices {
			if existing.def.Name == name || sameColumns(existing.def.Columns, columns) {
				if !replace {
					return nil, lanceerrors.ErrIndexAlreadyExists.New(name)
				}
			}
		}
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		var idx *builtIndex
		switch kind {
		case dataset.IndexKindBTree:
			sp, _ := params.(dataset.ScalarIndexParams)
			idx, err = buildBTreeIndex(name, column, rows, sp)
		case dataset.IndexKindIvfPq:
			vp, _ := params.(dataset.IvfPqIndexParams)
			idx, err = buildIvfPqIndex(name, column, rows, vp)
		default:
			return nil, fmt.Errorf("memds: unknown index kind %v", kind)
		}
		if err != nil {
			return nil, err
		}
		next := &snapshot{schema: prev.schema, fragments: prev.fragments}
		for _, existing := range prev.indices {
			if existing.def.Name != name && !sameColumns(existing.def.Columns, columns) {
				next.indices = append(next.indices, existing)
			}
		}
		next.indices = append(next.indices, idx)
		return next, nil
	})
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *memDataset) ListIndices(ctx context.Context) ([]dataset.IndexDef, error) {
	return d.snap().indexDefs(), nil
}

func (d *memDataset) IndexStatistics(ctx context.Context, name string) (dataset.IndexStatistics, error) {
	snap := d.snap()
	idx := snap.indexNamed(name)
	if idx == nil {
		return dataset.IndexStatistics{}, fmt.Errorf("memds: no index named %q", name)
	}
	return idx.statistics(snap.numRows()), nil
}

// verificationWindow is how long a version is assumed to possibly belong to
// an in-flight transaction. CleanupOldVersions retains versions newer than
// this regardless of olderThan unless deleteUnverified is set.
const verificationWindow = 7 * 24 * time.Hour

// CleanupOldVersions drops manifest entries older than olderThan, always
// keeping the latest version so the store never loses its only snapshot.
// Unless deleteUnverified is true, the cutoff is clamped so nothing newer
// than the verification window is removed, even when olderThan is shorter.
func (d *memDataset) CleanupOldVersions(ctx context.Context, olderThan time.Duration, deleteUnverified bool) (dataset.PruneStats, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	if !deleteUnverified {
		if floor := time.Now().Add(-verificationWindow); cutoff.After(floor) {
			cutoff = floor
		}
	}
	stats := dataset.PruneStats{}
	for v, snap := range d.store.snapshots {
		if v == d.store.latest {
			continue
		}
		if snap.createdAt.Before(cutoff) {
			delete(d.store.snapshots, v)
			stats.OldVersionsRemoved++
		}
	}
	return stats, nil
}

// CompactFiles merges every fragment into one. remap is accepted for
// interface parity; row-id remapping belongs to the out-of-scope index file
// format and is a no-op here since memds indices are rebuilt in full, not
// incrementally patched.
func (d *memDataset) CompactFiles(ctx context.Context, opts dataset.CompactOptions, remap *dataset.RemapOptions) (dataset.Dataset, dataset.CompactStats, error) {
	var stats dataset.CompactStats
	ds, err := d.store.commit(func(prev *snapshot) (*snapshot, error) {
		if len(prev.fragments) <= 1 {
			return &snapshot{schema: prev.schema, fragments: prev.fragments, indices: prev.indices}, nil
		}
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		rec, err := rowsToRecord(prev.schema, rows)
		if err != nil {
			return nil, err
		}
		stats.FragmentsRemoved = int64(len(prev.fragments))
		stats.FragmentsAdded = 1
		stats.FilesRemoved = int64(len(prev.fragments))
		stats.FilesAdded = 1
		return &snapshot{schema: prev.schema, fragments: []arrow.Record{rec}, indices: prev.indices}, nil
	})
	if err != nil {
		return nil, dataset.CompactStats{}, err
	}
	return ds, stats, nil
}

// OptimizeIndices rebuilds every existing index against the dataset's
// current full row set, folding any rows written since the index was last
// built. opts.NumIndicesToMerge is accepted for interface parity; memds
// always retrains from scratch rather than merging incremental delta
// partitions, since it has no partition-local training state to merge.
func (d *memDataset) OptimizeIndices(ctx context.Context, opts dataset.OptimizeIndicesOptions) (dataset.Dataset, dataset.IndexOptimizeStats, error) {
	var stats dataset.IndexOptimizeStats
	ds, err := d.store.commit(func(prev *snapshot) (*snapshot, error) {
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		totalRows := int64(len(rows))
		next := &snapshot{schema: prev.schema, fragments: prev.fragments}
		for _, idx := range prev.indices {
			foldedRows := totalRows - idx.numIndexedRows
			if foldedRows < 0 {
				foldedRows = 0
			}
			var rebuilt *builtIndex
			var err error
			switch idx.def.Kind {
			case dataset.IndexKindBTree:
				rebuilt, err = buildBTreeIndex(idx.def.Name, idx.def.Columns[0], rows, idx.def.Params.(dataset.ScalarIndexParams))
			case dataset.IndexKindIvfPq:
				rebuilt, err = buildIvfPqIndex(idx.def.Name, idx.def.Columns[0], rows, idx.def.Params.(dataset.IvfPqIndexParams))
			}
			if err != nil {
				return nil, err
			}
			next.indices = append(next.indices, rebuilt)
			stats.IndicesMerged++
			stats.FragmentsFolded += foldedRows
		}
		return next, nil
	})
	if err != nil {
		return nil, dataset.IndexOptimizeStats{}, err
	}
	return ds, stats, nil
}

func (d *memDataset) AddColumns(ctx context.Context, transform []dataset.ColumnUpdate, readColumns []string) (dataset.Dataset, error) {
	parsed := make([]columnSetter, len(transform))
	for i, t := range transform {
		e, err := ParseValueExpr(t.Expr)
		if err != nil {
			return nil, err
		}
		parsed[i] = columnSetter{column: t.Column, expr: e}
	}
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		fields := append([]arrow.Field{}, prev.schema.Fields()...)
		for _, s := range parsed {
			fields = append(fields, arrow.Field{Name: s.column, Type: arrow.BinaryTypes.String, Nullable: true})
		}
		newSchema := arrow.NewSchema(fields, nil)
		for i, r := range rows {
			values := make(map[string]interface{}, len(r.Values)+len(parsed))
			for k, v := range r.Values {
				values[k] = v
			}
			for _, s := range parsed {
				v, err := EvalValue(s.expr, r)
				if err != nil {
					return nil, err
				}
				values[s.column] = v
			}
			rows[i] = Row{Schema: newSchema, Values: values}
		}
		rec, err := rowsToRecord(newSchema, rows)
		if err != nil {
			return nil, err
		}
		return &snapshot{schema: newSchema, fragments: []arrow.Record{rec}, indices: prev.indices}, nil
	})
}

func (d *memDataset) AlterColumns(ctx context.Context, alterations []dataset.ColumnAlteration) (dataset.Dataset, error) {
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		byName := map[string]dataset.ColumnAlteration{}
		for _, a := range alterations {
			byName[a.Name] = a
		}
		fields := make([]arrow.Field, len(prev.schema.Fields()))
		rename := map[string]string{}
		for i, f := range prev.schema.Fields() {
			nf := f
			if a, ok := byName[f.Name]; ok {
				if a.NewName != "" {
					nf.Name = a.NewName
					rename[f.Name] = a.NewName
				}
				if a.NewType != nil {
					nf.Type = a.NewType
				}
				if a.NewNullable != nil {
					nf.Nullable = *a.NewNullable
				}
			}
			fields[i] = nf
		}
		newSchema := arrow.NewSchema(fields, nil)
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			values := make(map[string]interface{}, len(r.Values))
			for k, v := range r.Values {
				if nk, ok := rename[k]; ok {
					values[nk] = v
				} else {
					values[k] = v
				}
			}
			rows[i] = Row{Schema: newSchema, Values: values}
		}
		rec, err := rowsToRecord(newSchema, rows)
		if err != nil {
			return nil, err
		}
		return &snapshot{schema: newSchema, fragments: []arrow.Record{rec}, indices: prev.indices}, nil
	})
}

func (d *memDataset) DropColumns(ctx context.Context, columns []string) (dataset.Dataset, error) {
	drop := map[string]bool{}
	for _, c := range columns {
		drop[c] = true
	}
	return d.store.commit(func(prev *snapshot) (*snapshot, error) {
		var fields []arrow.Field
		for _, f := range prev.schema.Fields() {
			if !drop[f.Name] {
				fields = append(fields, f)
			}
		}
		newSchema := arrow.NewSchema(fields, nil)
		rows, err := prev.rows()
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			values := make(map[string]interface{}, len(r.Values))
			for k, v := range r.Values {
				if !drop[k] {
					values[k] = v
				}
			}
			rows[i] = Row{Schema: newSchema, Values: values}
		}
		rec, err := rowsToRecord(newSchema, rows)
		if err != nil {
			return nil, err
		}
		var indices []*builtIndex
		for _, idx := range prev.indices {
			if !drop[idx.def.Columns[0]] {
				indices = append(indices, idx)
			}
		}
		return &snapshot{schema: newSchema, fragments: []arrow.Record{rec}, indices: indices}, nil
	})
}

func (d *memDataset) Stats(ctx context.Context) (dataset.Stats, error) {
	snap := d.snap()
	var small int64
	for _, f := range snap.fragments {
		if f.NumRows() < smallFragmentThreshold {
			small++
		}
	}
	d.store.mu.RLock()
	numVersions := len(d.store.snapshots)
	d.store.mu.RUnlock()
	return dataset.Stats{
		NumRows:       snap.numRows(),
		NumFragments:  int64(len(snap.fragments)),
		NumSmallFiles: small,
		NumVersions:   int64(numVersions),
	}, nil
}

// smallFragmentThreshold is the row count under which a fragment counts
// toward NumSmallFiles; compaction aims to keep fragments above this.
const smallFragmentThreshold = 1024

func (d *memDataset) WithVersion(ctx context.Context, v dataset.Version) (dataset.Dataset, error) {
	d.store.mu.RLock()
	_, ok := d.store.snapshots[v]
	d.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memds: no such version %d", v)
	}
	return &memDataset{store: d.store, pinned: v}, nil
}

func (d *memDataset) CheckoutLatest(ctx context.Context) (dataset.Dataset, error) {
	return &memDataset{store: d.store}, nil
}

type columnSetter struct {
	column string
	expr   sqlparser.Expr
}
