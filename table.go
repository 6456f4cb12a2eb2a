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

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/lancedb/lancedb-go/dataset"
)

// tableInternal is the common operation set both the native (embedded) and
// remote (RPC) table implementations provide. Table hides the choice
// between the two behind this interface and exposes AsNative for callers
// that need native-only features (spec.md §9, "Dynamic polymorphism").
type tableInternal interface {
	name() string
	uri() string
	schema(ctx context.Context) (*arrow.Schema, error)
	countRows(ctx context.Context, filter string) (int64, error)
	add(ctx context.Context, stream dataset.RecordIter, params dataset.WriteParams) error
	deleteRows(ctx context.Context, predicate string) error
	update(ctx context.Context, predicate string, updates []dataset.ColumnUpdate) error
	mergeInsert(ctx context.Context, on []string, source dataset.RecordIter, plan dataset.MergeInsertPlan) (dataset.MergeInsertStats, error)
	newScan(ctx context.Context) (dataset.Scanner, error)
	createIndex(ctx context.Context, columns []string, kind dataset.IndexKind, name string, params dataset.IndexParams, replace bool) error
	addColumns(ctx context.Context, transform []dataset.ColumnUpdate, readColumns []string) error
	alterColumns(ctx context.Context, alterations []dataset.ColumnAlteration) error
	dropColumns(ctx context.Context, columns []string) error
	optimize(ctx context.Context, action OptimizeAction) (OptimizeStats, error)
	checkout(ctx context.Context, v dataset.Version) (tableInternal, error)
	checkoutLatest(ctx context.Context) (tableInternal, error)
	stats(ctx context.Context) (dataset.Stats, error)
	listIndices(ctx context.Context) ([]dataset.IndexDef, error)
	indexStatistics(ctx context.Context, name string) (dataset.IndexStatistics, error)
}

// Table is the public facade over a single named dataset. name is cached at
// construction so it remains readable even after the underlying dataset
// handle has been torn down (spec.md §3's Table invariant).
type Table struct {
	cachedName string
	cachedURI  string
	impl       tableInternal
}

func newNativeTable(name, uri string, ds dataset.Dataset, opts connectOptions) *Table {
	return &Table{
		cachedName: name,
		cachedURI:  uri,
		impl:       newNative(name, uri, ds, opts),
	}
}

// Name returns the table's immutable name, cached at construction.
func (t *Table) Name() string { return t.cachedName }

// URI returns the table's location.
func (t *Table) URI() string { return t.cachedURI }

// Schema returns the Arrow schema of the current view.
func (t *Table) Schema(ctx context.Context) (*arrow.Schema, error) { return t.impl.schema(ctx) }

// CountRows returns the row count of the current view, optionally matching
// filter.
func (t *Table) CountRows(ctx context.Context, filter string) (int64, error) {
	return t.impl.countRows(ctx, filter)
}

// Add appends or overwrites stream according to params.Mode.
func (t *Table) Add(ctx context.Context, stream dataset.RecordIter, params dataset.WriteParams) error {
	return t.impl.add(ctx, stream, params)
}

// Delete removes rows matching predicate.
func (t *Table) Delete(ctx context.Context, predicate string) error {
	return t.impl.deleteRows(ctx, predicate)
}

// Update sets each column to its SQL expression, optionally gated by
// predicate.
func (t *Table) Update(ctx context.Context, predicate string, updates []dataset.ColumnUpdate) error {
	return t.impl.update(ctx, predicate, updates)
}

// MergeInsert returns a builder for a full outer join merge against source,
// joined on columns.
func (t *Table) MergeInsert(on ...string) *MergeInsertBuilder {
	return newMergeInsertBuilder(t, on)
}

// Search returns a Query pre-seeded with a nearest-neighbor target.
func (t *Table) Search(vector []float32) *Query {
	return newQuery(t).Nearest("", vector)
}

// Query returns a fresh, unconfigured Query over this table.
func (t *Table) Query() *Query { return newQuery(t) }

// CreateIndex returns the root of the index-builder tree.
func (t *Table) CreateIndex() *IndexBuilder { return newIndexBuilder(t) }

// AddColumns evaluates transform over readColumns (or all columns if empty)
// and appends the results as new columns.
func (t *Table) AddColumns(ctx context.Context, transform []dataset.ColumnUpdate, readColumns []string) error {
	return t.impl.addColumns(ctx, transform, readColumns)
}

// AlterColumns applies schema alterations (rename/retype/nullability).
func (t *Table) AlterColumns(ctx context.Context, alterations []dataset.ColumnAlteration) error {
	return t.impl.alterColumns(ctx, alterations)
}

// DropColumns removes the named columns.
func (t *Table) DropColumns(ctx context.Context, columns []string) error {
	return t.impl.dropColumns(ctx, columns)
}

// Optimize runs the requested maintenance action; see optimize.go.
func (t *Table) Optimize(ctx context.Context, action OptimizeAction) (OptimizeStats, error) {
	return t.impl.optimize(ctx, action)
}

// Checkout returns a Table pinned to version v (time-travel).
func (t *Table) Checkout(ctx context.Context, v dataset.Version) (*Table, error) {
	impl, err := t.impl.checkout(ctx, v)
	if err != nil {
		return nil, err
	}
	return &Table{cachedName: t.cachedName, cachedURI: t.cachedURI, impl: impl}, nil
}

// CheckoutLatest returns a Table that tracks new commits.
func (t *Table) CheckoutLatest(ctx context.Context) (*Table, error) {
	impl, err := t.impl.checkoutLatest(ctx)
	if err != nil {
		return nil, err
	}
	return &Table{cachedName: t.cachedName, cachedURI: t.cachedURI, impl: impl}, nil
}

// Stats consolidates fragment/file/version introspection (spec.md §9 open
// question (c)).
func (t *Table) Stats(ctx context.Context) (dataset.Stats, error) { return t.impl.stats(ctx) }

// ListIndices returns the indices defined on the current view.
func (t *Table) ListIndices(ctx context.Context) ([]dataset.IndexDef, error) {
	return t.impl.listIndices(ctx)
}

// IndexStatistics reports coverage for the named index.
func (t *Table) IndexStatistics(ctx context.Context, name string) (dataset.IndexStatistics, error) {
	return t.impl.indexStatistics(ctx, name)
}

// AsNative downcasts to native-only functionality, returning false for a
// remote table (spec.md §9, "downcast only for optional native-specific
// features").
func (t *Table) AsNative() (*nativeTable, bool) {
	n, ok := t.impl.(*nativeTable)
	return n, ok
}
