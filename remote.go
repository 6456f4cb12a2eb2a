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
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// remoteTable is the RPC-backed tableInternal implementation (spec.md §9,
// "dynamic polymorphism"). The RPC client for hosted tables is out of
// scope for this core (spec.md §1); every method returns ErrNotSupported
// rather than being implemented ad hoc, per Open Question (b).
type remoteTable struct {
	tableName string
	tableURI  string
}

var _ tableInternal = (*remoteTable)(nil)

// newRemoteTable constructs a facade over a table hosted behind an RPC
// endpoint. It holds only the name and uri and has no RPC client; this core
// only provides the shape of the adapter.
func newRemoteTable(name, uri string) *remoteTable {
	return &remoteTable{tableName: name, tableURI: uri}
}

func (t *remoteTable) name() string { return t.tableName }
func (t *remoteTable) uri() string  { return t.tableURI }

func (t *remoteTable) notSupported(op string) error {
	return lanceerrors.ErrNotSupported.New(op + " (remote table)")
}

func (t *remoteTable) schema(ctx context.Context) (*arrow.Schema, error) {
	return nil, t.notSupported("schema")
}

func (t *remoteTable) countRows(ctx context.Context, filter string) (int64, error) {
	return 0, t.notSupported("count_rows")
}

func (t *remoteTable) add(ctx context.Context, stream dataset.RecordIter, params dataset.WriteParams) error {
	return t.notSupported("add")
}

func (t *remoteTable) deleteRows(ctx context.Context, predicate string) error {
	return t.notSupported("delete")
}

func (t *remoteTable) update(ctx context.Context, predicate string, updates []dataset.ColumnUpdate) error {
	return t.notSupported("update")
}

func (t *remoteTable) mergeInsert(ctx context.Context, on []string, source dataset.RecordIter, plan dataset.MergeInsertPlan) (dataset.MergeInsertStats, error) {
	return dataset.MergeInsertStats{}, t.notSupported("merge_insert")
}

func (t *remoteTable) newScan(ctx context.Context) (dataset.Scanner, error) {
	return nil, t.notSupported("query")
}

func (t *remoteTable) createIndex(ctx context.Context, columns []string, kind dataset.IndexKind, name string, params dataset.IndexParams, replace bool) error {
	return t.notSupported("create_index")
}

func (t *remoteTable) addColumns(ctx context.Context, transform []dataset.ColumnUpdate, readColumns []string) error {
	return t.notSupported("add_columns")
}

func (t *remoteTable) alterColumns(ctx context.Context, alterations []dataset.ColumnAlteration) error {
	return t.notSupported("alter_columns")
}

func (t *remoteTable) dropColumns(ctx context.Context, columns []string) error {
	return t.notSupported("drop_columns")
}

func (t *remoteTable) optimize(ctx context.Context, action OptimizeAction) (OptimizeStats, error) {
	return OptimizeStats{}, t.notSupported("optimize")
}

func (t *remoteTable) checkout(ctx context.Context, v dataset.Version) (tableInternal, error) {
	return nil, t.notSupported("checkout")
}

func (t *remoteTable) checkoutLatest(ctx context.Context) (tableInternal, error) {
	return nil, t.notSupported("checkout_latest")
}

func (t *remoteTable) stats(ctx context.Context) (dataset.Stats, error) {
	return dataset.Stats{}, t.notSupported("stats")
}

func (t *remoteTable) listIndices(ctx context.Context) ([]dataset.IndexDef, error) {
	return nil, t.notSupported("list_indices")
}

func (t *remoteTable) indexStatistics(ctx context.Context, name string) (dataset.IndexStatistics, error) {
	return dataset.IndexStatistics{}, t.notSupported("index_statistics")
}
