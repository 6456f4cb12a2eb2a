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
	"sync/atomic"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// MergeInsertBuilder configures a full outer join merge against a source
// stream, joined on the columns given to Table.MergeInsert (spec.md §3,
// "MergeInsert plan"). Clause absence means "do nothing" for that category.
// Execute consumes the builder; a second call fails (spec.md §9).
type MergeInsertBuilder struct {
	table *Table
	on    []string

	matchedUpdateAll bool
	matchedOnlyIf    string

	notMatchedInsertAll bool

	notMatchedBySourceDelete string

	consumed atomic.Bool
}

func newMergeInsertBuilder(t *Table, on []string) *MergeInsertBuilder {
	return &MergeInsertBuilder{table: t, on: on}
}

// WhenMatchedUpdateAll replaces the target row with the source row for
// every joined pair; OnlyIf (if later set) narrows that to rows where the
// predicate holds against the joined row.
func (b *MergeInsertBuilder) WhenMatchedUpdateAll() *MergeInsertBuilder {
	b.matchedUpdateAll = true
	return b
}

// OnlyIf narrows a prior WhenMatchedUpdateAll to rows where expr evaluates
// true against the joined row (columns may be qualified target./source.).
func (b *MergeInsertBuilder) OnlyIf(expr string) *MergeInsertBuilder {
	b.matchedOnlyIf = expr
	return b
}

// WhenNotMatchedInsertAll inserts source rows with no matching target key.
func (b *MergeInsertBuilder) WhenNotMatchedInsertAll() *MergeInsertBuilder {
	b.notMatchedInsertAll = true
	return b
}

// WhenNotMatchedBySourceDelete deletes target rows with no matching source
// key for which filter evaluates true; the literal string "true" deletes
// all such rows.
func (b *MergeInsertBuilder) WhenNotMatchedBySourceDelete(filter string) *MergeInsertBuilder {
	b.notMatchedBySourceDelete = filter
	return b
}

// Execute drains source, performs the join, and commits exactly one new
// dataset version (spec.md §4.4, note (c)).
func (b *MergeInsertBuilder) Execute(ctx context.Context, source dataset.RecordIter) (dataset.MergeInsertStats, error) {
	if b.consumed.Swap(true) {
		return dataset.MergeInsertStats{}, lanceerrors.ErrBuilderAlreadyExecuted.New("MergeInsertBuilder")
	}
	plan := dataset.MergeInsertPlan{
		On:                           b.on,
		WhenMatchedUpdateAll:         b.matchedUpdateAll,
		WhenMatchedOnlyIf:            b.matchedOnlyIf,
		WhenNotMatchedInsertAll:      b.notMatchedInsertAll,
		WhenNotMatchedBySourceExist:  b.notMatchedBySourceDelete != "",
		WhenNotMatchedBySourceDelete: b.notMatchedBySourceDelete,
	}
	return b.table.impl.mergeInsert(ctx, b.on, source, plan)
}
