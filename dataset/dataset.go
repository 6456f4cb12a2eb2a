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

// Package dataset specifies the interface of the dataset substrate that the
// table engine sits on top of: the on-disk columnar file format, manifest
// layout, and transactional commit protocol are out of scope for this core
// (spec.md §1) and are represented here only as the Go interfaces the
// engine touches (spec.md §6, "External Interfaces (downward)").
//
// memds provides the in-memory implementation of this interface used by the
// engine's own tests; a real deployment would back it with the lance file
// format and an object store.
package dataset

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
)

// Version is a monotonically increasing dataset version number.
type Version uint64

// WriteMode selects append vs. overwrite semantics for a write.
type WriteMode int

const (
	// WriteAppend appends the new rows to the existing dataset.
	WriteAppend WriteMode = iota
	// WriteOverwrite replaces the entire dataset with the new rows.
	WriteOverwrite
)

// WriteParams configures Write and Table.Add.
type WriteParams struct {
	Mode WriteMode
}

// DistanceType selects the vector distance function used by IVF-PQ indices
// and ANN queries.
type DistanceType int

const (
	// L2 is Euclidean distance, the default.
	L2 DistanceType = iota
	// Cosine is cosine distance.
	Cosine
	// Dot is (negative) dot-product distance.
	Dot
)

func (d DistanceType) String() string {
	switch d {
	case L2:
		return "l2"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	default:
		return "unknown"
	}
}

// IndexParams is the sum of the parameter sets accepted by CreateIndex: a
// ScalarIndexParams for a B-tree index or an IvfPqIndexParams for a vector
// index (spec.md §3, "IndexBuilder tree").
type IndexParams interface {
	isIndexParams()
}

// ScalarIndexParams configures a B-tree scalar index. There are no tuning
// parameters at this spec revision (spec.md §4.3).
type ScalarIndexParams struct {
	Replace bool
}

func (ScalarIndexParams) isIndexParams() {}

// IvfPqIndexParams configures an IVF-PQ vector index.
type IvfPqIndexParams struct {
	Replace       bool
	DistanceType  DistanceType
	NumPartitions uint32
	NumSubVectors uint32
	NumBits       uint32
	SampleRate    uint32
	MaxIterations uint32
}

func (IvfPqIndexParams) isIndexParams() {}

// IndexKind distinguishes the two index families the core builds.
type IndexKind int

const (
	// IndexKindBTree is the block-level B-tree scalar index.
	IndexKindBTree IndexKind = iota
	// IndexKindIvfPq is the IVF-PQ approximate vector index.
	IndexKindIvfPq
)

// IndexDef describes an index that exists (or is being created) on a dataset.
type IndexDef struct {
	Name    string
	Kind    IndexKind
	Columns []string
	Params  IndexParams
}

// IndexStatistics reports how much of a vector index's column is covered,
// per spec.md §6 ("index_statistics(name) returning JSON with
// num_indexed_rows/num_unindexed_rows").
type IndexStatistics struct {
	NumIndexedRows   int64
	NumUnindexedRows int64
}

// ColumnUpdate is one (column, sql expression) pair for Table.Update.
type ColumnUpdate struct {
	Column string
	Expr   string
}

// MergeInsertPlan is the substrate-level form of the merge-insert clauses
// described in spec.md §3/§4.4.
type MergeInsertPlan struct {
	On                           []string
	WhenMatchedUpdateAll         bool
	WhenMatchedOnlyIf            string // empty means unconditional
	WhenNotMatchedInsertAll      bool
	WhenNotMatchedBySourceExist  bool
	WhenNotMatchedBySourceDelete string // "" means clause absent; "true" deletes all
}

// MergeInsertStats reports how many rows were touched by a merge-insert.
type MergeInsertStats struct {
	NumInserted int64
	NumUpdated  int64
	NumDeleted  int64
}

// CompactOptions configures a compaction pass.
type CompactOptions struct {
	TargetRowsPerFragment int64
	MaterializeDeletions  bool
}

// CompactStats reports the result of a compaction pass.
type CompactStats struct {
	FragmentsRemoved int64
	FragmentsAdded   int64
	FilesRemoved     int64
	FilesAdded       int64
}

// RemapOptions configures how row ids are remapped to dependent indices
// after a compaction; left minimal, the remapping logic itself lives in the
// out-of-scope index substrate.
type RemapOptions struct {
	Enabled bool
}

// PruneStats reports the result of a version-pruning pass.
type PruneStats struct {
	BytesRemoved       int64
	OldVersionsRemoved int64
}

// OptimizeIndicesOptions configures an index-optimization pass.
type OptimizeIndicesOptions struct {
	// NumIndicesToMerge caps how many un-indexed delta fragments are folded into
	// existing index partitions in one optimize pass; 0 means "no limit".
	NumIndicesToMerge int
}

// IndexOptimizeStats reports the result of an index-optimization pass.
type IndexOptimizeStats struct {
	IndicesMerged   int64
	FragmentsFolded int64
}

// Stats consolidates the dataset-level introspection the engine exposes
// through Table.Stats, per spec.md §9 design note (c): count_fragments,
// num_small_files and similar are grouped into one accessor.
type Stats struct {
	NumRows       int64
	NumFragments  int64
	NumSmallFiles int64
	NumVersions   int64
}

// Dataset is the versioned, columnar dataset handle the table engine is
// built on top of.
type Dataset interface {
	// Version returns the version this handle is pinned to (time-travel) or
	// was most recently refreshed to (latest).
	Version(ctx context.Context) Version
	// Schema returns the Arrow schema of the dataset.
	Schema(ctx context.Context) *arrow.Schema
	// CountRows returns the number of rows, optionally matching filter.
	CountRows(ctx context.Context, filter string) (int64, error)
	// Scan begins a new scan against this dataset version.
	Scan(ctx context.Context) Scanner
	// Write appends or overwrites rows; returns the dataset at the new version.
	Write(ctx context.Context, rows RecordIter, params WriteParams) (Dataset, error)
	// Delete removes rows matching predicate; returns the dataset at the new version.
	Delete(ctx context.Context, predicate string) (Dataset, error)
	// Update sets columns to SQL expressions, optionally gated by predicate.
	Update(ctx context.Context, predicate string, updates []ColumnUpdate) (Dataset, error)
	// MergeInsert performs a full outer join against source on plan.On and applies plan.
	MergeInsert(ctx context.Context, source RecordIter, plan MergeInsertPlan) (Dataset, MergeInsertStats, error)
	// CreateIndex builds (or rebuilds) an index on columns.
	CreateIndex(ctx context.Context, columns []string, kind IndexKind, name string, params IndexParams, replace bool) (Dataset, error)
	// ListIndices returns the indices defined on this dataset.
	ListIndices(ctx context.Context) ([]IndexDef, error)
	// IndexStatistics reports coverage for the named index.
	IndexStatistics(ctx context.Context, name string) (IndexStatistics, error)
	// CleanupOldVersions prunes manifest versions older than olderThan.
	CleanupOldVersions(ctx context.Context, olderThan time.Duration, deleteUnverified bool) (PruneStats, error)
	// CompactFiles merges small fragments into larger ones.
	CompactFiles(ctx context.Context, opts CompactOptions, remap *RemapOptions) (Dataset, CompactStats, error)
	// OptimizeIndices folds un-indexed delta fragments into existing indices.
	OptimizeIndices(ctx context.Context, opts OptimizeIndicesOptions) (Dataset, IndexOptimizeStats, error)
	// AddColumns evaluates transform over readColumns (or all columns, if empty) and appends the result.
	AddColumns(ctx context.Context, transform []ColumnUpdate, readColumns []string) (Dataset, error)
	// AlterColumns applies the given column alterations (rename/retype/nullability).
	AlterColumns(ctx context.Context, alterations []ColumnAlteration) (Dataset, error)
	// DropColumns removes the named columns.
	DropColumns(ctx context.Context, columns []string) (Dataset, error)
	// Stats consolidates fragment/file/version introspection.
	Stats(ctx context.Context) (Stats, error)
	// WithVersion returns a handle pinned to v (time-travel).
	WithVersion(ctx context.Context, v Version) (Dataset, error)
	// CheckoutLatest returns a handle that tracks new commits.
	CheckoutLatest(ctx context.Context) (Dataset, error)
}

// ColumnAlteration describes one column's schema change under AlterColumns.
type ColumnAlteration struct {
	Name        string
	NewName     string         // "" means unchanged
	NewType     arrow.DataType // nil means unchanged
	NewNullable *bool
}

// OpenParams configures Open.
type OpenParams struct {
	Version Version // 0 means "latest"
}
