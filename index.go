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
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/internal/lanceschema"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// IndexBuilder is the root of the two-level fluent index-creation tree
// (spec.md §3). Each level exclusively owns its predecessor's state;
// Execute on a leaf builder consumes the whole chain and refuses a second
// call (spec.md §9, "fluent builders that consume themselves").
type IndexBuilder struct {
	table    *Table
	column   string
	replace  bool
	consumed atomic.Bool
}

// markConsumed returns an error if this builder chain was already
// executed, otherwise marks it executed and returns nil.
func (b *IndexBuilder) markConsumed() error {
	if b.consumed.Swap(true) {
		return lanceerrors.ErrBuilderAlreadyExecuted.New("IndexBuilder")
	}
	return nil
}

func newIndexBuilder(t *Table) *IndexBuilder {
	return &IndexBuilder{table: t, replace: true}
}

// Column pins the single column to index.
func (b *IndexBuilder) Column(c string) *IndexBuilder { b.column = c; return b }

// Replace controls whether rebuilding an existing index on the same
// column is allowed; default true.
func (b *IndexBuilder) Replace(r bool) *IndexBuilder { b.replace = r; return b }

// Scalar descends into the B-tree index branch.
func (b *IndexBuilder) Scalar() *ScalarIndexBuilder { return &ScalarIndexBuilder{root: b} }

// Vector descends into the IVF-PQ index branch.
func (b *IndexBuilder) Vector() *VectorIndexBuilder { return &VectorIndexBuilder{root: b} }

func (b *IndexBuilder) logger() *logrus.Entry {
	if n, ok := b.table.AsNative(); ok && n.log != nil {
		return n.log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ScalarIndexBuilder is the B-tree branch of the index-builder tree.
type ScalarIndexBuilder struct{ root *IndexBuilder }

// BTree selects the block-level B-tree scalar index.
func (s *ScalarIndexBuilder) BTree() *BTreeIndexBuilder { return &BTreeIndexBuilder{root: s.root} }

// BTreeIndexBuilder is the leaf of the scalar branch.
type BTreeIndexBuilder struct{ root *IndexBuilder }

// Execute validates the column and commits a new B-tree index.
func (b *BTreeIndexBuilder) Execute(ctx context.Context) error {
	root := b.root
	if err := root.markConsumed(); err != nil {
		return err
	}
	if root.column == "" {
		return lanceerrors.ErrInvalidInput.New("column must be set before create_index().scalar().btree()")
	}
	schema, err := root.table.Schema(ctx)
	if err != nil {
		return err
	}
	f, ok := lanceschema.FindColumn(schema, root.column)
	if !ok {
		return lanceerrors.ErrSchema.New(fmt.Sprintf("column %q not found", root.column))
	}
	if !lanceschema.IsBTreeSupported(f.Type) {
		return lanceerrors.ErrSchema.New(fmt.Sprintf("column %q has unsupported type %s for a B-tree index", root.column, f.Type))
	}
	return root.table.impl.createIndex(ctx, []string{root.column}, dataset.IndexKindBTree, "", dataset.ScalarIndexParams{Replace: root.replace}, root.replace)
}

// VectorIndexBuilder is the vector branch of the index-builder tree.
type VectorIndexBuilder struct{ root *IndexBuilder }

// IvfPq selects the IVF-PQ approximate vector index, with spec defaults:
// distance_type=L2, sample_rate=256, max_iterations=50, num_bits=8;
// num_partitions and num_sub_vectors are inferred at Execute time unless
// overridden.
func (v *VectorIndexBuilder) IvfPq() *IvfPqIndexBuilder {
	return &IvfPqIndexBuilder{
		root:          v.root,
		distanceType:  dataset.L2,
		sampleRate:    256,
		maxIterations: 50,
		numBits:       8,
	}
}

// IvfPqIndexBuilder is the leaf of the vector branch.
type IvfPqIndexBuilder struct {
	root          *IndexBuilder
	distanceType  dataset.DistanceType
	numPartitions uint32
	numSubVectors uint32
	numBits       uint32
	sampleRate    uint32
	maxIterations uint32
}

// DistanceType overrides the default L2 metric.
func (b *IvfPqIndexBuilder) DistanceType(dt dataset.DistanceType) *IvfPqIndexBuilder {
	b.distanceType = dt
	return b
}

// NumPartitions overrides the inferred partition count.
func (b *IvfPqIndexBuilder) NumPartitions(n uint32) *IvfPqIndexBuilder { b.numPartitions = n; return b }

// NumSubVectors overrides the inferred PQ sub-vector count.
func (b *IvfPqIndexBuilder) NumSubVectors(n uint32) *IvfPqIndexBuilder { b.numSubVectors = n; return b }

// SampleRate overrides the training sample multiplier (default 256).
func (b *IvfPqIndexBuilder) SampleRate(n uint32) *IvfPqIndexBuilder { b.sampleRate = n; return b }

// MaxIterations overrides the k-means iteration cap (default 50).
func (b *IvfPqIndexBuilder) MaxIterations(n uint32) *IvfPqIndexBuilder { b.maxIterations = n; return b }

// Execute infers the remaining parameters and commits a new IVF-PQ index.
func (b *IvfPqIndexBuilder) Execute(ctx context.Context) error {
	root := b.root
	if err := root.markConsumed(); err != nil {
		return err
	}
	schema, err := root.table.Schema(ctx)
	if err != nil {
		return err
	}

	column := root.column
	var dim int32
	if column == "" {
		column, dim, err = lanceschema.InferSoleVectorColumn(schema)
		if err != nil {
			return err
		}
	} else {
		f, ok := lanceschema.FindColumn(schema, column)
		if !ok {
			return lanceerrors.ErrSchema.New(fmt.Sprintf("column %q not found", column))
		}
		d, ok := lanceschema.VectorDim(f.Type)
		if !ok {
			return lanceerrors.ErrSchema.New(fmt.Sprintf("column %q is not a floating FixedSizeList", column))
		}
		dim = d
	}

	numPartitions := b.numPartitions
	if numPartitions == 0 {
		numRows, err := root.table.CountRows(ctx, "")
		if err != nil {
			return err
		}
		numPartitions = uint32(math.Max(1, math.Floor(math.Sqrt(float64(numRows)))))
	}

	numSubVectors := b.numSubVectors
	if numSubVectors == 0 {
		switch {
		case dim%16 == 0:
			numSubVectors = uint32(dim / 16)
		case dim%8 == 0:
			numSubVectors = uint32(dim / 8)
		default:
			numSubVectors = 1
			root.logger().Warnf("vector column %q has dim %d not aligned to 8 or 16; PQ SIMD lanes will not be aligned", column, dim)
		}
	}

	params := dataset.IvfPqIndexParams{
		Replace:       root.replace,
		DistanceType:  b.distanceType,
		NumPartitions: numPartitions,
		NumSubVectors: numSubVectors,
		NumBits:       b.numBits,
		SampleRate:    b.sampleRate,
		MaxIterations: b.maxIterations,
	}
	return root.table.impl.createIndex(ctx, []string{column}, dataset.IndexKindIvfPq, "", params, root.replace)
}
