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
	"fmt"
	"math/rand"
	"sort"

	"github.com/blastrain/vitess-sqlparser/sqlparser"

	"github.com/lancedb/lancedb-go/dataset"
)

// builtIndex is the in-memory realization of one dataset.IndexDef: either a
// sorted B-tree-shaped key list or a trained IVF-PQ-shaped partitioning.
// Training is approximate (exact k-means-lite, no product quantization) —
// see DESIGN.md's note on the domain-stack substitution for the
// out-of-scope distance-kernel substrate.
type builtIndex struct {
	def            dataset.IndexDef
	numIndexedRows int64

	// btree
	sortedKeys []btreeKey

	// ivf_pq
	centroids [][]float32
}

type btreeKey struct {
	value interface{}
	row   int
}

// buildBTreeIndex sorts row indices by column value for range-scan use; the
// actual scan path in this substrate still does a linear filter evaluation,
// matching spec.md §4.3's note that the B-tree has no tuning parameters at
// this revision.
func buildBTreeIndex(name, column string, rows []Row, params dataset.ScalarIndexParams) (*builtIndex, error) {
	keys := make([]btreeKey, len(rows))
	for i, r := range rows {
		v, _ := r.Get(column)
		keys[i] = btreeKey{value: v, row: i}
	}
	sort.SliceStable(keys, func(a, b int) bool {
		lt, _ := compare(sqlparser.LessThanStr, keys[a].value, keys[b].value)
		less, _ := lt.(bool)
		return less
	})
	return &builtIndex{
		def: dataset.IndexDef{
			Name: name, Kind: dataset.IndexKindBTree, Columns: []string{column}, Params: params,
		},
		numIndexedRows: int64(len(rows)),
		sortedKeys:     keys,
	}, nil
}

// buildIvfPqIndex trains numPartitions centroids over a sample of the
// vectors in rows[column] using a bounded number of Lloyd's-algorithm
// iterations. Only the centroids are stored; a row's partition is its
// nearest centroid, computed at scan time (see narrowByIvfPq).
func buildIvfPqIndex(name, column string, rows []Row, params dataset.IvfPqIndexParams) (*builtIndex, error) {
	vectors := make([][]float32, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Get(column)
		if !ok {
			return nil, fmt.Errorf("memds: column %q not present in row", column)
		}
		vec, ok := v.([]float32)
		if !ok {
			return nil, fmt.Errorf("memds: column %q is not a vector column", column)
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("memds: cannot train an index with zero rows")
	}

	numPartitions := int(params.NumPartitions)
	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > len(vectors) {
		numPartitions = len(vectors)
	}

	sampleSize := int(params.SampleRate) * numPartitions
	sample := sampleVectors(vectors, sampleSize)

	centroids := kmeansLite(sample, numPartitions, int(params.MaxIterations), params.DistanceType)

	return &builtIndex{
		def: dataset.IndexDef{
			Name: name, Kind: dataset.IndexKindIvfPq, Columns: []string{column}, Params: params,
		},
		numIndexedRows: int64(len(rows)),
		centroids:      centroids,
	}, nil
}

// sampleVectors deterministically samples up to n vectors (a fixed RNG seed
// keeps training, and therefore index membership, reproducible across runs
// for the same dataset).
func sampleVectors(vectors [][]float32, n int) [][]float32 {
	if n <= 0 || n >= len(vectors) {
		return vectors
	}
	rng := rand.New(rand.NewSource(1))
	idx := rng.Perm(len(vectors))[:n]
	out := make([][]float32, n)
	for i, j := range idx {
		out[i] = vectors[j]
	}
	return out
}

func kmeansLite(vectors [][]float32, k, maxIterations int, dt dataset.DistanceType) [][]float32 {
	if k >= len(vectors) {
		return vectors
	}
	rng := rand.New(rand.NewSource(2))
	centroids := make([][]float32, k)
	for i, j := range rng.Perm(len(vectors))[:k] {
		centroids[i] = vectors[j]
	}
	if maxIterations < 1 {
		maxIterations = 1
	}
	assignment := make([]int, len(vectors))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			c := nearestCentroid(dt, v, centroids)
			if c != assignment[i] {
				assignment[i] = c
				changed = true
			}
		}
		buckets := make([][][]float32, k)
		for i, v := range vectors {
			c := assignment[i]
			buckets[c] = append(buckets[c], v)
		}
		for i, b := range buckets {
			if len(b) > 0 {
				centroids[i] = centroidOf(b)
			}
		}
		if !changed && iter > 0 {
			break
		}
	}
	return centroids
}

// statistics reports per-index coverage, consulting the current
// snapshot's total row count for the column the index covers (spec.md §6,
// "index_statistics(name)").
func (idx *builtIndex) statistics(totalRows int64) dataset.IndexStatistics {
	unindexed := totalRows - idx.numIndexedRows
	if unindexed < 0 {
		unindexed = 0
	}
	return dataset.IndexStatistics{
		NumIndexedRows:   idx.numIndexedRows,
		NumUnindexedRows: unindexed,
	}
}

