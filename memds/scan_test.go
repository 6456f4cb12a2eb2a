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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancedb/lancedb-go/dataset"
)

func buildVectorDataset(t *testing.T, uri string, n int) dataset.Dataset {
	t.Helper()
	ids := make([]int64, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(i)
		vecs[i] = []float32{float32(i), 0, 0, 0}
	}
	rec := vectorRecord(ids, vecs, 4)
	ds, err := openDataset(context.Background(), uri, rec)
	require.NoError(t, err)
	return ds
}

func drainOne(t *testing.T, it dataset.RecordIter) int64 {
	t.Helper()
	ctx := context.Background()
	rec, err := it.Next(ctx)
	if err != nil {
		return 0
	}
	n := rec.NumRows()
	_, err = it.Next(ctx)
	require.Error(t, err) // one-shot: second Next must terminate the stream
	return n
}

func TestNearestHonorsLimitTen(t *testing.T) {
	ctx := context.Background()
	ds := buildVectorDataset(t, "memory://scan-default-limit", 512)

	it, err := ds.Scan(ctx).Nearest("embedding", []float32{0, 0, 0, 0}).Limit(10).TryIntoStream(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, drainOne(t, it))
}

func TestPrefilterYieldsExactlyLimitWhenEnoughMatches(t *testing.T) {
	ctx := context.Background()
	ds := buildVectorDataset(t, "memory://scan-prefilter", 512)

	it, err := ds.Scan(ctx).
		Nearest("embedding", []float32{0, 0, 0, 0}).
		Filter("id % 2 = 0").
		Prefilter(true).
		Limit(10).
		TryIntoStream(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, drainOne(t, it))
}

func TestPostfilterMayYieldFewerThanLimit(t *testing.T) {
	ctx := context.Background()
	// Only 1 row satisfies the filter; ranking 10 nearest candidates first
	// (postfilter, the default) can leave fewer than limit after filtering.
	ids := []int64{0, 1, 2, 3}
	vecs := [][]float32{{0, 0, 0, 0}, {1, 0, 0, 0}, {2, 0, 0, 0}, {3, 0, 0, 0}}
	rec := vectorRecord(ids, vecs, 4)
	ds, err := openDataset(ctx, "memory://scan-postfilter", rec)
	require.NoError(t, err)

	it, err := ds.Scan(ctx).
		Nearest("embedding", []float32{0, 0, 0, 0}).
		Filter("id = 3").
		Limit(10).
		TryIntoStream(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, drainOne(t, it))
}

func TestNprobesNarrowsIvfPqCandidates(t *testing.T) {
	ctx := context.Background()
	ds := buildVectorDataset(t, "memory://scan-nprobes", 512)

	ds, err := ds.CreateIndex(ctx, []string{"embedding"}, dataset.IndexKindIvfPq, "vec_idx",
		dataset.IvfPqIndexParams{NumPartitions: 16, NumSubVectors: 1, NumBits: 8, SampleRate: 256, MaxIterations: 50}, false)
	require.NoError(t, err)

	it, err := ds.Scan(ctx).
		Nearest("embedding", []float32{0, 0, 0, 0}).
		Nprobes(1).
		Limit(5).
		TryIntoStream(ctx)
	require.NoError(t, err)
	n := drainOne(t, it)
	assert.LessOrEqual(t, n, int64(5))
	assert.Greater(t, n, int64(0))
}

func TestUseIndexFalseIgnoresIndex(t *testing.T) {
	ctx := context.Background()
	ds := buildVectorDataset(t, "memory://scan-noindex", 20)

	ds, err := ds.CreateIndex(ctx, []string{"embedding"}, dataset.IndexKindIvfPq, "vec_idx",
		dataset.IvfPqIndexParams{NumPartitions: 4, NumSubVectors: 1, NumBits: 8, SampleRate: 256, MaxIterations: 50}, false)
	require.NoError(t, err)

	it, err := ds.Scan(ctx).
		Nearest("embedding", []float32{0, 0, 0, 0}).
		UseIndex(false).
		Limit(20).
		TryIntoStream(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 20, drainOne(t, it))
}
