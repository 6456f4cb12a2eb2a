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

func TestWriteAndCountRows(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1, 2}, []int64{10, 20, 30})
	ds, err := openDataset(ctx, "memory://dataset-count", rec)
	require.NoError(t, err)

	n, err := ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = ds.CountRows(ctx, "age > 15")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestWriteAppend(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1}, []int64{10, 20})
	ds, err := openDataset(ctx, "memory://dataset-append", rec)
	require.NoError(t, err)

	more := idAgeRecord([]int64{2, 3}, []int64{30, 40})
	ds, err = ds.Write(ctx, newSingleRecordIter(more), dataset.WriteParams{Mode: dataset.WriteAppend})
	require.NoError(t, err)

	n, err := ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.EqualValues(t, 2, ds.Version(ctx))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1, 2, 3}, []int64{10, 20, 30, 40})
	ds, err := openDataset(ctx, "memory://dataset-delete", rec)
	require.NoError(t, err)

	ds, err = ds.Delete(ctx, "age >= 30")
	require.NoError(t, err)

	n, err := ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1, 2}, []int64{10, 20, 30})
	ds, err := openDataset(ctx, "memory://dataset-update", rec)
	require.NoError(t, err)

	ds, err = ds.Update(ctx, "id = 1", []dataset.ColumnUpdate{{Column: "age", Expr: "99"}})
	require.NoError(t, err)

	n, err := ds.CountRows(ctx, "age = 99")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestCreateIndexRejectsCollisionWithoutReplace(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1, 2}, []int64{10, 20, 30})
	ds, err := openDataset(ctx, "memory://dataset-index-collision", rec)
	require.NoError(t, err)

	ds, err = ds.CreateIndex(ctx, []string{"age"}, dataset.IndexKindBTree, "age_idx", dataset.ScalarIndexParams{}, false)
	require.NoError(t, err)

	_, err = ds.CreateIndex(ctx, []string{"age"}, dataset.IndexKindBTree, "age_idx", dataset.ScalarIndexParams{}, false)
	require.Error(t, err)

	ds, err = ds.CreateIndex(ctx, []string{"age"}, dataset.IndexKindBTree, "age_idx", dataset.ScalarIndexParams{}, true)
	require.NoError(t, err)

	indices, err := ds.ListIndices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 1)
}

func TestIvfPqIndexStatistics(t *testing.T) {
	ctx := context.Background()
	ids := make([]int64, 0, 512)
	vecs := make([][]float32, 0, 512)
	for i := int64(0); i < 512; i++ {
		ids = append(ids, i)
		vecs = append(vecs, []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3})
	}
	rec := vectorRecord(ids, vecs, 4)
	ds, err := openDataset(ctx, "memory://dataset-ivfpq-stats", rec)
	require.NoError(t, err)

	ds, err = ds.CreateIndex(ctx, []string{"embedding"}, dataset.IndexKindIvfPq, "vec_idx",
		dataset.IvfPqIndexParams{NumPartitions: 16, NumSubVectors: 1, NumBits: 8, SampleRate: 256, MaxIterations: 50}, false)
	require.NoError(t, err)

	indices, err := ds.ListIndices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 1)

	stats, err := ds.IndexStatistics(ctx, "vec_idx")
	require.NoError(t, err)
	assert.EqualValues(t, 512, stats.NumIndexedRows)
	assert.EqualValues(t, 0, stats.NumUnindexedRows)
}

func TestCompactFilesMergesFragments(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0, 1}, []int64{10, 20})
	ds, err := openDataset(ctx, "memory://dataset-compact", rec)
	require.NoError(t, err)

	more := idAgeRecord([]int64{2, 3}, []int64{30, 40})
	ds, err = ds.Write(ctx, newSingleRecordIter(more), dataset.WriteParams{Mode: dataset.WriteAppend})
	require.NoError(t, err)

	ds, _, err = ds.CompactFiles(ctx, dataset.CompactOptions{}, nil)
	require.NoError(t, err)

	n, err := ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestCheckoutPinsVersion(t *testing.T) {
	ctx := context.Background()
	rec := idAgeRecord([]int64{0}, []int64{10})
	ds, err := openDataset(ctx, "memory://dataset-checkout", rec)
	require.NoError(t, err)
	v1 := ds.Version(ctx)

	more := idAgeRecord([]int64{1}, []int64{20})
	ds, err = ds.Write(ctx, newSingleRecordIter(more), dataset.WriteParams{Mode: dataset.WriteAppend})
	require.NoError(t, err)

	pinned, err := ds.WithVersion(ctx, v1)
	require.NoError(t, err)
	n, err := pinned.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = ds.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
