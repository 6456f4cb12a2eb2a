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

package lancedb_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancedb/lancedb-go"
	"github.com/lancedb/lancedb-go/dataset"
)

func buildANNTable(t *testing.T, uri string, n int) *lancedb.Table {
	t.Helper()
	ctx := context.Background()
	conn := lancedb.Connect()

	ids := make([]int32, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = int32(i)
		vecs[i] = []float32{float32(i) * 0.01, 0.1, 0.1, 0.1}
	}
	table, err := conn.CreateTable(ctx, uri, newSliceRecordIter(vectorIDRecord(ids, vecs, 4)), dataset.WriteParams{})
	require.NoError(t, err)
	return table
}

// TestANNPostfilterMayUndershootLimit covers scenario S4's default postfilter
// behavior: ranking the nearest limit candidates before applying the filter
// can yield fewer than limit rows once odd ids are discarded.
func TestANNPostfilterMayUndershootLimit(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://s4-postfilter", 512)

	it, err := table.Query().
		Nearest("embeddings", []float32{0.1, 0.1, 0.1, 0.1}).
		Filter("id % 2 = 0").
		Limit(10).
		ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.NumRows(), int64(10))
}

// TestANNPrefilterReachesExactLimit covers scenario S4's prefilter case: with
// enough matching rows, prefiltering before ranking reaches the full limit.
func TestANNPrefilterReachesExactLimit(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://s4-prefilter", 512)

	it, err := table.Query().
		Nearest("embeddings", []float32{0.1, 0.1, 0.1, 0.1}).
		Filter("id % 2 = 0").
		Prefilter(true).
		Limit(10).
		ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.NumRows())
}

func TestQueryDefaultsToLimitTenForVectorSearch(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://s4-default-limit", 100)

	it, err := table.Query().Nearest("embeddings", []float32{0, 0, 0, 0}).ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.NumRows())
}

func TestQueryCannotExecuteTwice(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://s4-reexecute", 20)

	q := table.Query().Nearest("embeddings", []float32{0, 0, 0, 0}).Limit(5)
	_, err := q.ExecuteStream(ctx)
	require.NoError(t, err)

	_, err = q.ExecuteStream(ctx)
	require.Error(t, err)
}

// TestCountRowsMatchesFilteredQuery pins the filter-idempotence property:
// count_rows with a filter equals the number of rows a filtered full scan
// emits.
func TestCountRowsMatchesFilteredQuery(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://filter-idempotence", 64)

	n, err := table.CountRows(ctx, "id >= 32")
	require.NoError(t, err)

	it, err := table.Query().Filter("id >= 32").ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, rec.NumRows())
}

// TestSelectWithProjectionEvaluatesExpressions pins the projection
// faithfulness property on a simple arithmetic expression.
func TestSelectWithProjectionEvaluatesExpressions(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	table, err := conn.CreateTable(ctx, "memory://projection-eval",
		newSliceRecordIter(intRecord([]int32{0, 1, 2, 3, 4})), dataset.WriteParams{})
	require.NoError(t, err)

	it, err := table.Query().
		SelectWithProjection(dataset.ProjectionExpr{Alias: "doubled", Expr: "i * 2"}).
		ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.NumCols())
	assert.Equal(t, "doubled", rec.ColumnName(0))
	col := rec.Column(0).(*array.String)
	for i := 0; i < int(rec.NumRows()); i++ {
		assert.Equal(t, fmt.Sprintf("%d", i*2), col.Value(i))
	}
}

func TestQueryProjectionSelectsOnlyRequestedColumns(t *testing.T) {
	ctx := context.Background()
	table := buildANNTable(t, "memory://s4-projection", 10)

	it, err := table.Query().Select("id").Limit(10).ExecuteStream(ctx)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.NumCols())
	assert.Equal(t, "id", rec.ColumnName(0))
}
