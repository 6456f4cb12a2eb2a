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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancedb/lancedb-go"
	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// TestCreateCountAppend covers scenario S1.
func TestCreateCountAppend(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	ids := make([]int32, 10)
	for i := range ids {
		ids[i] = int32(i)
	}
	table, err := conn.CreateTable(ctx, "memory://s1-test", newSliceRecordIter(intRecord(ids)), dataset.WriteParams{})
	require.NoError(t, err)
	assert.Equal(t, "s1-test", table.Name())

	n, err := table.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	n, err = table.CountRows(ctx, "i >= 5")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	more := make([]int32, 10)
	for i := range more {
		more[i] = int32(100 + i)
	}
	require.NoError(t, table.Add(ctx, newSliceRecordIter(intRecord(more)), dataset.WriteParams{Mode: dataset.WriteAppend}))

	n, err = table.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

// TestOverwriteViaMode covers scenario S2.
func TestOverwriteViaMode(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	ids := make([]int32, 10)
	for i := range ids {
		ids[i] = int32(i)
	}
	table, err := conn.CreateTable(ctx, "memory://s2-test", newSliceRecordIter(intRecord(ids)), dataset.WriteParams{})
	require.NoError(t, err)

	more := make([]int32, 10)
	for i := range more {
		more[i] = int32(100 + i)
	}
	require.NoError(t, table.Add(ctx, newSliceRecordIter(intRecord(more)), dataset.WriteParams{Mode: dataset.WriteOverwrite}))

	n, err := table.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	n, err = table.CountRows(ctx, "i >= 100")
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)
}

// TestUpdateWithPredicate covers scenario S3.
func TestUpdateWithPredicate(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	ids := []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	table, err := conn.CreateTable(ctx, "memory://s3-test", newSliceRecordIter(idNameRecord(ids, names)), dataset.WriteParams{})
	require.NoError(t, err)

	require.NoError(t, table.Update(ctx, "id > 5", []dataset.ColumnUpdate{{Column: "name", Expr: "'foo'"}}))

	n, err := table.CountRows(ctx, "name = 'foo'")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n, "ids 6..9 get renamed")

	n, err = table.CountRows(ctx, "name = 'a'")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "id 0 keeps its original name")
}

func TestOpenTableRoundTripsSchema(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	rec := intRecord([]int32{1, 2, 3})
	_, err := conn.CreateTable(ctx, "memory://schema-roundtrip", newSliceRecordIter(rec), dataset.WriteParams{})
	require.NoError(t, err)

	table, err := conn.OpenTable(ctx, "memory://schema-roundtrip")
	require.NoError(t, err)

	schema, err := table.Schema(ctx)
	require.NoError(t, err)
	assert.True(t, schema.Equal(rec.Schema()))
}

func TestCheckoutPinsVersionAndCheckoutLatestFollows(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	ids := make([]int32, 10)
	for i := range ids {
		ids[i] = int32(i)
	}
	table, err := conn.CreateTable(ctx, "memory://time-travel", newSliceRecordIter(intRecord(ids)), dataset.WriteParams{})
	require.NoError(t, err)

	more := make([]int32, 10)
	for i := range more {
		more[i] = int32(100 + i)
	}
	require.NoError(t, table.Add(ctx, newSliceRecordIter(intRecord(more)), dataset.WriteParams{Mode: dataset.WriteAppend}))

	pinned, err := table.Checkout(ctx, 1)
	require.NoError(t, err)

	n, err := pinned.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 10, n, "the pinned view predates the append")

	latest, err := pinned.CheckoutLatest(ctx)
	require.NoError(t, err)
	n, err = latest.CountRows(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

func TestCreateTableAlreadyExists(t *testing.T) {
	ctx := context.Background()
	conn := lancedb.Connect()

	rec := intRecord([]int32{1})
	_, err := conn.CreateTable(ctx, "memory://already-exists", newSliceRecordIter(rec), dataset.WriteParams{})
	require.NoError(t, err)

	_, err = conn.CreateTable(ctx, "memory://already-exists", newSliceRecordIter(rec), dataset.WriteParams{})
	require.Error(t, err)
	assert.True(t, lanceerrors.IsTableAlreadyExists(err))
}
