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

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancedb/lancedb-go"
)

type constantEmbedder struct {
	dim int32
}

func (e constantEmbedder) SourceType() arrow.DataType { return arrow.BinaryTypes.String }
func (e constantEmbedder) DestType() arrow.DataType {
	return arrow.FixedSizeListOf(e.dim, arrow.PrimitiveTypes.Float32)
}
func (e constantEmbedder) Embed(ctx context.Context, values arrow.Array) (arrow.Array, error) {
	b := array.NewFixedSizeListBuilder(testAllocator, e.dim, arrow.PrimitiveTypes.Float32)
	defer b.Release()
	vb := b.ValueBuilder().(*array.Float32Builder)
	for i := 0; i < values.Len(); i++ {
		b.Append(true)
		for j := int32(0); j < e.dim; j++ {
			vb.Append(1.0)
		}
	}
	return b.NewArray(), nil
}

func TestEmbeddingsRegistryRegisterAndGet(t *testing.T) {
	reg := lancedb.NewEmbeddingsRegistry()
	fn := constantEmbedder{dim: 4}
	reg.Register("const4", fn)

	got, err := reg.Get("const4")
	require.NoError(t, err)
	assert.Equal(t, fn.DestType(), got.DestType())
}

func TestEmbeddingsRegistryGetMissingFails(t *testing.T) {
	reg := lancedb.NewEmbeddingsRegistry()
	_, err := reg.Get("missing")
	assert.Error(t, err)
}

func TestDefaultEmbeddingsRegistryIsSharedSingleton(t *testing.T) {
	lancedb.DefaultEmbeddingsRegistry().Register("shared", constantEmbedder{dim: 2})
	got, err := lancedb.DefaultEmbeddingsRegistry().Get("shared")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.DestType().(*arrow.FixedSizeListType).Len())
}
