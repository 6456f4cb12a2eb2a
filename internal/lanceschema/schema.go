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

// Package lanceschema implements the small set of schema utility helpers the
// table engine needs: inferring the default vector column for a query, and
// deciding which Arrow column types the B-tree scalar index can be built on.
package lanceschema

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/lancedb/lancedb-go/lanceerrors"
)

// IsFloatingType reports whether dt is one of the floating point primitives
// lance vector columns are made of.
func IsFloatingType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.FLOAT32, arrow.FLOAT64, arrow.FLOAT16:
		return true
	default:
		return false
	}
}

// VectorDim returns the fixed-size-list width of dt and true if dt is a
// FixedSizeList of a floating point type (the lance "vector" type), or
// (0, false) otherwise.
func VectorDim(dt arrow.DataType) (int32, bool) {
	fsl, ok := dt.(*arrow.FixedSizeListType)
	if !ok {
		return 0, false
	}
	if !IsFloatingType(fsl.Elem()) {
		return 0, false
	}
	return fsl.Len(), true
}

// InferVectorColumn scans schema for the single FixedSizeList<floating, dim>
// column whose width equals dim. It fails with lanceerrors.ErrSchema if zero
// or more than one such column exists, per spec.md §4.2.
func InferVectorColumn(schema *arrow.Schema, dim int) (string, error) {
	var found []string
	for _, f := range schema.Fields() {
		if d, ok := VectorDim(f.Type); ok && int(d) == dim {
			found = append(found, f.Name)
		}
	}
	switch len(found) {
	case 0:
		return "", lanceerrors.ErrSchema.New(fmt.Sprintf(
			"no vector column of dimension %d found in schema; specify Column() explicitly", dim))
	case 1:
		return found[0], nil
	default:
		return "", lanceerrors.ErrSchema.New(fmt.Sprintf(
			"ambiguous vector column: %d columns of dimension %d found (%v); specify Column() explicitly",
			len(found), dim, found))
	}
}

// InferSoleVectorColumn scans schema for the single floating FixedSizeList
// column regardless of width, used by IVF-PQ index creation when no column
// was pinned explicitly (spec.md §4.3).
func InferSoleVectorColumn(schema *arrow.Schema) (string, int32, error) {
	type hit struct {
		name string
		dim  int32
	}
	var found []hit
	for _, f := range schema.Fields() {
		if d, ok := VectorDim(f.Type); ok {
			found = append(found, hit{f.Name, d})
		}
	}
	switch len(found) {
	case 0:
		return "", 0, lanceerrors.ErrSchema.New("no floating-point vector column found in schema; specify Column() explicitly")
	case 1:
		return found[0].name, found[0].dim, nil
	default:
		names := make([]string, len(found))
		for i, h := range found {
			names[i] = h.name
		}
		return "", 0, lanceerrors.ErrSchema.New(fmt.Sprintf(
			"ambiguous vector column: %d vector columns found (%v); specify Column() explicitly", len(found), names))
	}
}

// IsBTreeSupported reports whether dt is one of the scalar types the B-tree
// index can be built on: integer/floating primitives, boolean, UTF-8/large
// UTF-8 strings, Date32/64, Time32/64, Timestamp (spec.md §4.3).
func IsBTreeSupported(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64,
		arrow.BOOL,
		arrow.STRING, arrow.LARGE_STRING,
		arrow.DATE32, arrow.DATE64,
		arrow.TIME32, arrow.TIME64,
		arrow.TIMESTAMP:
		return true
	default:
		return false
	}
}

// FindColumn returns the field with the given name, or ok=false.
func FindColumn(schema *arrow.Schema, name string) (arrow.Field, bool) {
	idx := schema.FieldIndices(name)
	if len(idx) == 0 {
		return arrow.Field{}, false
	}
	return schema.Field(idx[0]), true
}
