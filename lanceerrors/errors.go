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

// Package lanceerrors defines the unified error taxonomy returned by every
// fallible operation in the table engine.
package lanceerrors

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrTableNotFound is returned when opening a uri with no dataset manifest.
	ErrTableNotFound = errors.NewKind("table not found: %s")
	// ErrTableAlreadyExists is returned by create when a dataset already exists at the uri.
	ErrTableAlreadyExists = errors.NewKind("table already exists: %s")
	// ErrInvalidTableName is returned when a uri's file-stem cannot be decoded into a name.
	ErrInvalidTableName = errors.NewKind("invalid table name: %s")
	// ErrInvalidInput is returned when a caller omits a required field.
	ErrInvalidInput = errors.NewKind("invalid input: %s")
	// ErrSchema is returned for schema-level mismatches: wrong column type, missing or
	// ambiguous vector column, a B-tree index on an unsupported column type.
	ErrSchema = errors.NewKind("schema error: %s")
	// ErrStore is returned for runtime query errors that are not schema-level, such as a
	// query vector whose dimension does not match the indexed column, or an unknown column.
	ErrStore = errors.NewKind("store error: %s")
	// ErrIndexAlreadyExists is returned when replace=false collides with an existing index.
	ErrIndexAlreadyExists = errors.NewKind("index already exists on column %s")
	// ErrLance passes through failures from the dataset substrate (training, IO, commits).
	ErrLance = errors.NewKind("lance error: %s")
	// ErrNotSupported is returned by remote-table operations that have no RPC client in
	// this core; see DESIGN.md Open Question (b).
	ErrNotSupported = errors.NewKind("not supported: %s")

	// ErrBuilderAlreadyExecuted fires when a single-use fluent builder's
	// execute method is called a second time.
	ErrBuilderAlreadyExecuted = errors.NewKind("%s has already been executed")
)

// IsTableNotFound reports whether err is (or wraps) ErrTableNotFound.
func IsTableNotFound(err error) bool { return ErrTableNotFound.Is(err) }

// IsTableAlreadyExists reports whether err is (or wraps) ErrTableAlreadyExists.
func IsTableAlreadyExists(err error) bool { return ErrTableAlreadyExists.Is(err) }

// IsSchema reports whether err is (or wraps) ErrSchema.
func IsSchema(err error) bool { return ErrSchema.Is(err) }

// IsStore reports whether err is (or wraps) ErrStore.
func IsStore(err error) bool { return ErrStore.Is(err) }

// IsIndexAlreadyExists reports whether err is (or wraps) ErrIndexAlreadyExists.
func IsIndexAlreadyExists(err error) bool { return ErrIndexAlreadyExists.Is(err) }

// IsBuilderAlreadyExecuted reports whether err is (or wraps) ErrBuilderAlreadyExecuted.
func IsBuilderAlreadyExecuted(err error) bool { return ErrBuilderAlreadyExecuted.Is(err) }

// IsNotSupported reports whether err is (or wraps) ErrNotSupported.
func IsNotSupported(err error) bool { return ErrNotSupported.Is(err) }
