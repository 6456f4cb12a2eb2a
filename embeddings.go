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
	"sync"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/lancedb/lancedb-go/lanceerrors"
)

// EmbeddingFunction converts an array of the source type into an array of
// the destination type (spec.md §3, "EmbeddingFunction").
type EmbeddingFunction interface {
	SourceType() arrow.DataType
	DestType() arrow.DataType
	Embed(ctx context.Context, values arrow.Array) (arrow.Array, error)
}

// EmbeddingsRegistry is a process-local, name-keyed mapping of embedding
// functions (spec.md §4.7). Keys are unique; Register overwrites silently.
// Designed to be populated once at startup and read many times.
type EmbeddingsRegistry struct {
	mu    sync.RWMutex
	funcs map[string]EmbeddingFunction
}

// NewEmbeddingsRegistry returns an empty registry.
func NewEmbeddingsRegistry() *EmbeddingsRegistry {
	return &EmbeddingsRegistry{funcs: make(map[string]EmbeddingFunction)}
}

// Register associates name with fn, overwriting any prior registration.
func (r *EmbeddingsRegistry) Register(name string, fn EmbeddingFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get returns the function registered under name.
func (r *EmbeddingsRegistry) Get(name string) (EmbeddingFunction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, lanceerrors.ErrInvalidInput.New("no embedding function registered under name " + name)
	}
	return fn, nil
}

// defaultEmbeddingsRegistry is the process-wide registry new Connections
// share unless callers keep their own.
var defaultEmbeddingsRegistry = NewEmbeddingsRegistry()

// DefaultEmbeddingsRegistry returns the shared process-wide registry.
func DefaultEmbeddingsRegistry() *EmbeddingsRegistry { return defaultEmbeddingsRegistry }
