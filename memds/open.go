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
	"fmt"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/lancedb/lancedb-go/dataset"
)

// registry is the process-wide table of named in-memory datasets, playing
// the role the teacher's memory package plays for its own named databases:
// a lookup any connection in the process can open by uri, without any real
// object-store round trip.
type registry struct {
	mu     sync.RWMutex
	stores map[string]*store
}

var global = &registry{stores: map[string]*store{}}

func (r *registry) get(uri string) (*store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[uri]
	return s, ok
}

func (r *registry) getOrCreate(uri string) *store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[uri]; ok {
		return s
	}
	s := &store{uri: uri, snapshots: map[dataset.Version]*snapshot{}}
	r.stores[uri] = s
	return s
}

func (r *registry) delete(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, uri)
}

// opener implements dataset.Opener for the "memory" URI scheme.
type opener struct{}

func init() {
	o := opener{}
	dataset.RegisterOpener("memory", o)
	dataset.RegisterOpener("mem", o)
}

func (opener) Open(ctx context.Context, uri string, params dataset.OpenParams) (dataset.Dataset, error) {
	s, ok := global.get(uri)
	if !ok {
		return nil, fmt.Errorf("memds: no dataset at %q", uri)
	}
	return &memDataset{store: s, pinned: params.Version}, nil
}

// Write creates or extends the dataset at uri. Appending to a uri with no
// dataset yet is a create, matching the substrate's write-to-empty behavior.
func (opener) Write(ctx context.Context, uri string, rows dataset.RecordIter, schema *arrow.Schema, params dataset.WriteParams) (dataset.Dataset, error) {
	_, hadExisting := global.get(uri)
	s := global.getOrCreate(uri)
	materialized, inferredSchema, err := drain(ctx, rows, schema)
	if err != nil {
		return nil, err
	}
	ds, err := s.commit(func(prev *snapshot) (*snapshot, error) {
		next := &snapshot{schema: inferredSchema}
		if params.Mode == dataset.WriteAppend && prev != nil {
			next.fragments = append(append([]arrow.Record{}, prev.fragments...), materialized...)
			next.indices = prev.indices
		} else {
			next.fragments = materialized
		}
		return next, nil
	})
	if err != nil {
		if !hadExisting {
			global.delete(uri)
		}
		return nil, err
	}
	return ds, nil
}

func (opener) Exists(ctx context.Context, uri string) (bool, error) {
	_, ok := global.get(uri)
	return ok, nil
}
