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

package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
)

// RecordIter is a lazy, finite, non-restartable sequence of record batches
// (spec.md §4.2). Next returns io.EOF when exhausted; callers must treat any
// other error as terminal and stop iterating.
type RecordIter interface {
	Next(ctx context.Context) (arrow.Record, error)
	Close() error
}

// ProjectionExpr is one (alias, expression) pair of a Select_Projection.
type ProjectionExpr struct {
	Alias string
	Expr  string
}

// Scanner is a fluent, substrate-side scan descriptor. Each method returns
// the same Scanner for chaining; TryIntoStream executes it.
type Scanner interface {
	Filter(expr string) Scanner
	Project(columns []string) Scanner
	ProjectWithTransform(projections []ProjectionExpr) Scanner
	Limit(n int64) Scanner
	Nearest(column string, vector []float32) Scanner
	Nprobes(n int) Scanner
	Refine(factor uint32) Scanner
	DistanceMetric(dt DistanceType) Scanner
	UseIndex(use bool) Scanner
	Prefilter(prefilter bool) Scanner
	TryIntoStream(ctx context.Context) (RecordIter, error)
}

// Opener opens and writes datasets for one URI scheme ("memory", "file",
// "s3", "gs"), per spec.md §6's "URI conventions".
type Opener interface {
	Open(ctx context.Context, uri string, params OpenParams) (Dataset, error)
	Write(ctx context.Context, uri string, rows RecordIter, schema *arrow.Schema, params WriteParams) (Dataset, error)
	Exists(ctx context.Context, uri string) (bool, error)
}

var (
	openersMu sync.RWMutex
	openers   = map[string]Opener{}
)

// RegisterOpener makes an Opener available for the given URI scheme. It is
// intended to be called from an init() in a backend package (e.g. memds),
// mirroring the teacher's externalStoredProcedures registration-at-load
// idiom (memory/external_sp_db.go).
func RegisterOpener(scheme string, o Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[scheme] = o
}

// OpenerFor returns the registered Opener for scheme, or an error if none
// was registered.
func OpenerFor(scheme string) (Opener, error) {
	openersMu.RLock()
	defer openersMu.RUnlock()
	o, ok := openers[scheme]
	if !ok {
		return nil, fmt.Errorf("no dataset opener registered for scheme %q", scheme)
	}
	return o, nil
}
