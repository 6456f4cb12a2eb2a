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
	"sync/atomic"
	"time"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// refreshMode is the two states a datasetRef can be in: following new
// commits (Latest) or pinned to a specific version (TimeTravel). Transition
// between the two only happens via an explicit Checkout call, never
// implicitly.
type refreshMode int

const (
	modeLatest refreshMode = iota
	modeTimeTravel
)

// datasetRef owns a handle to a versioned dataset.Dataset and enforces a
// read-consistency policy across concurrent readers and writers. Readers
// take an atomic snapshot; writers are serialized by a mutex and publish
// their result by atomically installing it as the new latest.
type datasetRef struct {
	mode refreshMode

	// consistencyInterval governs refresh-on-get in Latest mode: nil means
	// "never refresh after open", 0 means "refresh on every get", >0 means
	// "refresh only after this much time has elapsed".
	consistencyInterval *time.Duration

	mu sync.Mutex // serializes writers (get_mut)

	current     atomic.Pointer[dataset.Dataset]
	lastRefresh atomic.Pointer[time.Time]

	pinnedVersion dataset.Version // only meaningful in modeTimeTravel
}

// newDatasetRef wraps ds in Latest mode with the given read-consistency
// interval (nil means never refresh after open).
func newDatasetRef(ds dataset.Dataset, interval *time.Duration) *datasetRef {
	r := &datasetRef{mode: modeLatest, consistencyInterval: interval}
	r.current.Store(&ds)
	now := time.Now()
	r.lastRefresh.Store(&now)
	return r
}

// get returns a read view honoring the consistency policy described in
// spec.md §4.1: in Latest mode with interval nil, the view reflects the
// dataset as loaded on open; interval 0 refreshes on every call; interval
// D>0 refreshes only once D has elapsed since the last refresh. TimeTravel
// mode always returns the pinned version.
func (r *datasetRef) get(ctx context.Context) (dataset.Dataset, error) {
	if r.mode == modeTimeTravel {
		ds := *r.current.Load()
		return ds, nil
	}
	if r.consistencyInterval == nil {
		return *r.current.Load(), nil
	}
	if *r.consistencyInterval > 0 {
		last := *r.lastRefresh.Load()
		if time.Since(last) < *r.consistencyInterval {
			return *r.current.Load(), nil
		}
	}
	ds := *r.current.Load()
	refreshed, err := ds.CheckoutLatest(ctx)
	if err != nil {
		return nil, lanceerrors.ErrLance.New(err.Error())
	}
	r.current.Store(&refreshed)
	now := time.Now()
	r.lastRefresh.Store(&now)
	return refreshed, nil
}

// getMut acquires exclusive mutation access, runs fn against the current
// dataset, and — on success — atomically installs fn's result as the new
// latest. Release is guaranteed on every exit path.
func (r *datasetRef) getMut(ctx context.Context, fn func(dataset.Dataset) (dataset.Dataset, error)) (dataset.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(ds)
	if err != nil {
		return nil, err
	}
	r.setLatest(next)
	return next, nil
}

// setLatest replaces the latest dataset without going through refresh; used
// when a mutation produced a new version locally. It is the only
// write-visible transition and is atomic.
func (r *datasetRef) setLatest(ds dataset.Dataset) {
	r.current.Store(&ds)
	now := time.Now()
	r.lastRefresh.Store(&now)
}

// duplicate clones the handle for checkout_latest without copying bytes:
// the clone shares no mutable state with r (a fresh atomic pointer and
// mutex), but starts from the same dataset snapshot.
func (r *datasetRef) duplicate() *datasetRef {
	clone := &datasetRef{mode: modeLatest, consistencyInterval: r.consistencyInterval}
	ds := *r.current.Load()
	clone.current.Store(&ds)
	now := time.Now()
	clone.lastRefresh.Store(&now)
	return clone
}

// checkout returns a new ref pinned to version v in TimeTravel mode; r
// itself is left unchanged.
func (r *datasetRef) checkout(ctx context.Context, v dataset.Version) (*datasetRef, error) {
	ds := *r.current.Load()
	pinned, err := ds.WithVersion(ctx, v)
	if err != nil {
		return nil, lanceerrors.ErrLance.New(err.Error())
	}
	clone := &datasetRef{mode: modeTimeTravel, pinnedVersion: v}
	clone.current.Store(&pinned)
	return clone, nil
}

// checkoutLatest returns a ref in Latest mode tracking new commits, sharing
// no mutable state with r.
func (r *datasetRef) checkoutLatest(ctx context.Context) (*datasetRef, error) {
	ds := *r.current.Load()
	latest, err := ds.CheckoutLatest(ctx)
	if err != nil {
		return nil, lanceerrors.ErrLance.New(err.Error())
	}
	clone := &datasetRef{mode: modeLatest, consistencyInterval: r.consistencyInterval}
	clone.current.Store(&latest)
	now := time.Now()
	clone.lastRefresh.Store(&now)
	return clone, nil
}
