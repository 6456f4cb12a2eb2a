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

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/lancedb/lancedb-go/dataset"
)

// nativeTable is the embedded (local/in-process) tableInternal
// implementation: a name, a uri, and a datasetRef wrapping the dataset
// handle (spec.md §4.5's Table facade operations).
type nativeTable struct {
	tableName string
	tableURI  string
	ref       *datasetRef
	log       *logrus.Entry
	tracer    trace.Tracer
}

var _ tableInternal = (*nativeTable)(nil)

func newNative(name, uri string, ds dataset.Dataset, opts connectOptions) *nativeTable {
	return &nativeTable{
		tableName: name,
		tableURI:  uri,
		ref:       newDatasetRef(ds, opts.ReadConsistencyInterval),
		log:       opts.Logger.WithField("table", name),
		tracer:    opts.Tracer,
	}
}

func (t *nativeTable) name() string { return t.tableName }
func (t *nativeTable) uri() string  { return t.tableURI }

func (t *nativeTable) schema(ctx context.Context) (*arrow.Schema, error) {
	ds, err := t.ref.get(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Schema(ctx), nil
}

func (t *nativeTable) countRows(ctx context.Context, filter string) (int64, error) {
	ds, err := t.ref.get(ctx)
	if err != nil {
		return 0, err
	}
	return ds.CountRows(ctx, filter)
}

func (t *nativeTable) add(ctx context.Context, stream dataset.RecordIter, params dataset.WriteParams) error {
	ctx, span := t.tracer.Start(ctx, "table.add")
	defer span.End()
	next, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.Write(ctx, stream, params)
	})
	if err != nil {
		return err
	}
	t.log.WithField("version", next.Version(ctx)).Debug("rows written")
	return nil
}

func (t *nativeTable) deleteRows(ctx context.Context, predicate string) error {
	ctx, span := t.tracer.Start(ctx, "table.delete")
	defer span.End()
	next, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.Delete(ctx, predicate)
	})
	if err != nil {
		return err
	}
	t.log.WithField("version", next.Version(ctx)).Debug("rows deleted")
	return nil
}

func (t *nativeTable) update(ctx context.Context, predicate string, updates []dataset.ColumnUpdate) error {
	ctx, span := t.tracer.Start(ctx, "table.update")
	defer span.End()
	next, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.Update(ctx, predicate, updates)
	})
	if err != nil {
		return err
	}
	t.log.WithField("version", next.Version(ctx)).Debug("rows updated")
	return nil
}

func (t *nativeTable) mergeInsert(ctx context.Context, on []string, source dataset.RecordIter, plan dataset.MergeInsertPlan) (dataset.MergeInsertStats, error) {
	ctx, span := t.tracer.Start(ctx, "table.merge_insert")
	defer span.End()
	var stats dataset.MergeInsertStats
	_, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		next, s, err := ds.MergeInsert(ctx, source, plan)
		stats = s
		return next, err
	})
	if err != nil {
		return stats, err
	}
	t.log.WithFields(logrus.Fields{
		"inserted": stats.NumInserted,
		"updated":  stats.NumUpdated,
		"deleted":  stats.NumDeleted,
	}).Debug("merge insert committed")
	return stats, nil
}

func (t *nativeTable) newScan(ctx context.Context) (dataset.Scanner, error) {
	ctx, span := t.tracer.Start(ctx, "table.execute_stream")
	defer span.End()
	ds, err := t.ref.get(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Scan(ctx), nil
}

func (t *nativeTable) createIndex(ctx context.Context, columns []string, kind dataset.IndexKind, name string, params dataset.IndexParams, replace bool) error {
	ctx, span := t.tracer.Start(ctx, "table.create_index")
	defer span.End()
	_, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.CreateIndex(ctx, columns, kind, name, params, replace)
	})
	if err != nil {
		return err
	}
	t.log.WithField("columns", columns).Info("index created")
	return nil
}

func (t *nativeTable) addColumns(ctx context.Context, transform []dataset.ColumnUpdate, readColumns []string) error {
	_, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.AddColumns(ctx, transform, readColumns)
	})
	return err
}

func (t *nativeTable) alterColumns(ctx context.Context, alterations []dataset.ColumnAlteration) error {
	_, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.AlterColumns(ctx, alterations)
	})
	return err
}

func (t *nativeTable) dropColumns(ctx context.Context, columns []string) error {
	_, err := t.ref.getMut(ctx, func(ds dataset.Dataset) (dataset.Dataset, error) {
		return ds.DropColumns(ctx, columns)
	})
	return err
}

func (t *nativeTable) optimize(ctx context.Context, action OptimizeAction) (OptimizeStats, error) {
	ctx, span := t.tracer.Start(ctx, "table.optimize")
	defer span.End()
	return runOptimize(ctx, t.ref, action)
}

func (t *nativeTable) checkout(ctx context.Context, v dataset.Version) (tableInternal, error) {
	ref, err := t.ref.checkout(ctx, v)
	if err != nil {
		return nil, err
	}
	return &nativeTable{tableName: t.tableName, tableURI: t.tableURI, ref: ref, log: t.log, tracer: t.tracer}, nil
}

func (t *nativeTable) checkoutLatest(ctx context.Context) (tableInternal, error) {
	ref, err := t.ref.checkoutLatest(ctx)
	if err != nil {
		return nil, err
	}
	return &nativeTable{tableName: t.tableName, tableURI: t.tableURI, ref: ref, log: t.log, tracer: t.tracer}, nil
}

func (t *nativeTable) stats(ctx context.Context) (dataset.Stats, error) {
	ds, err := t.ref.get(ctx)
	if err != nil {
		return dataset.Stats{}, err
	}
	return ds.Stats(ctx)
}

func (t *nativeTable) listIndices(ctx context.Context) ([]dataset.IndexDef, error) {
	ds, err := t.ref.get(ctx)
	if err != nil {
		return nil, err
	}
	return ds.ListIndices(ctx)
}

func (t *nativeTable) indexStatistics(ctx context.Context, name string) (dataset.IndexStatistics, error) {
	ds, err := t.ref.get(ctx)
	if err != nil {
		return dataset.IndexStatistics{}, err
	}
	return ds.IndexStatistics(ctx, name)
}
