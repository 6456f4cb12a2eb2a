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
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lancedb/lancedb-go/dataset"
	"github.com/lancedb/lancedb-go/lanceerrors"
)

// connectOptions configures how a Connection opens and creates tables. It
// follows the teacher's validated-copy-returning constructor idiom: callers
// build one with NewConnectOptions and get back a value they can no longer
// mutate out from under a live Connection.
type connectOptions struct {
	ReadConsistencyInterval *time.Duration
	Logger                  *logrus.Logger
	Tracer                  trace.Tracer
	S3Client                *minio.Client
}

// ConnectOption mutates a connectOptions under construction.
type ConnectOption func(*connectOptions)

// WithReadConsistencyInterval sets the read-consistency policy new tables
// inherit (spec.md §4.1); nil (the default) means "never refresh after
// open".
func WithReadConsistencyInterval(d time.Duration) ConnectOption {
	return func(o *connectOptions) { o.ReadConsistencyInterval = &d }
}

// WithLogger overrides the default logrus logger.
func WithLogger(l *logrus.Logger) ConnectOption {
	return func(o *connectOptions) { o.Logger = l }
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t trace.Tracer) ConnectOption {
	return func(o *connectOptions) { o.Tracer = t }
}

// WithS3Client supplies the client used to resolve "s3://" table URIs.
func WithS3Client(c *minio.Client) ConnectOption {
	return func(o *connectOptions) { o.S3Client = c }
}

// NewConnectOptions builds a validated connectOptions from opts, applying
// library defaults for anything left unset.
func NewConnectOptions(opts ...ConnectOption) connectOptions {
	o := connectOptions{Logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("github.com/lancedb/lancedb-go")
	}
	return o
}

// Connection is the entry point for opening and creating tables. It carries
// no dataset state of its own; every operation resolves a uri to an Opener
// and delegates immediately.
type Connection struct {
	opts connectOptions
}

// Connect returns a Connection configured by opts.
func Connect(opts ...ConnectOption) *Connection {
	return &Connection{opts: NewConnectOptions(opts...)}
}

// tableName extracts the final path segment's file-stem, per spec.md §6's
// URI convention ("the table name is the final path segment's file-stem").
func tableName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", lanceerrors.ErrInvalidTableName.New(uri)
	}
	p := u.Path
	if p == "" {
		p = uri
	}
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		return "", lanceerrors.ErrInvalidTableName.New(uri)
	}
	return stem, nil
}

// schemeOf returns the URI scheme, defaulting to "memory" for bare names
// (so `Connect().OpenTable(ctx, "my_table")` behaves like an in-process
// table lookup without requiring callers to spell out "memory://").
func schemeOf(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i]
	}
	return "memory"
}

func normalizeURI(uri string) string {
	if !strings.Contains(uri, "://") {
		return "memory://" + uri
	}
	return uri
}

func (c *Connection) opener(ctx context.Context, uri string) (dataset.Opener, error) {
	scheme := schemeOf(uri)
	if scheme == "s3" && c.opts.S3Client != nil {
		if err := checkS3Reachable(ctx, c.opts.S3Client, uri); err != nil {
			return nil, err
		}
	}
	o, err := dataset.OpenerFor(scheme)
	if err != nil {
		return nil, lanceerrors.ErrStore.New(err.Error())
	}
	return o, nil
}

// checkS3Reachable is a preflight bucket-existence check for "s3://" table
// URIs. The real S3-backed columnar file format is out of scope for this
// core (spec.md §1); this only verifies the bucket is reachable before
// handing off to whatever Opener is registered for the scheme.
func checkS3Reachable(ctx context.Context, client *minio.Client, uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return lanceerrors.ErrInvalidTableName.New(uri)
	}
	bucket := u.Host
	if bucket == "" {
		return lanceerrors.ErrInvalidTableName.New(uri)
	}
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return lanceerrors.ErrStore.New(err.Error())
	}
	if !ok {
		return lanceerrors.ErrStore.New("s3 bucket " + bucket + " does not exist")
	}
	return nil
}

// OpenTable loads the latest version of the dataset at uri.
func (c *Connection) OpenTable(ctx context.Context, uri string) (*Table, error) {
	return c.OpenTableWithParams(ctx, uri, dataset.OpenParams{})
}

// OpenTableWithParams loads uri at the given params (e.g. a pinned version).
func (c *Connection) OpenTableWithParams(ctx context.Context, uri string, params dataset.OpenParams) (*Table, error) {
	uri = normalizeURI(uri)
	name, err := tableName(uri)
	if err != nil {
		return nil, err
	}
	o, err := c.opener(ctx, uri)
	if err != nil {
		return nil, err
	}
	ds, err := o.Open(ctx, uri, params)
	if err != nil {
		return nil, lanceerrors.ErrTableNotFound.New(uri)
	}
	return newNativeTable(name, uri, ds, c.opts), nil
}

// CreateTable writes a new dataset at uri from the rows in stream.
func (c *Connection) CreateTable(ctx context.Context, uri string, stream dataset.RecordIter, params dataset.WriteParams) (*Table, error) {
	uri = normalizeURI(uri)
	name, err := tableName(uri)
	if err != nil {
		return nil, err
	}
	o, err := c.opener(ctx, uri)
	if err != nil {
		return nil, err
	}
	if exists, err := o.Exists(ctx, uri); err != nil {
		return nil, lanceerrors.ErrStore.New(err.Error())
	} else if exists {
		return nil, lanceerrors.ErrTableAlreadyExists.New(name)
	}
	ds, err := o.Write(ctx, uri, stream, nil, params)
	if err != nil {
		return nil, lanceerrors.ErrLance.New(err.Error())
	}
	return newNativeTable(name, uri, ds, c.opts), nil
}

// CreateTableEmpty writes a new, empty dataset at uri with the given schema.
func (c *Connection) CreateTableEmpty(ctx context.Context, uri string, schema *arrow.Schema) (*Table, error) {
	uri = normalizeURI(uri)
	name, err := tableName(uri)
	if err != nil {
		return nil, err
	}
	o, err := c.opener(ctx, uri)
	if err != nil {
		return nil, err
	}
	if exists, err := o.Exists(ctx, uri); err != nil {
		return nil, lanceerrors.ErrStore.New(err.Error())
	} else if exists {
		return nil, lanceerrors.ErrTableAlreadyExists.New(name)
	}
	ds, err := o.Write(ctx, uri, emptyRecordIter{}, schema, dataset.WriteParams{Mode: dataset.WriteOverwrite})
	if err != nil {
		return nil, lanceerrors.ErrLance.New(err.Error())
	}
	return newNativeTable(name, uri, ds, c.opts), nil
}

// OpenRemoteTable returns a Table facade over a hosted (RPC) table. The RPC
// client itself is out of scope for this core (spec.md §1); the returned
// Table reports its name and URI, and every mutating/read operation fails
// with ErrNotSupported (spec.md §9, Open Question (b)).
func (c *Connection) OpenRemoteTable(uri string) (*Table, error) {
	uri = normalizeURI(uri)
	name, err := tableName(uri)
	if err != nil {
		return nil, err
	}
	return &Table{cachedName: name, cachedURI: uri, impl: newRemoteTable(name, uri)}, nil
}

type emptyRecordIter struct{}

func (emptyRecordIter) Next(ctx context.Context) (arrow.Record, error) { return nil, io.EOF }
func (emptyRecordIter) Close() error                                   { return nil }
