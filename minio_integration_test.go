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

//go:build integration

package lancedb_test

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	lancedb "github.com/lancedb/lancedb-go"
)

// TestS3URIPreflightAgainstMinio boots a real MinIO container and exercises
// the s3:// URI resolution hook (connection.go's checkS3Reachable) against
// it end to end, per SPEC_FULL.md §2's domain-stack wiring for
// testcontainers-go's minio module. Gated behind the "integration" build tag
// so the default `go test ./...` run only exercises the in-memory substrate.
func TestS3URIPreflightAgainstMinio(t *testing.T) {
	ctx := context.Background()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z")
	require.NoError(t, err, "failed to start minio container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err, "failed to get minio connection string")

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(container.Username, container.Password, ""),
	})
	require.NoError(t, err, "failed to build minio client")

	const bucket = "lancedb-integration"
	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))

	conn := lancedb.Connect(lancedb.WithS3Client(client))

	t.Run("existing bucket passes preflight", func(t *testing.T) {
		_, err := conn.OpenTable(ctx, "s3://"+bucket+"/mytable")
		// The dataset substrate itself has no registered "s3" opener in this
		// core (out of scope, spec.md §1); what this asserts is that the
		// preflight bucket check succeeds and the failure, if any, comes from
		// beyond it rather than from checkS3Reachable.
		if err != nil {
			require.NotContains(t, err.Error(), "does not exist")
		}
	})

	t.Run("missing bucket fails preflight", func(t *testing.T) {
		_, err := conn.OpenTable(ctx, "s3://does-not-exist-bucket/mytable")
		require.Error(t, err)
	})
}
