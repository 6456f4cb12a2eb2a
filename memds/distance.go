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
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lancedb/lancedb-go/dataset"
)

// distance computes the configured distance between two vectors of equal
// length. This stands in for the out-of-scope distance-kernel substrate
// (spec.md §1); it is exact (no product quantization), which is sufficient
// to make nprobes/refine_factor/metric_type observable in tests.
func distance(dt dataset.DistanceType, a, b []float32) float64 {
	fa, fb := toFloat64Slice(a), toFloat64Slice(b)
	switch dt {
	case dataset.Cosine:
		dot := floats.Dot(fa, fb)
		na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2)
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(na*nb)
	case dataset.Dot:
		return -floats.Dot(fa, fb)
	default: // L2
		return floats.Distance(fa, fb, 2)
	}
}

func toFloat64Slice(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// centroidOf averages a set of vectors into one centroid of the same width,
// taking the unweighted mean of each dimension across the set.
func centroidOf(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	width := len(vectors[0])
	out := make([]float32, width)
	col := make([]float64, len(vectors))
	for i := 0; i < width; i++ {
		for j, v := range vectors {
			col[j] = float64(v[i])
		}
		out[i] = float32(stat.Mean(col, nil))
	}
	return out
}

func nearestCentroid(dt dataset.DistanceType, v []float32, centroids [][]float32) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		d := distance(dt, v, c)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
