// Copyright 2025 Poiesic Systems
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


package cluster

import (
	"math"
	"math/rand"
)

// kmeans runs spherical k-means over unit-norm vectors: assignment uses the
// dot product (cosine similarity, matching the vector index), and recomputed
// centroids are renormalized to unit length.
//
// Initialization samples k distinct points with the given seed, so repeated
// fits on identical input and seed produce identical clusters.
// Returns the centroids and the per-point cluster assignment.
func kmeans(vectors [][]float32, k int, seed int64, maxIter int) ([][]float32, []int32) {
	n := len(vectors)
	if k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}
	dim := len(vectors[0])

	rng := rand.New(rand.NewSource(seed))
	centroids := make([][]float32, k)
	for i, p := range rng.Perm(n)[:k] {
		centroids[i] = append([]float32(nil), vectors[p]...)
	}

	assignments := make([]int32, n)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids as the normalized mean of assigned points.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Reseed an empty cluster to the point farthest from its
				// centroid, keeping the choice deterministic.
				centroids[c] = append([]float32(nil), vectors[farthestPoint(vectors, centroids, assignments)]...)
				continue
			}
			centroid := make([]float32, dim)
			var norm float64
			for d := range centroid {
				m := sums[c][d] / float64(counts[c])
				centroid[d] = float32(m)
				norm += m * m
			}
			if norm > 0 {
				inv := float32(1.0 / math.Sqrt(norm))
				for d := range centroid {
					centroid[d] *= inv
				}
			}
			centroids[c] = centroid
		}
	}

	return centroids, assignments
}

// nearestCentroid returns the index of the most similar centroid.
// Ties resolve to the lowest centroid index.
func nearestCentroid(v []float32, centroids [][]float32) int32 {
	best := int32(0)
	bestScore := float32(math.Inf(-1))
	for c, centroid := range centroids {
		score := dot(v, centroid)
		if score > bestScore {
			bestScore = score
			best = int32(c)
		}
	}
	return best
}

// farthestPoint returns the index of the point least similar to its assigned
// centroid, used to reseed empty clusters.
func farthestPoint(vectors [][]float32, centroids [][]float32, assignments []int32) int {
	worst := 0
	worstScore := float32(math.Inf(1))
	for i, v := range vectors {
		score := dot(v, centroids[assignments[i]])
		if score < worstScore {
			worstScore = score
			worst = i
		}
	}
	return worst
}

func dot(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
