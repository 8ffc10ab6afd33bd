package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Seeded k-means with k-means++ initialization and multiple restarts; the
// assignment with the lowest inertia wins.
const (
	kmeansSeed     = 42
	kmeansRestarts = 10
	kmeansMaxIter  = 100
)

func kMeans(data [][]float64, k int) []int {
	rng := rand.New(rand.NewSource(kmeansSeed))
	best := make([]int, len(data))
	bestInertia := math.Inf(1)
	for r := 0; r < kmeansRestarts; r++ {
		assign, inertia := kMeansOnce(data, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			copy(best, assign)
		}
	}
	return best
}

func kMeansOnce(data [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	centroids := seedCentroids(data, k, rng)
	assign := make([]int, len(data))

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, x := range data {
			c := nearest(x, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, len(data[0]))
		}
		for i, x := range data {
			counts[assign[i]]++
			floats.Add(next[assign[i]], x)
		}
		for c := range next {
			if counts[c] == 0 {
				// Re-seed an empty cluster from the point farthest from
				// its centroid.
				next[c] = append([]float64(nil), farthestPoint(data, centroids, assign)...)
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}
		centroids = next

		if !changed && iter > 0 {
			break
		}
	}

	inertia := 0.0
	for i, x := range data {
		d := floats.Distance(x, centroids[assign[i]], 2)
		inertia += d * d
	}
	return assign, inertia
}

// seedCentroids runs k-means++: each new centroid is drawn with probability
// proportional to squared distance from the nearest existing one.
func seedCentroids(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), data[rng.Intn(len(data))]...))

	dists := make([]float64, len(data))
	for len(centroids) < k {
		total := 0.0
		for i, x := range data {
			d := floats.Distance(x, centroids[nearest(x, centroids)], 2)
			dists[i] = d * d
			total += dists[i]
		}
		if total == 0 {
			centroids = append(centroids, append([]float64(nil), data[rng.Intn(len(data))]...))
			continue
		}
		target := rng.Float64() * total
		cum := 0.0
		pick := len(data) - 1
		for i, d := range dists {
			cum += d
			if cum >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), data[pick]...))
	}
	return centroids
}

func nearest(x []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(x, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func farthestPoint(data [][]float64, centroids [][]float64, assign []int) []float64 {
	best, bestDist := 0, -1.0
	for i, x := range data {
		if d := floats.Distance(x, centroids[assign[i]], 2); d > bestDist {
			best, bestDist = i, d
		}
	}
	return data[best]
}
