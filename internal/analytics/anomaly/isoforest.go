package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

// Isolation forest with a fixed seed. Scoring follows the standard
// formulation: s(x) = 2^(-E[h(x)]/c(psi)), higher = more isolated.
const (
	forestSeed      = 42
	forestTrees     = 100
	forestSubsample = 256
)

type isoNode struct {
	left, right *isoNode
	splitAttr   int
	splitVal    float64
	size        int
}

type isolationForest struct {
	trees []*isoNode
	psi   int
}

func fitIsolationForest(data [][]float64) *isolationForest {
	rng := rand.New(rand.NewSource(forestSeed))
	psi := forestSubsample
	if psi > len(data) {
		psi = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi) + 1)))

	forest := &isolationForest{psi: psi}
	for t := 0; t < forestTrees; t++ {
		sample := rng.Perm(len(data))[:psi]
		forest.trees = append(forest.trees, buildIsoTree(data, sample, 0, maxDepth, rng))
	}
	return forest
}

func buildIsoTree(data [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	// Attributes with spread; constant attributes cannot split.
	dims := len(data[idx[0]])
	var splittable []int
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	for d := 0; d < dims; d++ {
		mins[d], maxs[d] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := data[i][d]
			if v < mins[d] {
				mins[d] = v
			}
			if v > maxs[d] {
				maxs[d] = v
			}
		}
		if maxs[d] > mins[d] {
			splittable = append(splittable, d)
		}
	}
	if len(splittable) == 0 {
		return &isoNode{size: len(idx)}
	}

	attr := splittable[rng.Intn(len(splittable))]
	val := mins[attr] + rng.Float64()*(maxs[attr]-mins[attr])

	var left, right []int
	for _, i := range idx {
		if data[i][attr] < val {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		splitAttr: attr,
		splitVal:  val,
		left:      buildIsoTree(data, left, depth+1, maxDepth, rng),
		right:     buildIsoTree(data, right, depth+1, maxDepth, rng),
	}
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func avgPathLength(n int) float64 {
	switch {
	case n > 2:
		h := math.Log(float64(n-1)) + 0.5772156649
		return 2*h - 2*float64(n-1)/float64(n)
	case n == 2:
		return 1
	default:
		return 0
	}
}

func (f *isolationForest) pathLength(x []float64, node *isoNode, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if x[node.splitAttr] < node.splitVal {
		return f.pathLength(x, node.left, depth+1)
	}
	return f.pathLength(x, node.right, depth+1)
}

// scores returns one anomaly score per row, each in (0, 1].
func (f *isolationForest) scores(data [][]float64) []float64 {
	out := make([]float64, len(data))
	c := avgPathLength(f.psi)
	if c == 0 {
		c = 1
	}
	for i, x := range data {
		sum := 0.0
		for _, tree := range f.trees {
			sum += f.pathLength(x, tree, 0)
		}
		avg := sum / float64(len(f.trees))
		out[i] = math.Pow(2, -avg/c)
	}
	return out
}

// labelOutliers flags roughly a contamination fraction of rows as outliers.
// The cut is strict: ties at the threshold stay inliers, so a table of
// identical rows produces no outliers.
func labelOutliers(scores []float64, contamination float64) []bool {
	labels := make([]bool, len(scores))
	k := int(math.Floor(contamination * float64(len(scores))))
	if k <= 0 {
		return labels
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	threshold := math.Inf(-1)
	if k < len(sorted) {
		threshold = sorted[k]
	}
	for i, s := range scores {
		labels[i] = s > threshold
	}
	return labels
}

// normalizeScores min-max scales scores into [0, 1]; a zero-variance table
// collapses to a constant 0.5.
func normalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	for i, s := range scores {
		if max > min {
			out[i] = (s - min) / (max - min)
		} else {
			out[i] = 0.5
		}
	}
	return out
}
