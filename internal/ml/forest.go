package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Isolation forest parameters. The seed is fixed so retraining on the same
// matrix yields the same forest and a serialized model reloads bit-identical.
const (
	forestTrees     = 100
	forestMaxSample = 256
	forestSeed      = 42
)

// forestNode is one node of an isolation tree, stored in a flat slice.
// Leaf nodes carry the sample count that reached them; internal nodes carry
// the split and child indexes.
type forestNode struct {
	Feature int
	Split   float64
	Left    int
	Right   int
	Size    int
	Leaf    bool
}

type isolationTree struct {
	Nodes []forestNode
}

// IsolationForest scores points by how quickly random axis-aligned splits
// isolate them. Shorter average path means more anomalous.
type IsolationForest struct {
	Trees      []isolationTree
	SampleSize int
	// Offset is the (1 - contamination) quantile of training-set anomaly
	// measures; raw scores are expressed relative to it so positive means
	// normal.
	Offset float64
}

// fitForest builds the forest over the scaled training matrix.
func fitForest(matrix [][]float64, contamination float64) (*IsolationForest, error) {
	n := len(matrix)
	if n == 0 {
		return nil, errors.New("empty training matrix")
	}

	psi := forestMaxSample
	if n < psi {
		psi = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	rng := rand.New(rand.NewSource(forestSeed))
	forest := &IsolationForest{SampleSize: psi}
	for t := 0; t < forestTrees; t++ {
		sample := subsample(matrix, psi, rng)
		tree := isolationTree{}
		buildTree(&tree, sample, 0, heightLimit, rng)
		forest.Trees = append(forest.Trees, tree)
	}

	// Anchor the decision offset at the contamination quantile of the
	// training scores.
	measures := make([]float64, n)
	for i, row := range matrix {
		measures[i] = forest.anomalyMeasure(row)
	}
	sort.Float64s(measures)
	idx := int(math.Ceil(float64(n)*(1-contamination))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	forest.Offset = measures[idx]

	return forest, nil
}

func subsample(matrix [][]float64, psi int, rng *rand.Rand) [][]float64 {
	if psi >= len(matrix) {
		out := make([][]float64, len(matrix))
		copy(out, matrix)
		return out
	}
	perm := rng.Perm(len(matrix))
	out := make([][]float64, psi)
	for i := 0; i < psi; i++ {
		out[i] = matrix[perm[i]]
	}
	return out
}

// buildTree grows one isolation tree, appending nodes depth-first and
// returning the index of the subtree root.
func buildTree(tree *isolationTree, rows [][]float64, depth, heightLimit int, rng *rand.Rand) int {
	idx := len(tree.Nodes)
	if depth >= heightLimit || len(rows) <= 1 {
		tree.Nodes = append(tree.Nodes, forestNode{Leaf: true, Size: len(rows)})
		return idx
	}

	dims := len(rows[0])
	feature, split, ok := pickSplit(rows, dims, rng)
	if !ok {
		tree.Nodes = append(tree.Nodes, forestNode{Leaf: true, Size: len(rows)})
		return idx
	}

	tree.Nodes = append(tree.Nodes, forestNode{Feature: feature, Split: split})

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	leftIdx := buildTree(tree, left, depth+1, heightLimit, rng)
	rightIdx := buildTree(tree, right, depth+1, heightLimit, rng)
	tree.Nodes[idx].Left = leftIdx
	tree.Nodes[idx].Right = rightIdx
	return idx
}

// pickSplit chooses a random feature with spread and a uniform split value
// inside its range. Degenerate data (all rows identical) yields no split.
func pickSplit(rows [][]float64, dims int, rng *rand.Rand) (int, float64, bool) {
	for attempt := 0; attempt < dims; attempt++ {
		feature := rng.Intn(dims)
		lo, hi := rows[0][feature], rows[0][feature]
		for _, row := range rows[1:] {
			if row[feature] < lo {
				lo = row[feature]
			}
			if row[feature] > hi {
				hi = row[feature]
			}
		}
		if hi > lo {
			return feature, lo + rng.Float64()*(hi-lo), true
		}
	}
	return 0, 0, false
}

// pathLength walks a point down one tree, adding the average-path adjustment
// at multi-sample leaves.
func (t *isolationTree) pathLength(row []float64) float64 {
	idx := 0
	depth := 0.0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return depth + avgPathLength(node.Size)
		}
		if row[node.Feature] < node.Split {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// anomalyMeasure is s(x) = 2^(-E(h)/c(psi)) in [0, 1]; higher means easier
// to isolate.
func (f *IsolationForest) anomalyMeasure(row []float64) float64 {
	total := 0.0
	for i := range f.Trees {
		total += f.Trees[i].pathLength(row)
	}
	mean := total / float64(len(f.Trees))
	c := avgPathLength(f.SampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

// Score returns the decision-function value: positive for normal points,
// negative for anomalies, relative to the trained offset.
func (f *IsolationForest) Score(row []float64) float64 {
	return f.Offset - f.anomalyMeasure(row)
}

// avgPathLength is c(n), the average unsuccessful-search path length of a
// binary search tree over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}
