package anomaly

import (
	"math"
	"math/rand"
)

// treeNode is one node of an isolation tree. Nodes serialize with the model
// so a stored forest scores identically after reload.
type treeNode struct {
	SplitFeature int       `json:"f,omitempty"`
	SplitValue   float64   `json:"v,omitempty"`
	Left         *treeNode `json:"l,omitempty"`
	Right        *treeNode `json:"r,omitempty"`
	Size         int       `json:"n"`
	Leaf         bool      `json:"leaf,omitempty"`
}

// Forest is an isolation forest over fixed-width feature vectors. Scores are
// in (0, 1); a point isolated in few splits scores high.
type Forest struct {
	Trees     []*treeNode `json:"trees"`
	SubSample int         `json:"sub_sample"`

	numTrees int
	maxDepth int
	rng      *rand.Rand
}

// NewForest returns an untrained forest. The seed fixes the sampling and
// split randomness so a training run is reproducible.
func NewForest(numTrees, subSample int, seed int64) *Forest {
	return &Forest{
		Trees:     make([]*treeNode, 0, numTrees),
		SubSample: subSample,
		numTrees:  numTrees,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Fit builds the forest from the training matrix. Rows must share one width.
func (f *Forest) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	if f.SubSample > len(rows) {
		f.SubSample = len(rows)
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.SubSample)) + 1))

	for i := 0; i < f.numTrees; i++ {
		sample := f.sample(rows)
		f.Trees = append(f.Trees, f.build(sample, 0))
	}
}

// Score returns the anomaly score of one point: 2^(-E[h(x)] / c(n)).
func (f *Forest) Score(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.5
	}
	total := 0.0
	for _, tree := range f.Trees {
		total += f.path(tree, row, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SubSample))
}

// sample shuffles and takes the first SubSample rows.
func (f *Forest) sample(rows [][]float64) [][]float64 {
	shuffled := make([][]float64, len(rows))
	copy(shuffled, rows)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := f.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:f.SubSample]
}

func (f *Forest) build(rows [][]float64, depth int) *treeNode {
	if len(rows) <= 1 || depth >= f.maxDepth || identical(rows) {
		return &treeNode{Size: len(rows), Leaf: true}
	}

	feature := f.rng.Intn(len(rows[0]))
	lo, hi := featureRange(rows, feature)
	if lo == hi {
		return &treeNode{Size: len(rows), Leaf: true}
	}
	split := lo + f.rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Size: len(rows), Leaf: true}
	}

	return &treeNode{
		SplitFeature: feature,
		SplitValue:   split,
		Left:         f.build(left, depth+1),
		Right:        f.build(right, depth+1),
		Size:         len(rows),
	}
}

func (f *Forest) path(node *treeNode, row []float64, depth int) float64 {
	if node.Leaf {
		return float64(depth) + avgPathLength(node.Size)
	}
	if node.SplitFeature < len(row) && row[node.SplitFeature] < node.SplitValue {
		return f.path(node.Left, row, depth+1)
	}
	return f.path(node.Right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search: 2H(n-1) - 2(n-1)/n.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func identical(rows [][]float64) bool {
	if len(rows) <= 1 {
		return true
	}
	first := rows[0]
	for _, row := range rows[1:] {
		for j := range first {
			if math.Abs(row[j]-first[j]) > 1e-10 {
				return false
			}
		}
	}
	return true
}

func featureRange(rows [][]float64, feature int) (float64, float64) {
	lo, hi := rows[0][feature], rows[0][feature]
	for _, row := range rows {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	return lo, hi
}
