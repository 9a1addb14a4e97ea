// Package forest is a multi-output random forest regressor.
//
// Each tree is a CART regression tree grown on a bootstrap sample. A split is
// chosen to minimize the squared error summed over all outputs, so one tree
// predicts every output at once. The forest predicts the mean of its trees.
//
// Fitting is deterministic for a Config.Seed: seeds of trees are drawn from
// it before trees are grown concurrently.
package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64

	// Workers is how many trees are grown at once. 0 means GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		Trees:           100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// ScaledConfig shrinks the capacity of the forest for small sample counts.
//
//	trees = min(100, 10n), depth = min(10, n), min split = max(2, n/10)
func ScaledConfig(n int, seed int64) Config {
	c := DefaultConfig()
	c.Trees = max(1, min(c.Trees, n*10))
	c.MaxDepth = max(1, min(c.MaxDepth, n))
	c.MinSamplesSplit = max(2, n/10)
	c.Seed = seed
	return c
}

func (c Config) validate() error {
	switch {
	case c.Trees <= 0:
		return fmt.Errorf("forest: trees should be > 0 (got %d)", c.Trees)
	case c.MaxDepth <= 0:
		return fmt.Errorf("forest: max depth should be > 0 (got %d)", c.MaxDepth)
	case c.MinSamplesSplit < 2:
		return fmt.Errorf("forest: min samples split should be >= 2 (got %d)", c.MinSamplesSplit)
	case c.MinSamplesLeaf < 1:
		return fmt.Errorf("forest: min samples leaf should be >= 1 (got %d)", c.MinSamplesLeaf)
	}
	return nil
}

var ErrShape = errors.New("forest: shape mismatch")

// Node of a tree. Leaves have Feature < 0.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64
}

type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) []float64 {
	n := &t.Nodes[0]
	for n.Feature >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

type Forest struct {
	inputs  int
	outputs int
	trees   []Tree
}

func (f *Forest) Inputs() int {
	return f.inputs
}

func (f *Forest) Outputs() int {
	return f.outputs
}

// Len is the number of trees.
func (f *Forest) Len() int {
	return len(f.trees)
}

// Fit grows a forest mapping rows of x to rows of y.
func Fit(ctx context.Context, x [][]float64, y [][]float64, conf Config) (*Forest, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	inputs, outputs, err := shapeOf(x, y)
	if err != nil {
		return nil, err
	}

	seeds := make([]int64, conf.Trees)
	master := rand.New(rand.NewSource(conf.Seed))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := conf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]Tree, conf.Trees)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range trees {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{x: x, y: y, outputs: outputs, conf: conf}
			trees[i] = b.build(rand.New(rand.NewSource(seeds[i])))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &Forest{inputs: inputs, outputs: outputs, trees: trees}, nil
}

func shapeOf(x [][]float64, y [][]float64) (int, int, error) {
	if len(x) == 0 {
		return 0, 0, fmt.Errorf("%w: no samples", ErrShape)
	}
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d inputs and %d outputs", ErrShape, len(x), len(y))
	}
	inputs, outputs := len(x[0]), len(y[0])
	if inputs == 0 || outputs == 0 {
		return 0, 0, fmt.Errorf("%w: empty row", ErrShape)
	}
	for i := range x {
		if len(x[i]) != inputs || len(y[i]) != outputs {
			return 0, 0, fmt.Errorf("%w: row %d is ragged", ErrShape, i)
		}
		for _, v := range x[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("%w: row %d has non-finite input", ErrShape, i)
			}
		}
		for _, v := range y[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("%w: row %d has non-finite output", ErrShape, i)
			}
		}
	}
	return inputs, outputs, nil
}

// Predict returns the mean prediction of trees for x.
func (f *Forest) Predict(x []float64) ([]float64, error) {
	if len(x) != f.inputs {
		return nil, fmt.Errorf("%w: %d inputs, expected %d", ErrShape, len(x), f.inputs)
	}
	out := make([]float64, f.outputs)
	for i := range f.trees {
		for j, v := range f.trees[i].predict(x) {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(f.trees))
	}
	return out, nil
}

type snapshot struct {
	Inputs  int
	Outputs int
	Trees   []Tree
}

func (f *Forest) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(snapshot{Inputs: f.inputs, Outputs: f.outputs, Trees: f.trees}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Forest) UnmarshalBinary(b []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return err
	}
	if len(s.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrShape)
	}
	for ti, t := range s.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrShape, ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				if len(n.Value) != s.Outputs {
					return fmt.Errorf("%w: leaf %d of tree %d", ErrShape, ni, ti)
				}
				continue
			}
			if s.Inputs <= n.Feature || n.Left <= ni || n.Right <= ni || len(t.Nodes) <= n.Left || len(t.Nodes) <= n.Right {
				return fmt.Errorf("%w: node %d of tree %d", ErrShape, ni, ti)
			}
		}
	}
	f.inputs, f.outputs, f.trees = s.Inputs, s.Outputs, s.Trees
	return nil
}

type builder struct {
	x       [][]float64
	y       [][]float64
	outputs int
	conf    Config
	nodes   []Node
}

func (b *builder) build(rng *rand.Rand) Tree {
	n := len(b.x)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}
	b.nodes = nil
	b.grow(sample, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends a subtree for samples and returns the index of its root.
func (b *builder) grow(samples []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(samples)})

	if depth >= b.conf.MaxDepth || len(samples) < b.conf.MinSamplesSplit {
		return id
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		return id
	}

	left, right := []int{}, []int{}
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[id].Value}
	return id
}

func (b *builder) mean(samples []int) []float64 {
	m := make([]float64, b.outputs)
	for _, s := range samples {
		for j, v := range b.y[s] {
			m[j] += v
		}
	}
	for j := range m {
		m[j] /= float64(len(samples))
	}
	return m
}

// sse is the squared error, summed over outputs, of predicting means.
func sse(sum, sumsq []float64, n int) float64 {
	total := 0.0
	for j := range sum {
		total += sumsq[j] - sum[j]*sum[j]/float64(n)
	}
	return total
}

func (b *builder) bestSplit(samples []int) (feature int, threshold float64, ok bool) {
	n := len(samples)
	totalSum := make([]float64, b.outputs)
	totalSq := make([]float64, b.outputs)
	for _, s := range samples {
		for j, v := range b.y[s] {
			totalSum[j] += v
			totalSq[j] += v * v
		}
	}
	parent := sse(totalSum, totalSq, n)
	best := parent - 1e-12*math.Max(1, math.Abs(parent))
	if best <= 0 {
		return 0, 0, false
	}

	order := make([]int, n)
	leftSum := make([]float64, b.outputs)
	leftSq := make([]float64, b.outputs)
	rightSum := make([]float64, b.outputs)
	rightSq := make([]float64, b.outputs)
	minLeaf := b.conf.MinSamplesLeaf

	for f := 0; f < len(b.x[0]); f++ {
		copy(order, samples)
		sort.SliceStable(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })

		clear(leftSum)
		clear(leftSq)
		for i := 0; i < n-1; i++ {
			for j, v := range b.y[order[i]] {
				leftSum[j] += v
				leftSq[j] += v * v
			}
			lo, hi := b.x[order[i]][f], b.x[order[i+1]][f]
			nl, nr := i+1, n-i-1
			if lo == hi || nl < minLeaf || nr < minLeaf {
				continue
			}
			for j := range rightSum {
				rightSum[j] = totalSum[j] - leftSum[j]
				rightSq[j] = totalSq[j] - leftSq[j]
			}
			if cost := sse(leftSum, leftSq, nl) + sse(rightSum, rightSq, nr); cost < best {
				best, feature, threshold, ok = cost, f, lo+(hi-lo)/2, true
			}
		}
	}
	return feature, threshold, ok
}
