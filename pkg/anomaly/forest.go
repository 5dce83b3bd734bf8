package anomaly

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// ModelVersion is the artifact format version written by this package
const ModelVersion = 1

// training defaults
const (
	DefaultTrees      = 100
	DefaultSampleSize = 256
)

const eulerGamma = 0.5772156649015329

// Node is a node of an isolation tree, stored flat; a node without
// children is a leaf and Size is the number of training points it holds
type Node struct {
	Feature   int     `cbor:"f"`
	Threshold float64 `cbor:"t"`
	Left      int     `cbor:"l"`
	Right     int     `cbor:"r"`
	Size      int     `cbor:"s"`
}

// IsLeaf tells whether the node is terminal
func (n Node) IsLeaf() bool {
	return n.Left < 0 || n.Right < 0
}

// Tree is an isolation tree; the root is at index 0
type Tree struct {
	Nodes []Node `cbor:"nodes"`
}

// Model is an immutable isolation forest
type Model struct {
	Version    int       `cbor:"version"`
	SampleSize int       `cbor:"sample_size"`
	Features   int       `cbor:"features"`
	Seed       int64     `cbor:"seed"`
	CreatedAt  time.Time `cbor:"created_at"`
	Trees      []Tree    `cbor:"trees"`
}

// Options controls training
type Options struct {
	Trees      int
	SampleSize int
	Seed       int64
}

// averagePathLength is c(n), the mean path length of an unsuccessful
// binary search tree lookup among n points
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}

	harmonic := math.Log(float64(n-1)) + eulerGamma

	return 2*harmonic - 2*float64(n-1)/float64(n)
}

// Validate checks the structural integrity of a model
func (m *Model) Validate() error {
	if m == nil {
		return ErrModelUnavailable
	}

	if m.Version != ModelVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", m.Version)
	}

	if m.Features != FeatureCount {
		return errors.Wrapf(ErrInvalidModel, "expected %d features, got %d", FeatureCount, m.Features)
	}

	if len(m.Trees) == 0 || m.SampleSize < 2 {
		return errors.Wrap(ErrInvalidModel, "empty forest")
	}

	for i, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return errors.Wrapf(ErrInvalidModel, "tree #%d is empty", i)
		}

		for j, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}

			if n.Feature < 0 || n.Feature >= FeatureCount {
				return errors.Wrapf(ErrInvalidModel, "tree #%d node #%d: feature out of range", i, j)
			}

			// children always follow their parent, so walks terminate
			if n.Left <= j || n.Right <= j || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return errors.Wrapf(ErrInvalidModel, "tree #%d node #%d: bad child index", i, j)
			}
		}
	}

	return nil
}

func (t Tree) pathLength(v Vector) float64 {
	var (
		i     int
		depth float64
	)

	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return depth + averagePathLength(n.Size)
		}

		if v[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}

		depth++
	}
}

// Score returns the anomaly score of a point: close to 1 when the
// point is isolated quickly, towards 0 when it takes long
func (m *Model) Score(v Vector) float64 {
	c := averagePathLength(m.SampleSize)
	if c == 0 || len(m.Trees) == 0 {
		return 0
	}

	var total float64
	for _, t := range m.Trees {
		total += t.pathLength(v)
	}

	s := math.Pow(2, -(total/float64(len(m.Trees)))/c)

	return math.Max(0, math.Min(1, s))
}

// Fit trains a forest; the same samples and options always yield the same model
func Fit(samples []Vector, o Options) (*Model, error) {
	if len(samples) < 2 {
		return nil, ErrNoSamples
	}

	if o.Trees <= 0 {
		o.Trees = DefaultTrees
	}

	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}

	if o.SampleSize > len(samples) {
		o.SampleSize = len(samples)
	}

	if o.SampleSize < 2 {
		return nil, ErrInvalidOptions
	}

	rng := rand.New(rand.NewSource(o.Seed))
	limit := int(math.Ceil(math.Log2(float64(o.SampleSize))))

	m := &Model{
		Version:    ModelVersion,
		SampleSize: o.SampleSize,
		Features:   FeatureCount,
		Seed:       o.Seed,
		CreatedAt:  time.Now().UTC(),
		Trees:      make([]Tree, o.Trees),
	}

	for i := range m.Trees {
		perm := rng.Perm(len(samples))[:o.SampleSize]

		subset := make([]Vector, o.SampleSize)
		for j, idx := range perm {
			subset[j] = samples[idx]
		}

		b := &treeBuilder{rng: rng, limit: limit}
		b.grow(subset, 0)

		m.Trees[i] = Tree{Nodes: b.nodes}
	}

	return m, nil
}

type treeBuilder struct {
	rng   *rand.Rand
	limit int
	nodes []Node
}

// grow appends the subtree for points and returns its root index
func (b *treeBuilder) grow(points []Vector, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: len(points)})

	if depth >= b.limit || len(points) <= 1 {
		return idx
	}

	// only features that still separate something
	var (
		candidates [FeatureCount]int
		lo, hi     [FeatureCount]float64
		count      int
	)

	for f := 0; f < FeatureCount; f++ {
		lo[f], hi[f] = points[0][f], points[0][f]

		for _, p := range points[1:] {
			lo[f] = math.Min(lo[f], p[f])
			hi[f] = math.Max(hi[f], p[f])
		}

		if hi[f] > lo[f] {
			candidates[count] = f
			count++
		}
	}

	if count == 0 {
		return idx
	}

	f := candidates[b.rng.Intn(count)]
	threshold := lo[f] + b.rng.Float64()*(hi[f]-lo[f])

	var left, right []Vector
	for _, p := range points {
		if p[f] < threshold {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[idx] = Node{Feature: f, Threshold: threshold, Left: l, Right: r, Size: len(points)}

	return idx
}
