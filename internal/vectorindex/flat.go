package vectorindex

import (
	"context"
	"fmt"
	"sort"
)

// FlatIndex is an exact squared-L2 index over an in-memory matrix. Position i
// of the matrix maps to ids[i].
type FlatIndex struct {
	dim     int
	vectors [][]float32
	ids     []int64
}

func NewFlatIndex(vectors [][]float32, ids []int64) (*FlatIndex, error) {
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("index has %d vectors but %d ids", len(vectors), len(ids))
	}
	dim := 0
	for i, vec := range vectors {
		if i == 0 {
			dim = len(vec)
			continue
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vec), dim)
		}
	}
	return &FlatIndex{dim: dim, vectors: vectors, ids: ids}, nil
}

func (f *FlatIndex) Len() int {
	return len(f.vectors)
}

func (f *FlatIndex) Dim() int {
	return f.dim
}

func (f *FlatIndex) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if len(f.vectors) == 0 || k <= 0 {
		return []Candidate{}, nil
	}
	if len(vector) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), f.dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		position int
		distance float32
	}
	all := make([]scored, len(f.vectors))
	for i, row := range f.vectors {
		var sum float32
		for j, v := range row {
			d := v - vector[j]
			sum += d * d
		}
		all[i] = scored{position: i, distance: sum}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].distance < all[j].distance
	})

	if k > len(all) {
		k = len(all)
	}
	out := make([]Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = Candidate{ID: f.ids[all[i].position], Distance: all[i].distance}
	}
	return out, nil
}
