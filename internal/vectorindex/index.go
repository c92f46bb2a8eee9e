package vectorindex

import (
	"context"
	"errors"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type EntityKind string

const (
	KindPlayer EntityKind = "player"
	KindTeam   EntityKind = "team"
)

type Candidate struct {
	ID       int64
	Distance float32
}

// Index returns up to k candidates ordered by increasing distance. An empty
// index yields an empty result.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Candidate, error)
}
