package query

import (
	"context"
	"time"
)

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

type Executor interface {
	Execute(ctx context.Context, sqlText string, args ...any) (Result, error)
}
