// Package reconcile matches rows from social-platform analytics exports to
// scheduled posts and merges their performance counters.
//
// The work is split in two: NewPlan folds a batch of rows into a list of
// pending writes without touching any store, and Engine applies those writes
// to a ContentStore one by one.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Row is one line of an analytics export keyed by its column header.
type Row map[string]string

// Performance holds the counters contributed by analytics ingestion.
type Performance struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// Post is the read-only view of a scheduled post the matcher needs.
type Post struct {
	ID          string
	Platform    string
	ScheduledAt time.Time
}

// NewPost is the payload for a post created from an unmatched row.
type NewPost struct {
	Owner       string
	Platform    string
	ScheduledAt time.Time
	Title       string
	Description string
	ContentType string
	Published   bool
	Performance Performance
}

// Strategy controls what happens to rows that match no existing post.
type Strategy string

const (
	StrategyUpdateOnly Strategy = "update_only"
	StrategyCreateNew  Strategy = "create_new"
)

// ParseStrategy converts a strategy name into a Strategy. An empty string
// yields StrategyUpdateOnly.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyUpdateOnly:
		return StrategyUpdateOnly, nil
	case StrategyCreateNew:
		return StrategyCreateNew, nil
	default:
		return "", fmt.Errorf("reconcile: unknown strategy %q", s)
	}
}

// Batch is a single parsed export file plus everything needed to reconcile it.
type Batch struct {
	Platform string
	Rows     []Row
	Posts    []Post
	Owner    string
	Strategy Strategy
}

// ContentStore receives the writes produced by reconciliation.
type ContentStore interface {
	UpdatePerformance(ctx context.Context, id string, p Performance) error
	CreatePost(ctx context.Context, p NewPost) (string, error)
}
