package reconcile

import (
	"sort"
	"strings"
	"time"
)

// WriteKind distinguishes performance patches from post creations.
type WriteKind int

const (
	WriteUpdate WriteKind = iota
	WriteCreate
)

func (k WriteKind) String() string {
	if k == WriteCreate {
		return "create"
	}
	return "update"
}

// Write is a pending change to the content store.
type Write struct {
	Kind        WriteKind
	RowIndex    int
	PostID      string      // WriteUpdate only
	Performance Performance // WriteUpdate only
	Post        NewPost     // WriteCreate only
}

// Plan is the outcome of reconciling a batch before anything is written.
type Plan struct {
	Platform    string
	Unsupported bool
	Rows        int
	Updated     int
	Created     int
	Writes      []Write
	Skipped     []Skip
}

// NewPlan matches every row of b against b.Posts and returns the writes that
// reconciliation needs. It does not modify b.
//
// Only posts on the batch platform are candidates, and a row matches a post
// scheduled on the same calendar day in the parser's location. When several
// posts share that day the one nearest in time of day wins, then the
// earliest, then the smallest id. Rows on one day with the same time of day
// always resolve to the same post, so a re-run rewrites the same posts.
func NewPlan(b Batch, dates DateParser) Plan {
	records, skipped, ok := Normalize(b.Platform, b.Rows, dates)
	if !ok {
		return Plan{Platform: strings.TrimSpace(b.Platform), Unsupported: true, Rows: len(b.Rows)}
	}

	acc := accumulator{
		plan: Plan{
			Platform: DisplayName(b.Platform),
			Rows:     len(b.Rows),
			Skipped:  skipped,
		},
		candidates: candidatesFor(b.Platform, b.Posts),
		loc:        dates.location(),
		owner:      b.Owner,
		strategy:   b.Strategy,
	}
	for _, rec := range records {
		acc = acc.step(rec)
	}

	sort.SliceStable(acc.plan.Skipped, func(i, j int) bool {
		return acc.plan.Skipped[i].Index < acc.plan.Skipped[j].Index
	})
	return acc.plan
}

type accumulator struct {
	plan       Plan
	candidates []Post
	loc        *time.Location
	owner      string
	strategy   Strategy
}

func (a accumulator) step(rec Record) accumulator {
	if p, ok := nearestSameDay(a.candidates, rec.Date, a.loc); ok {
		a.plan.Updated++
		a.plan.Writes = append(a.plan.Writes, Write{
			Kind:        WriteUpdate,
			RowIndex:    rec.Index,
			PostID:      p.ID,
			Performance: rec.Performance(),
		})
		return a
	}
	if a.strategy != StrategyCreateNew {
		a.plan.Skipped = append(a.plan.Skipped, Skip{Index: rec.Index, Reason: SkipUnmatched})
		return a
	}
	a.plan.Created++
	a.plan.Writes = append(a.plan.Writes, Write{
		Kind:     WriteCreate,
		RowIndex: rec.Index,
		Post: NewPost{
			Owner:       a.owner,
			Platform:    a.plan.Platform,
			ScheduledAt: rec.Date,
			Title:       rec.Title,
			Description: rec.Description,
			ContentType: rec.PostType,
			Published:   true,
			Performance: rec.Performance(),
		},
	})
	return a
}

func candidatesFor(platform string, posts []Post) []Post {
	key := platformKey(platform)
	var out []Post
	for _, p := range posts {
		if platformKey(p.Platform) == key {
			out = append(out, p)
		}
	}
	return out
}

func nearestSameDay(candidates []Post, at time.Time, loc *time.Location) (Post, bool) {
	var best Post
	var bestDist time.Duration
	found := false
	for _, p := range candidates {
		if !sameDay(p.ScheduledAt, at, loc) {
			continue
		}
		d := clockDistance(p.ScheduledAt, at, loc)
		if !found || d < bestDist || (d == bestDist && earlier(p, best)) {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}

func earlier(a, b Post) bool {
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.ID < b.ID
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func clockDistance(a, b time.Time, loc *time.Location) time.Duration {
	d := sinceMidnight(a.In(loc)) - sinceMidnight(b.In(loc))
	if d < 0 {
		return -d
	}
	return d
}

func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}
