package reconcile

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Failure is a planned write the content store rejected.
type Failure struct {
	RowIndex int    `json:"row"`
	PostID   string `json:"post_id,omitempty"`
	Err      error  `json:"-"`
}

func (f Failure) MarshalJSON() ([]byte, error) {
	type plain Failure
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Error string `json:"error"`
	}{plain(f), msg})
}

// Result summarises one reconciled batch. Updated and Created count planned
// writes; writes that failed are also listed in Failed.
type Result struct {
	Platform    string    `json:"platform"`
	Unsupported bool      `json:"unsupported,omitempty"`
	Rows        int       `json:"rows"`
	Updated     int       `json:"updated"`
	Created     int       `json:"created"`
	Skipped     []Skip    `json:"skipped,omitempty"`
	Failed      []Failure `json:"failed,omitempty"`
	CreatedIDs  []string  `json:"created_ids,omitempty"`
}

// NothingApplied reports whether rows were supplied but none of them could be
// matched or turned into a post.
func (r Result) NothingApplied() bool {
	return r.Rows > 0 && r.Updated == 0 && r.Created == 0
}

// Engine applies reconciliation plans to a content store.
type Engine struct {
	store ContentStore
	log   logrus.FieldLogger
	dates DateParser
}

// Option configures an Engine.
type Option func(*Engine)

// WithDateParser replaces the default date parser.
func WithDateParser(p DateParser) Option {
	return func(e *Engine) {
		e.dates = p
	}
}

// WithLogger sets the logger used for skipped rows and failed writes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine returns an Engine writing to store.
func NewEngine(store ContentStore, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		e.log = l
	}
	return e
}

// Plan computes the writes for b without applying them.
func (e *Engine) Plan(b Batch) Plan {
	return NewPlan(b, e.dates)
}

// Reconcile plans b and applies the resulting writes in row order. A failed
// write is recorded and the remaining writes still run. The error is non-nil
// only when ctx ends before all writes were issued.
func (e *Engine) Reconcile(ctx context.Context, b Batch) (Result, error) {
	plan := e.Plan(b)
	res := Result{
		Platform:    plan.Platform,
		Unsupported: plan.Unsupported,
		Rows:        plan.Rows,
		Updated:     plan.Updated,
		Created:     plan.Created,
		Skipped:     plan.Skipped,
	}
	log := e.log.WithField("platform", plan.Platform)

	if plan.Unsupported {
		log.WithField("rows", plan.Rows).Warn("no column mapper for platform, batch ignored")
		return res, nil
	}
	for _, s := range plan.Skipped {
		if s.Reason == SkipUnmatched {
			log.WithField("row", s.Index).Debug("row matches no post")
			continue
		}
		log.WithFields(logrus.Fields{
			"row":    s.Index,
			"reason": s.Reason,
			"value":  s.Value,
		}).Warn("analytics row skipped")
	}

	for _, w := range plan.Writes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch w.Kind {
		case WriteUpdate:
			if err := e.store.UpdatePerformance(ctx, w.PostID, w.Performance); err != nil {
				res.Failed = append(res.Failed, Failure{RowIndex: w.RowIndex, PostID: w.PostID, Err: err})
				log.WithError(err).WithFields(logrus.Fields{"row": w.RowIndex, "post": w.PostID}).Error("update performance")
			}
		case WriteCreate:
			id, err := e.store.CreatePost(ctx, w.Post)
			if err != nil {
				res.Failed = append(res.Failed, Failure{RowIndex: w.RowIndex, Err: err})
				log.WithError(err).WithField("row", w.RowIndex).Error("create post")
				continue
			}
			res.CreatedIDs = append(res.CreatedIDs, id)
		}
	}

	log.WithFields(logrus.Fields{
		"rows":    res.Rows,
		"updated": res.Updated,
		"created": res.Created,
		"skipped": len(res.Skipped),
		"failed":  len(res.Failed),
	}).Info("analytics batch reconciled")
	return res, nil
}
