package authorflow

import (
	"time"

	"github.com/authorflow/authorflow/reconcile"
)

// Performance holds analytics counters merged into a post by an import.
type Performance = reconcile.Performance

// Post is a scheduled entry of an author's content calendar. JSON names
// follow the single-page app's document fields.
type Post struct {
	ID          string       `json:"id"`
	Owner       string       `json:"userId"`
	ProjectID   string       `json:"projectId,omitempty"`
	Platform    string       `json:"piattaforma"`
	ScheduledAt time.Time    `json:"data"`
	Title       string       `json:"titolo,omitempty"`
	Description string       `json:"descrizione"`
	ContentType string       `json:"tipoContenuto"`
	Published   bool         `json:"pubblicato"`
	Image       string       `json:"immagine,omitempty"`
	Performance *Performance `json:"performance,omitempty"`
	// PerformanceUpdatedAt is zero until the first successful import.
	PerformanceUpdatedAt time.Time `json:"performanceUpdatedAt,omitempty"`
}

func (p Post) candidate() reconcile.Post {
	return reconcile.Post{ID: p.ID, Platform: p.Platform, ScheduledAt: p.ScheduledAt}
}

func candidates(posts []Post) []reconcile.Post {
	out := make([]reconcile.Post, len(posts))
	for i, p := range posts {
		out[i] = p.candidate()
	}
	return out
}
