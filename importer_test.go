package authorflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/authorflow/authorflow/reconcile"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestImporter(t *testing.T, s *Store, m *Metrics) (*Importer, *PostCache) {
	t.Helper()
	cache := NewPostCache(s, time.Hour)
	return NewImporter(s, cache, m, quietLogger(), reconcile.DateParser{ReferenceYear: 2025}), cache
}

func mustRows(t *testing.T, csv string) []reconcile.Row {
	t.Helper()
	rows, err := ReadRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	return rows
}

func TestReadRows(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("\ufeffOrario di pubblicazione;Copertura;Mi piace\n2025-07-14;1.234;20\n\n;;\n2025-07-15;7\n"))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Orario di pubblicazione"] != "2025-07-14" || rows[0]["Copertura"] != "1.234" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if _, ok := rows[1]["Mi piace"]; ok {
		t.Errorf("short record should leave missing columns absent: %v", rows[1])
	}
}

func TestReadRowsQuotedAndTabs(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("Video title\tViews\n\"Hello, world\"\t10\n"))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["Video title"] != "Hello, world" || rows[0]["Views"] != "10" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestReadRowsNoHeader(t *testing.T) {
	if _, err := ReadRows(strings.NewReader("  \n")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestPlatformFromFilename(t *testing.T) {
	tests := map[string]string{
		"Instagram.csv":                 "instagram",
		"youtube-2025-07.csv":           "youtube",
		"exports/TikTok_luglio.csv":     "tiktok",
		`C:\Users\me\facebook data.csv`: "facebook",
		"linkedin.csv":                  "linkedin",
	}
	for name, want := range tests {
		if got := PlatformFromFilename(name); got != want {
			t.Errorf("PlatformFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestImporterUpdatesMatchingPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if _, err := s.SavePost(ctx, Post{ID: "p1", Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 9)}); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	im, _ := newTestImporter(t, s, nil)

	report, err := im.Run(ctx, "author-1", reconcile.StrategyUpdateOnly, []ImportFile{{
		Name: "Instagram.csv",
		Rows: mustRows(t, "Orario di pubblicazione,Copertura,Mi piace,Commenti\n2025-07-14,500,20,3\n"),
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Rows != 1 || report.Updated != 1 || report.Created != 0 || report.NothingApplied {
		t.Errorf("unexpected report: %+v", report)
	}

	got, _ := s.GetPost(ctx, "p1")
	want := Performance{Views: 500, Likes: 20, Comments: 3}
	if got.Performance == nil || *got.Performance != want {
		t.Errorf("Performance = %+v, want %+v", got.Performance, want)
	}
}

func TestImporterNothingApplied(t *testing.T) {
	s := setupTestStore(t)
	im, _ := newTestImporter(t, s, nil)

	report, err := im.Run(context.Background(), "author-1", reconcile.StrategyUpdateOnly, []ImportFile{{
		Name: "youtube.csv",
		Rows: mustRows(t, "Video publish time,Views\nJul 14, 2025,10\n"),
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.NothingApplied || !report.Files[0].NoneApplied {
		t.Errorf("expected nothing applied, got %+v", report)
	}
	if len(report.Files[0].Skipped) != 1 || report.Files[0].Skipped[0].Reason != reconcile.SkipUnmatched {
		t.Errorf("expected one unmatched skip, got %+v", report.Files[0].Skipped)
	}
}

func TestImporterMultipleFiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, p := range []Post{
		{ID: "ig", Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 9)},
		{ID: "yt", Owner: "author-1", Platform: "YouTube", ScheduledAt: at(15, 18)},
	} {
		if _, err := s.SavePost(ctx, p); err != nil {
			t.Fatalf("SavePost failed: %v", err)
		}
	}
	m := NewMetrics()
	im, cache := newTestImporter(t, s, m)
	if _, err := cache.ListPosts(ctx, "author-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	report, err := im.Run(ctx, "author-1", reconcile.StrategyCreateNew, []ImportFile{
		{Name: "instagram.csv", Rows: mustRows(t, "Orario di pubblicazione,Copertura\n2025-07-14,100\n")},
		{Name: "youtube.csv", Rows: mustRows(t, "Video publish time,Views,Likes\nJul 15, 2025,250,9\n")},
		{Name: "tiktok.csv", Rows: mustRows(t, "Date,Video Views\n16 luglio,42\n")},
		{Name: "linkedin.csv", Rows: mustRows(t, "Date,Impressions\n2025-07-14,5\n")},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Rows != 4 || report.Updated != 2 || report.Created != 1 {
		t.Errorf("unexpected totals: %+v", report)
	}
	if len(report.Files) != 4 || report.Files[0].File != "instagram.csv" || report.Files[3].File != "linkedin.csv" {
		t.Fatalf("file reports must keep upload order: %+v", report.Files)
	}
	if !report.Files[3].Unsupported {
		t.Errorf("linkedin should be unsupported")
	}

	posts, err := cache.ListPosts(ctx, "author-1")
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("cache should be invalidated after import, got %d posts", len(posts))
	}
	var created Post
	for _, p := range posts {
		if p.ID != "ig" && p.ID != "yt" {
			created = p
		}
	}
	if created.Platform != "TikTok" || !created.Published || !created.ScheduledAt.Equal(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created post: %+v", created)
	}

	if v := testutil.ToFloat64(m.rows.WithLabelValues("Instagram", "updated")); v != 1 {
		t.Errorf("instagram updated rows metric = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.files.WithLabelValues("unsupported", "unsupported")); v != 1 {
		t.Errorf("unsupported files metric = %v, want 1", v)
	}
}

func TestImporterIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if _, err := s.SavePost(ctx, Post{ID: "p1", Owner: "author-1", Platform: "Facebook", ScheduledAt: at(14, 10)}); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	im, _ := newTestImporter(t, s, nil)
	files := []ImportFile{{Name: "facebook.csv", Rows: mustRows(t, "Publish time,Reach,Reactions\n07/14/2025 10:00,80,7\n")}}

	for i := 0; i < 2; i++ {
		report, err := im.Run(ctx, "author-1", reconcile.StrategyCreateNew, files)
		if err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
		if report.Updated != 1 || report.Created != 0 {
			t.Errorf("run %d: unexpected report %+v", i+1, report)
		}
	}
	posts, _ := s.ListPosts(ctx, "author-1")
	if len(posts) != 1 || posts[0].Performance.Views != 80 {
		t.Errorf("re-import must not duplicate or change counters: %+v", posts)
	}
}

func TestImporterMatchesLocalCalendarDay(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	cest := time.FixedZone("CEST", 2*60*60)
	if _, err := s.SavePost(ctx, Post{ID: "late", Owner: "author-1", Platform: "Instagram", ScheduledAt: time.Date(2025, 7, 14, 0, 30, 0, 0, cest)}); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	im := NewImporter(s, nil, nil, quietLogger(), reconcile.DateParser{ReferenceYear: 2025, Location: cest})

	report, err := im.Run(ctx, "author-1", reconcile.StrategyUpdateOnly, []ImportFile{{
		Name: "instagram.csv",
		Rows: mustRows(t, "Orario di pubblicazione,Copertura\n2025-07-14,500\n"),
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Updated != 1 || report.Created != 0 {
		t.Fatalf("expected the 00:30 local post to match its local day, got %+v", report)
	}
	got, _ := s.GetPost(ctx, "late")
	if got.Performance == nil || got.Performance.Views != 500 {
		t.Errorf("Performance = %+v", got.Performance)
	}
}
