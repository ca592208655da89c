package authorflow

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/authorflow/authorflow/reconcile"
)

// ErrNoHeader is returned for an export without a header line.
var ErrNoHeader = errors.New("csv has no header row")

// ImportFile is one parsed analytics export.
type ImportFile struct {
	Name string
	// Platform overrides the platform derived from Name.
	Platform string
	Rows     []reconcile.Row
}

func (f ImportFile) platform() string {
	if f.Platform != "" {
		return f.Platform
	}
	return PlatformFromFilename(f.Name)
}

// FileReport is the outcome for a single file.
type FileReport struct {
	File string `json:"file"`
	reconcile.Result
	NoneApplied bool `json:"nothing_applied"`
}

// ImportReport sums the per-file outcomes of one import.
type ImportReport struct {
	Rows           int          `json:"rows"`
	Updated        int          `json:"updated"`
	Created        int          `json:"created"`
	NothingApplied bool         `json:"nothing_applied"`
	Files          []FileReport `json:"files"`
}

// Importer reconciles uploaded analytics exports against an owner's posts.
type Importer struct {
	store   *Store
	cache   *PostCache
	engine  *reconcile.Engine
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewImporter wires an Importer. cache and metrics may be nil.
func NewImporter(store *Store, cache *PostCache, metrics *Metrics, log logrus.FieldLogger, dates reconcile.DateParser) *Importer {
	if log == nil {
		log = logrus.New()
	}
	return &Importer{
		store:   store,
		cache:   cache,
		metrics: metrics,
		log:     log,
		engine:  reconcile.NewEngine(store, reconcile.WithLogger(log), reconcile.WithDateParser(dates)),
	}
}

func (im *Importer) snapshot(ctx context.Context, owner string) ([]Post, error) {
	if im.cache != nil {
		return im.cache.ListPosts(ctx, owner)
	}
	return im.store.ListPosts(ctx, owner)
}

// Run reconciles every file against one snapshot of the owner's posts. Files
// are processed concurrently; rows within a file keep their order. The
// report is returned even when err is non-nil.
func (im *Importer) Run(ctx context.Context, owner string, strategy reconcile.Strategy, files []ImportFile) (ImportReport, error) {
	start := time.Now()
	defer func() { im.metrics.observeDuration(time.Since(start)) }()

	posts, err := im.snapshot(ctx, owner)
	if err != nil {
		return ImportReport{}, fmt.Errorf("load posts: %w", err)
	}
	snapshot := candidates(posts)

	reports := make([]FileReport, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			res, err := im.engine.Reconcile(gctx, reconcile.Batch{
				Platform: f.platform(),
				Rows:     f.Rows,
				Posts:    snapshot,
				Owner:    owner,
				Strategy: strategy,
			})
			reports[i] = FileReport{File: f.Name, Result: res, NoneApplied: res.NothingApplied()}
			im.metrics.observeResult(res)
			return err
		})
	}
	err = g.Wait()
	if im.cache != nil {
		im.cache.Invalidate(owner)
	}

	report := ImportReport{Files: reports}
	for _, r := range reports {
		report.Rows += r.Rows
		report.Updated += r.Updated
		report.Created += r.Created
	}
	report.NothingApplied = report.Rows > 0 && report.Updated == 0 && report.Created == 0
	im.log.WithFields(logrus.Fields{
		"owner":   owner,
		"files":   len(files),
		"updated": report.Updated,
		"created": report.Created,
	}).Info("analytics import finished")
	return report, err
}

// PlatformFromFilename derives the platform from an export's base name:
// "Instagram.csv" and "youtube-2025-07.csv" give "instagram" and "youtube".
func PlatformFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.IndexAny(base, "-_ ."); i >= 0 {
		base = base[:i]
	}
	return strings.ToLower(strings.TrimSpace(base))
}

// ReadRows parses a CSV export with a header line into rows. The delimiter
// (comma, semicolon or tab) is detected from the header; a UTF-8 BOM is
// dropped and blank lines are ignored.
func ReadRows(r io.Reader) ([]reconcile.Row, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	first = strings.TrimPrefix(first, "\ufeff")
	if strings.TrimSpace(first) == "" {
		return nil, ErrNoHeader
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(first), br))
	cr.Comma = sniffDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var rows []reconcile.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		row := make(reconcile.Row, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sniffDelimiter(line string) rune {
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
