package reconcile

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is an export row reduced to the fields matching cares about.
type Record struct {
	Index       int
	Date        time.Time
	Views       int64
	Likes       int64
	Comments    int64
	Shares      int64
	Title       string
	Description string
	PostType    string
}

// Performance returns the counters carried by the record.
func (r Record) Performance() Performance {
	return Performance{
		Views:    r.Views,
		Likes:    r.Likes,
		Comments: r.Comments,
		Shares:   r.Shares,
	}
}

// SkipReason says why a row produced no write.
type SkipReason string

const (
	SkipMissingDate     SkipReason = "missing_date"
	SkipUnparseableDate SkipReason = "unparseable_date"
	SkipMissingViews    SkipReason = "missing_views"
	SkipUnmatched       SkipReason = "unmatched"
)

// Skip records a row that was left out of the plan.
type Skip struct {
	Index  int        `json:"row"`
	Reason SkipReason `json:"reason"`
	Value  string     `json:"value,omitempty"`
}

// Normalize converts raw rows into records using the platform's mapper. Rows
// without a usable date or views value are returned as skips. ok is false
// when the platform has no mapper; nothing is processed in that case.
func Normalize(platform string, rows []Row, dates DateParser) (records []Record, skipped []Skip, ok bool) {
	m, ok := MapperFor(platform)
	if !ok {
		return nil, nil, false
	}
	records = make([]Record, 0, len(rows))
	for i, row := range rows {
		rawDate, has := m.Value(row, FieldDate)
		if !has {
			skipped = append(skipped, Skip{Index: i, Reason: SkipMissingDate})
			continue
		}
		date, err := dates.ParseDate(platform, rawDate)
		if err != nil {
			skipped = append(skipped, Skip{Index: i, Reason: SkipUnparseableDate, Value: rawDate})
			continue
		}
		rawViews, has := m.Value(row, FieldViews)
		if !has {
			skipped = append(skipped, Skip{Index: i, Reason: SkipMissingViews})
			continue
		}
		views, valid := parseCount(rawViews)
		if !valid {
			skipped = append(skipped, Skip{Index: i, Reason: SkipMissingViews, Value: rawViews})
			continue
		}
		rec := Record{Index: i, Date: date, Views: views}
		rec.Likes = optionalCount(m, row, FieldLikes)
		rec.Comments = optionalCount(m, row, FieldComments)
		rec.Shares = optionalCount(m, row, FieldShares)
		rec.Title, _ = m.Value(row, FieldTitle)
		rec.Description, _ = m.Value(row, FieldDescription)
		rec.PostType, _ = m.Value(row, FieldPostType)
		records = append(records, rec)
	}
	return records, skipped, true
}

func optionalCount(m Mapper, row Row, f Field) int64 {
	raw, ok := m.Value(row, f)
	if !ok {
		return 0
	}
	n, _ := parseCount(raw)
	return n
}

var (
	groupedCount = regexp.MustCompile(`^\d{1,3}([.,' ]\d{3})+$`)
	plainCount   = regexp.MustCompile(`^\d+([.,]\d+)?$`)
)

// parseCount reads export counters such as "1234", "1,234", "1.234" or
// "12.0". Negative and non-numeric values are rejected.
func parseCount(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	switch {
	case groupedCount.MatchString(s):
		s = strings.NewReplacer(".", "", ",", "", "'", "", " ", "").Replace(s)
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case plainCount.MatchString(s):
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
