package reconcile

import (
	"sort"
	"strings"
)

// Field is a logical column of an analytics export.
type Field string

const (
	FieldDate        Field = "date"
	FieldViews       Field = "views"
	FieldLikes       Field = "likes"
	FieldComments    Field = "comments"
	FieldShares      Field = "shares"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPostType    Field = "postType"
)

// Mapper translates logical fields to the literal header a platform's export uses.
type Mapper map[Field]string

type platformMapper struct {
	name   string
	fields Mapper
}

// Keyed by lower-cased platform name. Every entry must map FieldDate and FieldViews.
var mappers = map[string]platformMapper{
	"instagram": {
		name: "Instagram",
		fields: Mapper{
			FieldDate:        "Orario di pubblicazione",
			FieldViews:       "Copertura",
			FieldLikes:       "Mi piace",
			FieldComments:    "Commenti",
			FieldShares:      "Condivisioni",
			FieldDescription: "Descrizione",
			FieldPostType:    "Tipo di post",
		},
	},
	"youtube": {
		name: "YouTube",
		fields: Mapper{
			FieldDate:     "Video publish time",
			FieldViews:    "Views",
			FieldLikes:    "Likes",
			FieldComments: "Comments added",
			FieldShares:   "Shares",
			FieldTitle:    "Video title",
		},
	},
	"facebook": {
		name: "Facebook",
		fields: Mapper{
			FieldDate:        "Publish time",
			FieldViews:       "Reach",
			FieldLikes:       "Reactions",
			FieldComments:    "Comments",
			FieldShares:      "Shares",
			FieldTitle:       "Title",
			FieldDescription: "Description",
			FieldPostType:    "Post type",
		},
	},
	"tiktok": {
		name: "TikTok",
		fields: Mapper{
			FieldDate:     "Date",
			FieldViews:    "Video Views",
			FieldLikes:    "Likes",
			FieldComments: "Comments",
			FieldShares:   "Shares",
		},
	},
}

func platformKey(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// MapperFor returns the column mapper for platform. The second result is
// false when the platform has no mapper.
func MapperFor(platform string) (Mapper, bool) {
	pm, ok := mappers[platformKey(platform)]
	if !ok {
		return nil, false
	}
	return pm.fields, true
}

// Supported reports whether platform has a column mapper.
func Supported(platform string) bool {
	_, ok := mappers[platformKey(platform)]
	return ok
}

// DisplayName returns the canonical spelling of a supported platform, or the
// trimmed input when the platform is unknown.
func DisplayName(platform string) string {
	if pm, ok := mappers[platformKey(platform)]; ok {
		return pm.name
	}
	return strings.TrimSpace(platform)
}

// Platforms lists the supported platform keys in sorted order.
func Platforms() []string {
	keys := make([]string, 0, len(mappers))
	for k := range mappers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value extracts field f from row using the mapper's header.
func (m Mapper) Value(row Row, f Field) (string, bool) {
	return Lookup(row, m[f])
}

// Lookup finds header in row ignoring case and surrounding whitespace in the
// row's column names. Empty values are reported as absent. When several
// columns fold to header, the exact name is tried first, then the others in
// sorted order, and the first non-empty value wins.
func Lookup(row Row, header string) (string, bool) {
	if header == "" {
		return "", false
	}
	if v := strings.TrimSpace(row[header]); v != "" {
		return v, true
	}
	var keys []string
	for k := range row {
		if k != header && strings.EqualFold(strings.TrimSpace(k), header) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v, true
		}
	}
	return "", false
}
