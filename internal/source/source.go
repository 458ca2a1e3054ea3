package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"webpsync/internal/apperr"
	"webpsync/internal/model"
)

type Kind int

const (
	Projects Kind = iota + 1
	ProjectImages
	PortfolioProjects
	PortfolioImages
)

type descriptor struct {
	table string
	field string
	main  bool
}

var descriptors = map[Kind]descriptor{
	Projects:          {table: "projects", field: "main_image", main: true},
	ProjectImages:     {table: "project_images", field: "image_url"},
	PortfolioProjects: {table: "portfolio_projects", field: "main_image", main: true},
	PortfolioImages:   {table: "portfolio_images", field: "image_url"},
}

var All = []Kind{Projects, ProjectImages, PortfolioProjects, PortfolioImages}

func (k Kind) Table() string {
	return descriptors[k].table
}

// Field is the single column holding the image URL on the owning row.
func (k Kind) Field() string {
	return descriptors[k].field
}

func (k Kind) String() string {
	if d, ok := descriptors[k]; ok {
		return d.table
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Valid() bool {
	_, ok := descriptors[k]
	return ok
}

func ParseKind(table string) (Kind, error) {
	for k, d := range descriptors {
		if d.table == table {
			return k, nil
		}
	}
	return 0, apperr.New(apperr.KindValidation, "source.ParseKind", fmt.Sprintf("tabel sumber tidak dikenal: '%s'", table))
}

// ValidateSourceID accepts only plain row keys: no path separators and no
// dot segments.
func ValidateSourceID(sourceID string) error {
	const op = "source.ValidateSourceID"
	if sourceID == "" {
		return apperr.New(apperr.KindValidation, op, "id baris sumber kosong")
	}
	if sourceID == "." || strings.Contains(sourceID, "..") || strings.ContainsAny(sourceID, "/\\\x00") {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("id baris sumber tidak valid: '%s'", sourceID))
	}
	return nil
}

func RecordID(k Kind, sourceID string) string {
	id := fmt.Sprintf("%s-%s", k.Table(), sourceID)
	if descriptors[k].main {
		id += "-main"
	}
	return id
}

func FormatFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	switch ext {
	case "":
		return "unknown"
	case "jpg":
		return "jpeg"
	default:
		return ext
	}
}

// ExtForFormat is the file extension used for backup copies.
func ExtForFormat(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "unknown", "":
		return "bin"
	default:
		return format
	}
}

func NewImageRecord(k Kind, sourceID, imageURL string) model.ImageRecord {
	format := FormatFromURL(imageURL)
	return model.ImageRecord{
		ID:          RecordID(k, sourceID),
		URL:         imageURL,
		SourceTable: k.Table(),
		SourceID:    sourceID,
		Format:      format,
		IsWebP:      format == "webp",
	}
}

type Ref struct {
	ID  string
	URL string
}

type Lister interface {
	ListImageRefs(ctx context.Context, k Kind) ([]Ref, error)
}

type Scanner struct {
	lister Lister
}

func NewScanner(lister Lister) *Scanner {
	return &Scanner{lister: lister}
}

// Scan enumerates every image currently referenced by the content tables.
func (s *Scanner) Scan(ctx context.Context) ([]model.ImageRecord, error) {
	var records []model.ImageRecord
	for _, k := range All {
		refs, err := s.lister.ListImageRefs(ctx, k)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "source.Scan", fmt.Sprintf("gagal membaca tabel %s", k.Table()), err)
		}
		for _, ref := range refs {
			if strings.TrimSpace(ref.URL) == "" {
				continue
			}
			records = append(records, NewImageRecord(k, ref.ID, ref.URL))
		}
	}
	return records, nil
}

type Filter string

const (
	FilterAll   Filter = "all"
	FilterWebP  Filter = "webp"
	FilterOther Filter = "other"
)

func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(s)) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterWebP:
		return FilterWebP, nil
	case FilterOther:
		return FilterOther, nil
	}
	return "", apperr.New(apperr.KindValidation, "source.ParseFilter", fmt.Sprintf("filter tidak valid: '%s'", s))
}

func ApplyFilter(records []model.ImageRecord, f Filter) []model.ImageRecord {
	if f == FilterAll || f == "" {
		return records
	}
	out := make([]model.ImageRecord, 0, len(records))
	for _, r := range records {
		if (f == FilterWebP) == r.IsWebP {
			out = append(out, r)
		}
	}
	return out
}

func Count(records []model.ImageRecord) (total, webp int) {
	for _, r := range records {
		if r.IsWebP {
			webp++
		}
	}
	return len(records), webp
}
