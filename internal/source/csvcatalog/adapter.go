package csvcatalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/shopsearch/internal/domain"
)

// Catalog column names. Lookups are case-insensitive.
const (
	colID          = "id"
	colGender      = "gender"
	colCategory    = "mastercategory"
	colSubCategory = "subcategory"
	colArticleType = "articletype"
	colBaseColour  = "basecolour"
	colSeason      = "season"
	colYear        = "year"
	colUsage       = "usage"
	colDisplayName = "productdisplayname"
)

var requiredColumns = []string{colID, colGender, colBaseColour, colSeason, colUsage, colDisplayName}

// Adapter reads a product catalog CSV with one image per product stored as
// <imagesDir>/<id>.<ext>.
type Adapter struct {
	csvPath   string
	imagesDir string
	items     []domain.CatalogItem
	loaded    bool
}

// NewAdapter creates a new catalog adapter.
// Parameters:
//   - csvPath: path to the catalog CSV.
//   - imagesDir: directory holding product images named by product id.
// Returns:
//   - *Adapter: initialized catalog adapter.
func NewAdapter(csvPath, imagesDir string) *Adapter {
	return &Adapter{csvPath: csvPath, imagesDir: imagesDir}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "csv:" + filepath.Base(a.csvPath)
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("CSV catalog (%s)", a.csvPath)
}

// FetchBatch returns catalog items ordered by product id. The cursor is the
// index of the next item.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.CatalogItem, string, error) {
	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, "", fmt.Errorf("failed to load catalog: %w", err)
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}
	if start >= len(a.items) {
		return []domain.CatalogItem{}, "", nil
	}

	end := start + limit
	if end > len(a.items) {
		end = len(a.items)
	}

	next := ""
	if end < len(a.items) {
		next = strconv.Itoa(end)
	}
	return a.items[start:end], next, nil
}

func (a *Adapter) load() error {
	file, err := os.Open(a.csvPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Display names sometimes contain unquoted commas.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("catalog is missing column %q", col)
		}
	}

	a.items = a.items[:0]
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		item, ok := a.parseRecord(record, index, len(header))
		if !ok {
			continue
		}
		a.items = append(a.items, item)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].ID < a.items[j].ID
	})
	return nil
}

func (a *Adapter) parseRecord(record []string, index map[string]int, width int) (domain.CatalogItem, bool) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	id, err := strconv.ParseInt(field(colID), 10, 64)
	if err != nil || id <= 0 {
		return domain.CatalogItem{}, false
	}

	name := field(colDisplayName)
	// The display name is the last column; fold any overflow back into it.
	if i := index[colDisplayName]; i == width-1 && len(record) > width {
		name = strings.TrimSpace(strings.Join(record[i:], ","))
	}

	year, _ := strconv.Atoi(field(colYear))

	return domain.CatalogItem{
		ID:          id,
		Gender:      field(colGender),
		Category:    field(colCategory),
		SubCategory: field(colSubCategory),
		ArticleType: field(colArticleType),
		BaseColor:   field(colBaseColour),
		Season:      field(colSeason),
		Year:        year,
		Usage:       field(colUsage),
		DisplayName: name,
		ImagePath:   a.imagePath(id),
	}, true
}

// imagePath finds the product image; it returns "" when there is none.
func (a *Adapter) imagePath(id int64) string {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp"} {
		p := filepath.Join(a.imagesDir, strconv.FormatInt(id, 10)+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
