// Package airports holds the static airport reference table used for route
// resolution and country classification.
package airports

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"flightmap/internal/domain"
)

// DefaultCountry is assumed for airports without a mapped country.
const DefaultCountry = "US"

//go:embed airports.json
var embedded []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

type Table struct {
	byCode map[string]domain.Airport
}

// New builds a table from a list of airports. Codes are matched
// case-insensitively; later duplicates win.
func New(list []domain.Airport) *Table {
	t := &Table{byCode: make(map[string]domain.Airport, len(list))}
	for _, a := range list {
		code := normalize(a.Code)
		if code == "" {
			continue
		}
		a.Code = code
		t.byCode[code] = a
	}
	return t
}

// Load decodes a JSON array of airports.
func Load(r io.Reader) (*Table, error) {
	var list []domain.Airport
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding airports: %w", err)
	}
	return New(list), nil
}

// Default returns the table compiled into the binary.
func Default() *Table {
	defaultOnce.Do(func() {
		var list []domain.Airport
		if err := json.Unmarshal(embedded, &list); err != nil {
			panic(fmt.Sprintf("airports: embedded table is malformed: %v", err))
		}
		defaultTable = New(list)
	})
	return defaultTable
}

func (t *Table) Lookup(code string) (domain.Airport, bool) {
	a, ok := t.byCode[normalize(code)]
	return a, ok
}

// Name returns the display name, or the code itself when unknown.
func (t *Table) Name(code string) string {
	if a, ok := t.Lookup(code); ok && a.Name != "" {
		return a.Name
	}
	return code
}

// Country maps an airport code to its country, falling back to
// DefaultCountry for unknown codes and entries without a country.
func (t *Table) Country(code string) string {
	if a, ok := t.Lookup(code); ok && a.Country != "" {
		return a.Country
	}
	return DefaultCountry
}

func (t *Table) Len() int {
	return len(t.byCode)
}

// Codes returns all known codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.byCode))
	for code := range t.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
