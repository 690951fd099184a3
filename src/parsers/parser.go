package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/parsers/export"
)

// Result is the outcome of parsing one source. Skipped lists the rows that
// could not be read; the remaining rows are still usable.
type Result struct {
	Rows    []models.RawRow
	Skipped *multierror.Error
}

// Parser turns a raw export into untyped rows.
type Parser interface {
	Parse(r io.Reader, source string) ([]models.RawRow, *multierror.Error, error)
	Format() string
}

var registry = map[string]Parser{}

func register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := registry[key]; ok {
		panic("duplicate parser format: " + key)
	}
	registry[key] = p
}

func init() {
	register(export.NewParser())
}

// GetParser returns the parser registered for format.
func GetParser(format string) (Parser, error) {
	p, ok := registry[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported source format: %s", format)
	}
	return p, nil
}

// ParseSource runs the parser for format over r.
func ParseSource(format string, r io.Reader, source string) (*Result, error) {
	p, err := GetParser(format)
	if err != nil {
		return nil, err
	}
	rows, skipped, err := p.Parse(r, source)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, Skipped: skipped}, nil
}
