package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
)

// Format is the registry name of the activity export parser.
const Format = "export"

type column int

const (
	colSymbol column = iota
	colType
	colQuantity
	colPrice
	colValue
	colFees
	colTimestamp
	numColumns
)

var columnNames = [numColumns]string{"symbol", "type", "quantity", "price", "value", "fees", "timestamp"}

// headerAliases maps lower-cased header labels seen in exports to columns.
var headerAliases = map[string]column{
	"symbol":           colSymbol,
	"asset":            colSymbol,
	"currency":         colSymbol,
	"coin":             colSymbol,
	"type":             colType,
	"description":      colType,
	"transaction type": colType,
	"quantity":         colQuantity,
	"amount":           colQuantity,
	"price":            colPrice,
	"spot price":       colPrice,
	"value":            colValue,
	"total":            colValue,
	"subtotal":         colValue,
	"fee":              colFees,
	"fees":             colFees,
	"timestamp":        colTimestamp,
	"date":             colTimestamp,
	"time":             colTimestamp,
}

// Parser reads activity exports: a header line followed by one row per transaction.
type Parser struct{}

// NewParser creates a new instance of the export Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the parser name.
func (p *Parser) Format() string { return Format }

// Parse maps every data row to a RawRow through the header. A missing column or an
// unreadable header fails the whole source; malformed rows are skipped and reported.
func (p *Parser) Parse(r io.Reader, source string) ([]models.RawRow, *multierror.Error, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("export parser: failed to read CSV header: %w", err)
	}
	index, err := mapHeader(header)
	if err != nil {
		return nil, nil, fmt.Errorf("export parser: %w", err)
	}

	var rows []models.RawRow
	var skipped *multierror.Error
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, nil, fmt.Errorf("export parser: failed to read CSV records: %w", err)
			}
			skipped = multierror.Append(skipped, &models.RowError{Source: source, Line: parseErr.Line, Err: fmt.Errorf("%w: %v", models.ErrParse, parseErr.Err)})
			logger.L.Warn("Export parser: skipping malformed row", "source", source, "line", parseErr.Line, "error", parseErr.Err)
			continue
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		if len(record) < len(header) {
			skipped = multierror.Append(skipped, &models.RowError{Source: source, Line: line, Err: fmt.Errorf("%w: expected %d fields, got %d", models.ErrParse, len(header), len(record))})
			logger.L.Warn("Export parser: skipping short row", "source", source, "line", line, "fields", len(record))
			continue
		}

		rows = append(rows, models.RawRow{
			Line:      line,
			Source:    source,
			Symbol:    record[index[colSymbol]],
			Type:      record[index[colType]],
			Quantity:  record[index[colQuantity]],
			Price:     record[index[colPrice]],
			Value:     record[index[colValue]],
			Fees:      record[index[colFees]],
			Timestamp: record[index[colTimestamp]],
		})
	}
	return rows, skipped, nil
}

func mapHeader(header []string) ([numColumns]int, error) {
	var index [numColumns]int
	for i := range index {
		index[i] = -1
	}
	for i, label := range header {
		label = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(label, "\ufeff")))
		col, ok := headerAliases[label]
		if !ok || index[col] != -1 {
			continue
		}
		index[col] = i
	}
	var missing []string
	for col, i := range index {
		if i == -1 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return index, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
