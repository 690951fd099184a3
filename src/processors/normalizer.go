package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/security/validation"
)

// TimestampLayouts are tried in order when reading the export's time column.
var TimestampLayouts = []string{
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 3:04:05 PM",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var meridiem = regexp.MustCompile(`(?i)\b[ap]m$`)

// Normalizer converts raw export rows into typed transactions.
type Normalizer struct{}

func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize converts rows, dropping exact duplicates within the batch. Rows that
// cannot be converted are left out and listed in the returned error; the
// transactions are usable whether or not an error is returned.
func (n *Normalizer) Normalize(rows []models.RawRow) ([]models.Transaction, error) {
	var txs []models.Transaction
	var rejected *multierror.Error
	seen := make(map[string]bool, len(rows))

	for _, raw := range rows {
		tx, err := normalizeRow(raw)
		if err != nil {
			logger.L.Warn("Normalizer: skipping row", "source", raw.Source, "line", raw.Line, "error", err)
			rejected = multierror.Append(rejected, &models.RowError{Source: raw.Source, Line: raw.Line, Err: fmt.Errorf("%w: %v", models.ErrParse, err)})
			continue
		}
		if seen[tx.HashID] {
			logger.L.Debug("Normalizer: dropping duplicate row within batch", "source", raw.Source, "line", raw.Line)
			continue
		}
		seen[tx.HashID] = true
		txs = append(txs, tx)
	}
	return txs, rejected.ErrorOrNil()
}

func normalizeRow(raw models.RawRow) (models.Transaction, error) {
	symbol := strings.ToUpper(validation.SanitizeField(raw.Symbol))
	if err := validation.ValidateSymbol(symbol); err != nil {
		return models.Transaction{}, err
	}
	label := validation.SanitizeField(raw.Type)
	if err := validation.ValidateTypeLabel(label); err != nil {
		return models.Transaction{}, err
	}

	quantity, _, err := ParseAmount(raw.Quantity)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("quantity: %w", err)
	}
	price, currency, err := ParseAmount(raw.Price)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("price: %w", err)
	}
	if err := validation.ValidateCurrencyCode(currency); err != nil {
		currency = ""
	}
	value, _, err := ParseAmount(raw.Value)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("value: %w", err)
	}
	fees, _, err := ParseAmount(raw.Fees)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("fees: %w", err)
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return models.Transaction{}, err
	}

	tx := models.Transaction{
		Symbol:    symbol,
		Type:      ClassifyType(label),
		Quantity:  quantity.Abs(),
		Price:     price,
		Value:     value,
		Fees:      fees,
		Currency:  currency,
		Timestamp: ts,
	}
	tx.HashID = ContentHash(tx)
	return tx, nil
}

// ParseAmount reads a "NUMBER CUR" field. Thousands separators are removed and the
// number may use exponent notation. A trailing unit (letters or a currency sign) is
// stripped and returned as the currency when it is a 3-letter code. Any other
// leftover text is an error. Empty fields read as zero.
func ParseAmount(s string) (decimal.Decimal, string, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\""))
	if s == "" {
		return decimal.Zero, "", nil
	}

	number, suffix := splitUnit(s)
	number = strings.ReplaceAll(strings.ReplaceAll(number, ",", ""), " ", "")
	if number == "" {
		return decimal.Zero, "", fmt.Errorf("no numeric part in %q", s)
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid number %q: %w", s, err)
	}

	currency := ""
	if code := strings.ToUpper(suffix); len(code) == 3 && isLetters(code) {
		currency = code
	}
	return d, currency, nil
}

// splitUnit separates a trailing unit from the number. The unit is either the last
// whitespace-separated word or a run of unit runes glued to the end of the number.
func splitUnit(s string) (number, unit string) {
	if fields := strings.Fields(s); len(fields) > 1 && isUnit(fields[len(fields)-1]) {
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
	end := len(s)
	for end > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:end])
		if !isUnitRune(r) {
			break
		}
		end -= size
	}
	// A lone trailing "e" is a truncated exponent, not a unit.
	if end < len(s) && end > 0 && strings.EqualFold(s[end:], "e") {
		return s, ""
	}
	return strings.TrimSpace(s[:end]), s[end:]
}

func isUnit(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isUnitRune(r) {
			return false
		}
	}
	return true
}

func isUnitRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Sc, r)
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseTimestamp reads the export's time column as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	// Go's PM element only matches upper case.
	s = meridiem.ReplaceAllStringFunc(s, strings.ToUpper)
	for _, layout := range TimestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ClassifyType maps an export label to a transaction type. Unknown labels pass through.
func ClassifyType(label string) models.TxType {
	lower := strings.ToLower(strings.TrimSpace(label))
	switch {
	case lower == "buy" || lower == "purchase":
		return models.TxBuy
	case lower == "sell":
		return models.TxSell
	case strings.Contains(lower, "reward"):
		return models.TxStakingReward
	case strings.HasPrefix(lower, "unstak"):
		return models.TxUnstake
	case lower == "stake" || strings.HasPrefix(lower, "staking"):
		return models.TxStake
	}
	return models.TxType(label)
}

// ContentHash identifies a transaction by every non-derived field.
func ContentHash(tx models.Transaction) string {
	input := strings.Join([]string{
		tx.Symbol,
		string(tx.Type),
		tx.Quantity.String(),
		tx.Price.String(),
		tx.Value.String(),
		tx.Fees.String(),
		tx.Currency,
		tx.Timestamp.UTC().Format(time.RFC3339),
	}, "|")
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
