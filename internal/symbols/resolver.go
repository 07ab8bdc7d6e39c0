// Package symbols resolves generic signal symbols to tradable contracts
// using the symtoken symbol master.
package symbols

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "signal-trader/internal/errors"
	"signal-trader/internal/store"
	"signal-trader/pkg/utils"
)

// ContractSource provides symbol master lookups.
type ContractSource interface {
	FindOptionContracts(ctx context.Context, base, exchange, strike, optType string) ([]store.SymbolRow, error)
}

// Resolver maps (base, strike, option type) to an exact tradable symbol.
type Resolver struct {
	source ContractSource
	logger zerolog.Logger
	now    func() time.Time
}

// NewResolver creates a new symbol resolver.
func NewResolver(source ContractSource, logger zerolog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger.With().Str("component", "resolver").Logger(),
		now:    time.Now,
	}
}

// Resolve returns the tradable symbol and lot size for an options signal.
// Only live (non-expired) contracts are considered, nearest expiry first.
// When an expiry tag was extracted from the message, contracts matching it
// are preferred, falling back to the nearest expiry when none match.
func (r *Resolver) Resolve(ctx context.Context, base, strike, optType, exchange, expiryTag string) (string, int, error) {
	rows, err := r.source.FindOptionContracts(ctx, base, exchange, strike, optType)
	if err != nil {
		return "", 0, apperrors.Wrap(err, "symbol lookup")
	}

	type contract struct {
		row    store.SymbolRow
		expiry time.Time
	}

	today := r.now().In(utils.IndiaLocation).Truncate(24 * time.Hour)
	var live []contract
	for _, row := range rows {
		exp, err := ParseExpiry(row.Expiry)
		if err != nil {
			r.logger.Debug().Str("symbol", row.Symbol).Str("expiry", row.Expiry).Msg("Skipping contract with unparseable expiry")
			continue
		}
		if exp.Before(today) {
			continue
		}
		live = append(live, contract{row: row, expiry: exp})
	}

	if len(live) == 0 {
		return "", 0, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s %s%s on %s", base, strike, optType, exchange)
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].expiry.Before(live[j].expiry)
	})

	if expiryTag != "" {
		for _, c := range live {
			if matchesExpiryTag(c.expiry, expiryTag) {
				return c.row.Symbol, lotOrOne(c.row.LotSize), nil
			}
		}
		r.logger.Warn().
			Str("base", base).
			Str("expiry_tag", expiryTag).
			Str("fallback", live[0].row.Symbol).
			Msg("No contract matches expiry tag, using nearest expiry")
	}

	return live[0].row.Symbol, lotOrOne(live[0].row.LotSize), nil
}

func lotOrOne(lot int) int {
	if lot <= 0 {
		return 1
	}
	return lot
}

// ParseExpiry parses a broker-format expiry date ("26-Sep-2025", "26-Sep-25").
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02-Jan-2006", "2-Jan-2006", "02-Jan-06", "2-Jan-06"} {
		if t, err := time.ParseInLocation(layout, s, utils.IndiaLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry format: %q", s)
}

// matchesExpiryTag reports whether a contract expiry matches a normalized
// tag: "25JAN" (day+month) or a bare month like "FEB".
func matchesExpiryTag(expiry time.Time, tag string) bool {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag == "" {
		return false
	}

	month := strings.ToUpper(expiry.Format("Jan"))
	day := expiry.Format("2")

	// Day+month form: leading digits then month
	i := 0
	for i < len(tag) && tag[i] >= '0' && tag[i] <= '9' {
		i++
	}
	if i > 0 {
		return strings.TrimLeft(tag[:i], "0") == day && strings.HasPrefix(tag[i:], month)
	}

	// Bare month form
	return strings.HasPrefix(tag, month)
}

// LoadSymbolSet reads the valid-underlying CSV used by the classifier's
// symbol scan. The first column of each row is taken as a symbol; a
// header row is skipped when it reads "symbol".
func LoadSymbolSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbols csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading symbols csv: %w", err)
	}

	set := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(rec[0]))
		if sym == "" {
			continue
		}
		if i == 0 && sym == "SYMBOL" {
			continue
		}
		set[sym] = struct{}{}
	}

	return set, nil
}
