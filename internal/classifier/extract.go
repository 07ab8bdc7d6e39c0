package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"signal-trader/internal/models"
)

// commonIndices are always recognized by the symbol scan, even when no
// symbol CSV was loaded.
var commonIndices = map[string]struct{}{
	"NIFTY": {}, "BANKNIFTY": {}, "FINNIFTY": {}, "MIDCPNIFTY": {},
	"SENSEX": {}, "BANKEX": {}, "CRUDEOIL": {}, "GOLD": {}, "SILVER": {},
	"NATURALGAS": {},
}

var (
	upperWordPattern = regexp.MustCompile(`\b[A-Z]{3,15}\b`)

	// Known index/commodity/large-cap names, incl. multi-word forms
	knownSymbolPattern = regexp.MustCompile(`(?i)\b(nifty|banknifty|finnifty|midcpnifty|sensex|bankex|crude\s*oil|crude|gold|silver|natural\s*gas|tcs|infy|reliance|hdfc\s*bank|icici\s*bank|sbine?)\b`)

	parenTickerPattern = regexp.MustCompile(`\(([A-Z]+)\)`)

	// Generic WORD STRIKE CE/PE, e.g. "DALBHARAT 2180 PE"
	genericSymbolPattern = regexp.MustCompile(`(?i)\b([A-Z]{3,15})\s+(\d{3,6})\s+(?:CE|PE)`)

	strikePattern     = regexp.MustCompile(`\b(\d{3,6})\b`)
	optionTypePattern = regexp.MustCompile(`(?i)\b(CE|PE|Call|Put)\b`)

	// Month tokens as standalone words; abbreviations with optional full
	// names so "MARUTI" never reads as March
	monthAlt             = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	specificExpiryPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s*` + monthAlt + `\b`)
	monthExpiryPattern    = regexp.MustCompile(`(?i)\b` + monthAlt + `\b`)

	// Keyword-anchored entry price + condition. Alphabetic keywords are
	// word-bounded so "target" never reads as "at".
	entryPricePattern = regexp.MustCompile(`(?i)(\babove\b|\bbelow\b|\baround\b|\bnear\b|\bat\b|\bcmp\b|\bprice\b|\bentry\b|@)[:-]*\s*[^0-9\n]*\s*(\d+(?:\.\d+)?)`)

	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	slPattern = regexp.MustCompile(`(?i)\b(?:stop\s*loss|sl|stop)\s*[:-]*\s*₹?\s*(\d+(?:\.\d+)?)`)

	// Targets: anchor on the keyword, then take the leading run of
	// digits/separators that follows
	targetAnchorPattern = regexp.MustCompile(`(?i)\b(?:target|tgt|tp)s?\s*[:\s-]*`)
	targetRunPattern    = regexp.MustCompile(`^[\d\s,./+]+`)

	// Per-target fallback: "T1: 200", "Target 1 - 200"
	targetItemPattern = regexp.MustCompile(`(?i)\b(?:target|tgt|tp|t)\s*(?:\d+)?\s*[:\s-]*₹?\s*(\d+(?:\.\d+)?)`)
)

// extract pulls structured fields out of text already classified as a
// signal. Numeric fields are parsed here; downstream code never sees the
// raw number strings.
func (c *Classifier) extract(text string, action models.OrderSide) *models.Signal {
	sig := &models.Signal{Action: action}

	c.extractSymbol(text, sig)

	// Strike: first 3-6 digit number
	if m := strikePattern.FindStringSubmatch(text); m != nil {
		sig.Strike = m[1]
	}

	// Option type, normalized to CE/PE
	if m := optionTypePattern.FindStringSubmatch(text); m != nil {
		switch strings.ToUpper(m[1]) {
		case "CE", "CALL":
			sig.OptionType = models.OptionCall
		default:
			sig.OptionType = models.OptionPut
		}
	}

	// Expiry: day+month preferred over bare month
	if m := specificExpiryPattern.FindStringSubmatch(text); m != nil {
		sig.Expiry = m[1] + strings.ToUpper(m[2][:3])
	} else if m := monthExpiryPattern.FindStringSubmatch(text); m != nil {
		sig.Expiry = strings.ToUpper(m[1][:3])
	}

	// Entry price + condition
	if m := entryPricePattern.FindStringSubmatch(text); m != nil {
		cond := strings.ToLower(m[1])
		sig.Price = parseNum(m[2])
		switch cond {
		case "above", "below", "around", "near", "at", "@":
			sig.Condition = cond
		}
	}
	if sig.Price == 0 {
		// First number that is not the strike
		strikeVal := parseNum(sig.Strike)
		for _, n := range numberPattern.FindAllString(text, -1) {
			v := parseNum(n)
			if sig.Strike != "" && v == strikeVal {
				continue
			}
			sig.Price = v
			break
		}
	}

	// Stop loss: first number after a stop/sl keyword
	if m := slPattern.FindStringSubmatch(text); m != nil {
		sig.StopLoss = parseNum(m[1])
	}

	c.extractTargets(text, sig)

	return sig
}

// extractSymbol tries, in order: the valid-symbol token scan, the known
// index/commodity/large-cap regex, a parenthesized ticker, and the generic
// WORD STRIKE CE/PE shape. The first hit wins.
func (c *Classifier) extractSymbol(text string, sig *models.Signal) {
	for _, w := range upperWordPattern.FindAllString(strings.ToUpper(text), -1) {
		if _, ok := c.validSymbols[w]; ok {
			sig.Symbol = w
			return
		}
		if _, ok := commonIndices[w]; ok {
			sig.Symbol = w
			return
		}
	}

	if m := knownSymbolPattern.FindStringSubmatch(text); m != nil {
		raw := strings.ToUpper(m[1])
		switch {
		case strings.Contains(raw, "NATURAL"):
			sig.Symbol = "NATURALGAS"
		case strings.Contains(raw, "CRUDE"):
			sig.Symbol = "CRUDEOIL"
		default:
			sig.Symbol = strings.ReplaceAll(raw, " ", "")
		}
		return
	}

	if m := parenTickerPattern.FindStringSubmatch(text); m != nil {
		sig.Symbol = m[1]
		return
	}

	if m := genericSymbolPattern.FindStringSubmatch(text); m != nil {
		sig.Symbol = strings.ToUpper(m[1])
	}
}

// extractTargets captures the digit/separator run after a target keyword,
// excluding the entry price, the stop loss, and label-sized numbers (≤ 5).
// Extraction order is preserved; the headline target is max for BUY,
// min for SELL.
func (c *Classifier) extractTargets(text string, sig *models.Signal) {
	var targets []float64

	if loc := targetAnchorPattern.FindStringIndex(text); loc != nil {
		section := targetRunPattern.FindString(text[loc[1]:])
		for _, n := range numberPattern.FindAllString(section, -1) {
			if v := parseNum(n); acceptTarget(v, sig) {
				targets = append(targets, v)
			}
		}
	}

	if len(targets) == 0 {
		for _, m := range targetItemPattern.FindAllStringSubmatch(text, -1) {
			if v := parseNum(m[1]); acceptTarget(v, sig) {
				targets = append(targets, v)
			}
		}
	}

	targets = dedupe(targets)
	if len(targets) == 0 {
		return
	}

	sig.Targets = targets
	if sig.Action == models.OrderSideSell {
		sig.Target = minOf(targets)
	} else {
		sig.Target = maxOf(targets)
	}
}

func acceptTarget(v float64, sig *models.Signal) bool {
	return v != sig.Price && v != sig.StopLoss && v > 5
}

func dedupe(vals []float64) []float64 {
	seen := make(map[float64]struct{}, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
