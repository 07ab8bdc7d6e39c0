package classifier

import "regexp"

// keyword is a lexicon entry with a precompiled word-boundary matcher.
// Entries are ordered slices, not maps: action inference depends on
// lexicon order (buy/sell before long/short).
type keyword struct {
	word   string
	weight int
	re     *regexp.Regexp
}

func kw(word string, weight int) keyword {
	return keyword{
		word:   word,
		weight: weight,
		re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`),
	}
}

// Action verbs. Must-have for signals; buy/sell/long/short also set the
// inferred action, first match in this order wins.
var actionKeywords = []keyword{
	kw("buy", 12), kw("sell", 12), kw("long", 10), kw("short", 10),
	kw("exit", 8), kw("square", 7), kw("book", 6), kw("close", 5),
}

// Trading instrument names.
var instrumentKeywords = []keyword{
	kw("nifty", 8), kw("banknifty", 8), kw("finnifty", 8), kw("midcpnifty", 8),
	kw("sensex", 8), kw("bankex", 8),
	kw("crude", 7), kw("crudeoil", 7), kw("gold", 7), kw("silver", 7),
	kw("naturalgas", 7), kw("copper", 6), kw("zinc", 6),
	kw("ce", 7), kw("pe", 7), kw("fut", 7), kw("call", 6), kw("put", 6),
}

// Trade-parameter keywords. SL and target keywords are the hallmark of a
// real call, so both carry high weight and trigger a combined bonus.
var paramKeywords = []keyword{
	kw("sl", 8), kw("stoploss", 8), kw("stop", 6),
	kw("tgt", 8), kw("target", 8), kw("tp", 8),
	kw("entry", 6), kw("cmp", 5), kw("ltp", 5),
	kw("lot", 3), kw("qty", 3), kw("quantity", 3),
	kw("above", 5), kw("below", 5), kw("near", 4), kw("around", 4),
	kw("price", 3), kw("level", 0), // 'level' is neutral, used in commentary too
}

var slKeywords = map[string]bool{"sl": true, "stoploss": true, "stop": true}
var tgtKeywords = map[string]bool{"tgt": true, "target": true, "tp": true}

// Commentary/analysis noise, negative-weighted. The bare "?" entry is
// matched by substring, not word boundary.
var noiseKeywords = []keyword{
	// Greetings and pleasantries
	kw("good", -4), kw("morning", -4), kw("evening", -3), kw("hello", -4),
	kw("thanks", -3), kw("thank", -3), kw("welcome", -3), kw("please", -2),

	// Market commentary and analysis
	kw("looking", -4), kw("trend", -3), kw("trending", -3),
	kw("analysis", -5), kw("view", -4), kw("opinion", -4),
	kw("think", -4), kw("expect", -3), kw("expecting", -3),
	kw("might", -3), kw("may", -3), kw("could", -3), kw("should", -3),
	kw("would", -3), kw("will", -2), kw("going", -2),

	// Waiting/watching indicators
	kw("wait", -6), kw("waiting", -6), kw("watch", -5), kw("watching", -5),
	kw("observe", -4), kw("monitor", -3),

	// Technical commentary
	kw("sideway", -6), kw("sideways", -6), kw("range", -4), kw("ranging", -4),
	kw("breakout", -5), kw("breakdown", -5), kw("zone", -4), kw("level", -3),
	kw("resistance", -4), kw("support", -4), kw("testing", -4),
	kw("bullish", -4), kw("bearish", -4), kw("neutral", -4),

	// Questions and uncertain language
	kw("what", -4), kw("how", -4), kw("when", -4), kw("where", -3),
	kw("question", -5),

	// Multiple/general references
	kw("both", -4), kw("all", -3), kw("everyone", -4), kw("traders", -2),

	// News/updates
	kw("news", -4), kw("update", -4), kw("breaking", -4), kw("announcement", -4),
	kw("report", -3), kw("data", -2),

	// Educational content
	kw("learn", -4), kw("guide", -4), kw("tutorial", -4), kw("tips", -3),
	kw("strategy", -3), kw("method", -3),

	// Pre-market/post-market analysis
	kw("premarket", -4), kw("pre-market", -4), kw("postmarket", -4),
	kw("market", -1), // weak negative, appears in both
}

const questionMarkWeight = -3

// Structural signal patterns. First match adds a fixed bonus.
var signalPatterns = []*regexp.Regexp{
	// BUY/SELL SYMBOL STRIKE CE/PE
	regexp.MustCompile(`(?i)(buy|sell|long|short)\s+\w+\s+\d+\s+(ce|pe)`),

	// Has both SL and TARGET in either order (critical for real signals)
	regexp.MustCompile(`(?i)(?:sl|stoploss|stop).*(?:tgt|target|tp)`),
	regexp.MustCompile(`(?i)(?:tgt|target|tp).*(?:sl|stoploss|stop)`),

	// Entry + SL/TGT format
	regexp.MustCompile(`(?i)(?:entry|above|below|cmp|ltp)[:-]*\s+\d+.*(?:sl|target)`),

	// SYMBOL STRIKE TYPE ABOVE/BELOW SL TARGET
	regexp.MustCompile(`(?i)\w+\s+\d{3,6}\s+(ce|pe)\s+(?:above|below|near|@|cmp).*sl.*target`),
	regexp.MustCompile(`(?i)\w+\s+\d{3,6}\s+(ce|pe).*above`),

	// Stock format: "Stock: XYZ Long/Short Price: X SL: Y TP: Z"
	regexp.MustCompile(`(?i)stock:.*(?:long|short).*price:.*(?:sl|tp)`),
}

// Anti-patterns, each subtracting a large penalty.
var antiPatterns = []*regexp.Regexp{
	// Questions
	regexp.MustCompile(`\?`),

	// Wait/watch for something
	regexp.MustCompile(`(?i)wait\s+for`),
	regexp.MustCompile(`(?i)watch\s+(?:for|out)`),

	// Multiple instruments without specific action
	regexp.MustCompile(`(?i)(?:both|all).*(?:nifty|sensex|banknifty)`),

	// News/updates
	regexp.MustCompile(`(?i)(?:breaking|latest)\s+(?:news|update)`),

	// Educational
	regexp.MustCompile(`(?i)(?:learn|guide|tutorial|tips|strategy)`),
}

var pricePattern = regexp.MustCompile(`\b\d{2,6}(?:\.\d{1,2})?\b`)
