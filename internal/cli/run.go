package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signal-trader/internal/models"
	"signal-trader/internal/pipeline"
	"signal-trader/pkg/utils"
)

// newRunCmd creates the pipeline command. It restores monitored positions
// from the sandbox ledger and feeds line-oriented messages into the
// classification and execution pipeline until EOF or interrupt.
//
// Feed format, one entry per line:
//
//	<channel>|<message text>     message attributed to a channel
//	<message text>               message on the default channel
//	TICK <EXCHANGE:SYMBOL> <ltp> price update for the paper broker
//	# comment                    ignored
func newRunCmd(app *App) *cobra.Command {
	var (
		feedPath string
		channel  string
		replay   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the signal pipeline on a message feed",
		Long: `Read messages from stdin (or a file), classify each one and execute
trade signals. In paper mode, TICK lines drive simulated fills.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil || app.Service == nil || app.Monitor == nil {
				return fmt.Errorf("pipeline unavailable: store or broker failed to initialize")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			status := utils.GetMarketStatus()
			output.Info("Market status: %s, mode: %s", status, app.Config.Trading.Mode)
			if !utils.IsMarketOpen() && !app.Config.IsPaperMode() {
				output.Warning("Market is closed, live orders will be rejected by the exchange")
			}

			restored, err := app.Monitor.RestoreFromSandbox(ctx)
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Position restore failed")
			} else if restored > 0 {
				output.Info("Restored %d open position(s)", restored)
			}

			var feed io.Reader = cmd.InOrStdin()
			if feedPath != "" {
				f, err := os.Open(feedPath)
				if err != nil {
					return fmt.Errorf("opening feed: %w", err)
				}
				defer f.Close()
				feed = f
			}

			processor := pipeline.NewProcessor(newParser(app), app.Service, app.Store, app.Logger)
			if err := runFeed(ctx, app, processor, output, feed, channel, replay); err != nil {
				return err
			}

			printRunSummary(output, app)
			return nil
		},
	}

	cmd.Flags().StringVar(&feedPath, "file", "", "read the feed from a file instead of stdin")
	cmd.Flags().StringVar(&channel, "channel", "feed", "default channel for unprefixed messages")
	cmd.Flags().BoolVar(&replay, "replay", false, "classify and buffer without executing")

	return cmd
}

// runFeed consumes the feed line by line until EOF or context cancel.
func runFeed(ctx context.Context, app *App, processor *pipeline.Processor, output *Output, feed io.Reader, defaultChannel string, replay bool) error {
	scanner := bufio.NewScanner(feed)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			output.Warning("Interrupted")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "TICK ") {
			handleTick(ctx, app, output, line)
			continue
		}

		msg := models.RawMessage{Text: line, Channel: defaultChannel, Timestamp: time.Now()}
		if prefix, rest, ok := strings.Cut(line, "|"); ok && prefix != "" && !strings.ContainsAny(prefix, " \t") {
			msg.Channel = prefix
			msg.Text = strings.TrimSpace(rest)
		}

		result := processor.ProcessMessage(ctx, msg, replay)
		printClassification(output, msg, result, replay)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}
	return nil
}

// handleTick parses a "TICK EXCHANGE:SYMBOL price" line and forwards it
// to the paper broker. Live mode gets quotes from the broker directly,
// so ticks are only meaningful on paper.
func handleTick(ctx context.Context, app *App, output *Output, line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		output.Warning("Malformed tick: %s", line)
		return
	}
	exchange, symbol, ok := strings.Cut(fields[1], ":")
	if !ok {
		output.Warning("Malformed tick instrument: %s", fields[1])
		return
	}
	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || price <= 0 {
		output.Warning("Malformed tick price: %s", fields[2])
		return
	}

	if app.Paper == nil {
		app.Logger.Debug().Str("symbol", symbol).Msg("Tick ignored in live mode")
		return
	}
	app.Paper.ProcessTick(ctx, models.Exchange(exchange), symbol, price)
}

// printClassification prints the per-message outcome.
func printClassification(output *Output, msg models.RawMessage, result models.Classification, replay bool) {
	if !result.IsSignal || result.Signal == nil {
		output.Dim("[%s] ignored: %s", msg.Channel, truncate(msg.Text, 60))
		return
	}

	sig := result.Signal
	desc := fmt.Sprintf("%s %s", sig.Action, sig.Symbol)
	if sig.IsOptions() {
		desc = fmt.Sprintf("%s %s %s %s", sig.Action, sig.Symbol, sig.Strike, sig.OptionType)
	}

	switch {
	case replay:
		output.Info("[%s] signal (replay): %s conf=%.2f", msg.Channel, desc, result.Confidence)
	default:
		output.Success("[%s] signal: %s conf=%.2f", msg.Channel, desc, result.Confidence)
	}
}

// printRunSummary prints execution and monitor counters after the feed
// is exhausted.
func printRunSummary(output *Output, app *App) {
	stats := app.Service.Stats()
	mstats := app.Monitor.Stats()

	output.Println()
	output.Bold("Session summary")
	output.Printf("  messages executed: %d of %d signals\n", stats.Executed, stats.Total)
	output.Printf("  skipped: %d disabled, %d low confidence, %d duplicate, %d invalid\n",
		stats.SkippedDisabled, stats.SkippedLowConfidence, stats.SkippedDuplicate, stats.SkippedInvalid)
	output.Printf("  failed: %d\n", stats.Failed)
	output.Printf("  positions: %d active, %d closed (%d SL hits, %d target hits)\n",
		mstats.Active, mstats.Closed, mstats.SLHits, mstats.TargetHits)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
