package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"signal-trader/internal/models"
	"signal-trader/internal/store"
)

// newClassifyCmd creates the one-shot classification command.
func newClassifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a message without executing it",
		Long:  "Run a single message through the classification chain and print the result.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			text := strings.Join(args, " ")

			parser := newParser(app)
			result, err := parser.Parse(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("classification failed: %w", err)
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printSignalDetail(output, result)
			return nil
		},
	}
}

func printSignalDetail(output *Output, result models.Classification) {
	if !result.IsSignal || result.Signal == nil {
		output.Dim("Not a trade signal (score %d, confidence %.2f)", result.Score, result.Confidence)
		return
	}

	sig := result.Signal
	output.Success("Trade signal (score %d, confidence %.2f)", result.Score, result.Confidence)
	output.Printf("  action:    %s\n", sig.Action)
	output.Printf("  symbol:    %s\n", sig.Symbol)
	if sig.IsOptions() {
		output.Printf("  strike:    %s %s\n", sig.Strike, sig.OptionType)
	}
	if sig.Expiry != "" {
		output.Printf("  expiry:    %s\n", sig.Expiry)
	}
	if sig.Price > 0 {
		output.Printf("  entry:     %.2f", sig.Price)
		if sig.Condition != "" {
			output.Printf(" (%s)", sig.Condition)
		}
		output.Println()
	}
	if sig.StopLoss > 0 {
		output.Printf("  stop loss: %.2f\n", sig.StopLoss)
	}
	if len(sig.Targets) > 0 {
		output.Printf("  targets:   %s\n", joinFloats(sig.Targets))
	}
	if sig.Quantity > 0 {
		output.Printf("  quantity:  %d\n", sig.Quantity)
	}
}

// newPositionsCmd creates the position listing command. Positions are
// restored from the sandbox ledger so the listing works across restarts.
func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show monitored positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Monitor == nil {
				return fmt.Errorf("store unavailable")
			}

			if _, err := app.Monitor.RestoreFromSandbox(cmd.Context()); err != nil {
				app.Logger.Warn().Err(err).Msg("Position restore failed")
			}

			active := app.Monitor.Active()
			history := app.Monitor.History()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"active":  active,
					"history": history,
				})
			}

			if len(active) == 0 {
				output.Dim("No open positions")
			} else {
				output.Bold("Open positions")
				table := NewTable(output, "SYMBOL", "SIDE", "QTY", "ENTRY", "SL", "TARGETS", "STATUS")
				for _, pos := range active {
					table.AddRow(
						pos.Symbol,
						sideCell(output, pos.Action),
						fmt.Sprintf("%d/%d", pos.RemainingQuantity, pos.OriginalQuantity),
						fmt.Sprintf("%.2f", pos.EntryPrice),
						fmt.Sprintf("%.2f", pos.CurrentSL),
						joinFloats(pos.Targets),
						string(pos.Status),
					)
				}
				table.Render()
			}

			if len(history) > 0 {
				output.Println()
				output.Bold("Closed positions")
				table := NewTable(output, "SYMBOL", "SIDE", "QTY", "ENTRY", "CLOSED", "REASON")
				for _, pos := range history {
					table.AddRow(
						pos.Symbol,
						sideCell(output, pos.Action),
						strconv.Itoa(pos.OriginalQuantity),
						fmt.Sprintf("%.2f", pos.EntryPrice),
						pos.ClosedAt.Format("15:04:05"),
						string(pos.Status),
					)
				}
				table.Render()
			}
			return nil
		},
	}
}

func sideCell(output *Output, side models.OrderSide) string {
	if side == models.OrderSideBuy {
		return output.Green(string(side))
	}
	return output.Red(string(side))
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}

// signalCounts aggregates the audit log for the stats command.
type signalCounts struct {
	Total    int            `json:"total"`
	Executed int            `json:"executed"`
	ByStatus map[string]int `json:"by_status"`
}

// newStatsCmd creates the stats command, summarizing the signal audit
// log and the sandbox position ledger.
func newStatsCmd(app *App) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show signal processing statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			counts, err := collectSignalCounts(cmd.Context(), app.Store, channel)
			if err != nil {
				return err
			}

			open, err := app.Store.OpenSandboxPositions(cmd.Context(), app.Config.Trading.Username)
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to load sandbox positions")
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"signals":        counts,
					"open_positions": len(open),
				})
			}

			output.Bold("Signals")
			output.Printf("  total:    %d\n", counts.Total)
			output.Printf("  executed: %d\n", counts.Executed)
			for status, n := range counts.ByStatus {
				output.Printf("  %-9s %d\n", status+":", n)
			}
			output.Println()
			output.Printf("Open positions: %d\n", len(open))
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "restrict to one channel")
	return cmd
}

func collectSignalCounts(ctx context.Context, s *store.SQLiteStore, channel string) (*signalCounts, error) {
	rows, err := s.GetSignals(ctx, store.SignalFilter{Channel: channel})
	if err != nil {
		return nil, fmt.Errorf("loading signal log: %w", err)
	}

	counts := &signalCounts{ByStatus: make(map[string]int)}
	for _, row := range rows {
		counts.Total++
		if row.Executed {
			counts.Executed++
		}
		counts.ByStatus[row.Status]++
	}
	return counts, nil
}
