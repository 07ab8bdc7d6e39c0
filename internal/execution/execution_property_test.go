package execution

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

func TestExecutionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("auto stop loss stays on the safe side of the entry", prop.ForAll(
		func(price float64, sell bool) bool {
			svc, _ := newTestService(&fakeBroker{}, nil)
			svc.Disable() // stop at the enable gate, after SL computation

			sig := buySignal()
			sig.Price = price
			sig.StopLoss = 0
			if sell {
				sig.Action = models.OrderSideSell
			}
			svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)

			if sell {
				return sig.StopLoss == utils.Round1(price*(1+autoSLPct)) && sig.StopLoss > price
			}
			return sig.StopLoss == utils.Round1(price*(1-autoSLPct)) && sig.StopLoss > 0 && sig.StopLoss < price
		},
		gen.Float64Range(1, 100000),
		gen.Bool(),
	))

	properties.Property("duplicate window is case insensitive", prop.ForAll(
		func(symbol string) bool {
			svc, _ := newTestService(&fakeBroker{}, nil)

			first := &models.Signal{Action: models.OrderSideBuy, Symbol: strings.ToLower(symbol)}
			second := &models.Signal{Action: models.OrderSideBuy, Symbol: strings.ToUpper(symbol)}
			return !svc.isDuplicate("chan1", first) && svc.isDuplicate("chan1", second)
		},
		gen.AlphaString(),
	))

	properties.Property("every signal routes to a known exchange", prop.ForAll(
		func(symbol string, options bool) bool {
			sig := &models.Signal{Symbol: symbol}
			if options {
				sig.Strike = "100"
				sig.OptionType = models.OptionCall
			}
			switch routeExchange(sig) {
			case models.NSE, models.NFO, models.BFO, models.MCX:
				return true
			}
			return false
		},
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
