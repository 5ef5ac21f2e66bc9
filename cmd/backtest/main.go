// Command backtest replays a CSV price series through a grid session and
// prints the fills and final position.
//
// Usage:
//
//	backtest -csv prices.csv -base 100 -step 1 -levels 5 -investment 1000
//
// The CSV has one price per line, optionally with a header; the first
// numeric column is used.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"gridsim/engine"
	"gridsim/logger"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "CSV file with one price per row")
		item       = flag.String("item", "BTC", "item id for the session")
		mode       = flag.String("mode", "SAFE", "lattice mode: SAFE or AGGRESSIVE")
		base       = flag.Float64("base", 0, "base price (0 = first series price)")
		step       = flag.Float64("step", 0, "grid step percent (0 = mode default)")
		levels     = flag.Int("levels", 0, "levels per side (0 = mode default)")
		investment = flag.Float64("investment", 0, "total investment USD (0 = none)")
		showFills  = flag.Bool("fills", true, "print the fill table")
	)
	flag.Parse()

	if err := logger.InitWithSimpleConfig("warn"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	series, err := readSeries(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read series: %v\n", err)
		os.Exit(1)
	}
	if len(series) == 0 {
		fmt.Fprintln(os.Stderr, "series is empty")
		os.Exit(1)
	}

	basePrice := *base
	if basePrice <= 0 {
		basePrice = series[0]
	}

	cfg := &engine.GridConfig{
		Item:               *item,
		Mode:               engine.Mode(*mode),
		BasePrice:          basePrice,
		StepPct:            *step,
		LevelsPerSide:      *levels,
		TotalInvestmentUSD: *investment,
	}
	sess := engine.NewSession(cfg, len(series)+1)
	sess.AttachSeries(series)

	for !sess.SeriesExhausted() {
		sess.Tick(nil)
	}

	if *showFills && len(sess.Fills) > 0 {
		tbl := tablewriter.NewWriter(os.Stdout)
		tbl.Header("#", "Side", "Level", "Trigger", "Price", "Qty", "PnL Delta")
		for i, f := range sess.Fills {
			tbl.Append(
				strconv.Itoa(i+1),
				string(f.Side),
				strconv.Itoa(f.Level),
				fmt.Sprintf("%.4f", f.TriggerPrice),
				fmt.Sprintf("%.4f", f.Price),
				fmt.Sprintf("%.6f", f.Quantity),
				fmt.Sprintf("%.4f", f.PnLDelta),
			)
		}
		tbl.Render()
	}

	pos := sess.Position
	summary := tablewriter.NewWriter(os.Stdout)
	summary.Header("Ticks", "Fills", "Open", "Position", "Avg Cost", "Realized", "Unrealized", "Total PnL", "Equity")
	summary.Append(
		strconv.FormatInt(sess.TickCount, 10),
		strconv.Itoa(len(sess.Fills)),
		strconv.Itoa(len(sess.OpenOrders())),
		fmt.Sprintf("%.6f", pos.PositionQty),
		fmt.Sprintf("%.4f", pos.AvgCost),
		fmt.Sprintf("%.4f", pos.RealizedPnL),
		fmt.Sprintf("%.4f", pos.UnrealizedPnL),
		fmt.Sprintf("%.4f", pos.TotalPnL),
		fmt.Sprintf("%.2f", pos.EquityUSD),
	)
	summary.Render()
}

// readSeries parses the first numeric column of each CSV row. Non-numeric
// rows (headers, blanks) are skipped.
func readSeries(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var series []float64
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return series, err
		}
		for _, field := range rec {
			if p, err := strconv.ParseFloat(field, 64); err == nil {
				series = append(series, p)
				break
			}
		}
	}
	return series, nil
}
