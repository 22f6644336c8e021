package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"SignalFuse/internal/di"
	"SignalFuse/internal/domain/models"
	"SignalFuse/pkg/config"
	"SignalFuse/pkg/util"

	"github.com/spf13/cobra"
)

var (
	evalFile    string
	evalSymbol  string
	evalExecute bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one offline cycle over a CSV of bars and print the result as JSON",
	Long: `Run one evaluation cycle over bars read from a CSV file with the columns
timestamp,open,high,low,close,volume. A header row is optional. Timestamps may
be RFC3339 or unix seconds/milliseconds.`,
	Example: `  signalfuse evaluate --file bars.csv --symbol AAPL
  signalfuse evaluate --file bars.csv --symbol AAPL --execute`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalFile, "file", "", "CSV file with bars (- for stdin)")
	evaluateCmd.Flags().StringVar(&evalSymbol, "symbol", "ADHOC", "instrument symbol")
	evaluateCmd.Flags().BoolVar(&evalExecute, "execute", false, "pass the consensus through the execution gate")
	_ = evaluateCmd.MarkFlagRequired("file")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOffline(configPath)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if evalFile != "-" {
		f, err := os.Open(evalFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	bars, err := readBarsCSV(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", evalFile, err)
	}
	series, err := models.NewSeries(strings.ToUpper(evalSymbol), bars)
	if err != nil {
		return err
	}

	cycle, err := di.InitializeOfflineCycle(cfg)
	if err != nil {
		return err
	}
	res, err := cycle.Run(cmd.Context(), series, evalExecute)
	if res != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	}
	return err
}

// readBarsCSV parses timestamp,open,high,low,close,volume rows.
func readBarsCSV(r io.Reader) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	var bars []models.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, ok := util.ParseTime(strings.TrimSpace(rec[0]))
		if !ok {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad timestamp %q", line, rec[0])
		}
		var v [5]float64
		for i := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			v[i] = f
		}
		b := models.Bar{Timestamp: ts.UTC(), Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, errors.New("no bars")
	}
	return bars, nil
}
