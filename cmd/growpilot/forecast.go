package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"growpilot/internal/core"
	"growpilot/pkg/domain"
)

type forecastOptions struct {
	file    string
	horizon int
	output  string
}

func newForecastCommand(root *rootOptions) *cobra.Command {
	opts := &forecastOptions{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast daily harvest totals from an exported harvests CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.horizon <= 0 {
				opts.horizon = cfg.Forecast.Horizon
			}
			return runForecast(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "harvests CSV as downloaded from /export/harvests.csv (- for stdin)")
	cmd.Flags().IntVar(&opts.horizon, "horizon", 0, "days to forecast (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table or yaml")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type forecastReport struct {
	History  []core.DailyTotal     `yaml:"history"`
	Forecast *core.ForecastSummary `yaml:"forecast"`
}

func runForecast(cmd *cobra.Command, opts *forecastOptions) error {
	if opts.output != "table" && opts.output != "yaml" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	in, closeIn, err := openInput(cmd, opts.file)
	if err != nil {
		return err
	}
	defer closeIn()

	records, err := readRecords(in)
	if err != nil {
		return err
	}
	harvests, err := core.ParseHarvests(records)
	if err != nil {
		return err
	}
	series := core.DailyTotals(harvests)
	if len(series) == 0 {
		return errors.New("no harvests in input")
	}
	svc := core.NewService(core.WithForecastHorizon(opts.horizon))
	summary, err := svc.Forecast(cmd.Context(), series)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(forecastReport{History: series, Forecast: summary}); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeForecastTable(out, summary)
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path) // #nosec G304: path supplied by the operator
	if err != nil {
		return nil, nil, fmt.Errorf("open harvests: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readRecords turns a CSV with a header row into records keyed by column.
func readRecords(r io.Reader) ([]domain.Record, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("read csv: missing header row")
	}
	header := rows[0]
	records := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(domain.Record, 0, len(header))
		for i, name := range header {
			if i < len(row) {
				rec = append(rec, domain.Field{Name: strings.TrimSpace(name), Value: row[i]})
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeForecastTable(w io.Writer, summary *core.ForecastSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "slope\t%.2f g/day\n", summary.Slope)
	_, _ = fmt.Fprintf(tw, "intercept\t%.2f g\n", summary.Intercept)
	if summary.Degenerate {
		_, _ = fmt.Fprintln(tw, "note\tsingle harvest day, flat forecast")
	}
	_, _ = fmt.Fprintln(tw, "\nDATE\tGRAMS")
	for _, p := range summary.Points {
		_, _ = fmt.Fprintf(tw, "%s\t%.1f\n", p.Date.Format(domain.DateLayout), p.Grams)
	}
	return tw.Flush()
}
