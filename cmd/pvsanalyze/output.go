package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-pvs/analysis"
	"github.com/RyanBlaney/sonido-pvs/config"
)

// Report is everything analyze prints
type Report struct {
	Source   string                `json:"source" yaml:"source"`
	Samples  int                   `json:"samples" yaml:"samples"`
	Analysis config.AnalysisConfig `json:"analysis" yaml:"analysis"`
	Summary  analysis.Summary      `json:"summary" yaml:"summary"`
	Results  []analysis.Result     `json:"results" yaml:"results"`
}

// writeReport renders report in the given output format. every thins the
// per-period rows of table and csv output.
func writeReport(w io.Writer, format string, report *Report, every int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		return writeCSV(w, report.Results, every)
	case "table", "":
		return writeTable(w, report, every)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeCSV(w io.Writer, results []analysis.Result, every int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"period", "time", "frame", "centroid", "pitch", "amplitude"}); err != nil {
		return err
	}

	for _, r := range thin(results, every) {
		record := []string{
			strconv.Itoa(r.Period),
			strconv.FormatFloat(r.Time, 'f', 6, 64),
			strconv.FormatUint(r.Frame, 10),
			strconv.FormatFloat(r.Centroid, 'f', 3, 64),
			strconv.FormatFloat(r.Pitch, 'f', 3, 64),
			strconv.FormatFloat(r.Amplitude, 'g', 6, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, report *Report, every int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "PERIOD\tTIME(s)\tFRAME\tCENTROID(Hz)\tPITCH(Hz)\tAMPLITUDE\t\n")
	for _, r := range thin(report.Results, every) {
		fmt.Fprintf(tw, "%d\t%.4f\t%d\t%.2f\t%.2f\t%.5f\t\n",
			r.Period, r.Time, r.Frame, r.Centroid, r.Pitch, r.Amplitude)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := report.Summary
	fmt.Fprintf(w, "\nSource:  %s (%d samples)\n", report.Source, report.Samples)
	fmt.Fprintf(w, "Periods: %d, voiced %d\n", s.Periods, s.VoicedPeriods)
	fmt.Fprintf(w, "Centroid: mean %.2f Hz, median %.2f Hz, stddev %.2f Hz, range %.2f..%.2f Hz\n",
		s.CentroidMean, s.CentroidMedian, s.CentroidStdDev, s.CentroidMin, s.CentroidMax)
	fmt.Fprintf(w, "Pitch:    mean %.2f Hz, median %.2f Hz\n", s.PitchMean, s.PitchMedian)

	return nil
}

// thin keeps every n-th result, always including the last one
func thin(results []analysis.Result, every int) []analysis.Result {
	if every <= 1 || len(results) == 0 {
		return results
	}

	out := make([]analysis.Result, 0, len(results)/every+1)
	for i := 0; i < len(results); i += every {
		out = append(out, results[i])
	}
	if (len(results)-1)%every != 0 {
		out = append(out, results[len(results)-1])
	}
	return out
}
