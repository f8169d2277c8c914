package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

const (
	columnURL             = "url"
	columnDecisionProcess = "decision_process"
	columnDecisionHuman   = "decision_human"
	columnReasonProcess   = "reason_process"

	kindPrecedence = "precedence"
	kindRandom     = "random fallback"
	kindModel      = "model"
)

var assumeYes bool

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Maintenance commands for url-labeler result logs",
	SilenceUsage: true,
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <results.csv>",
	Short: "Remove repeated URLs from a result log, keeping the first row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := dedupe(args[0], os.Stdin, cmd.OutOrStdout(), assumeYes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nRemoved %d duplicate rows\n", removed)
		return nil
	},
}

var agreementCmd = &cobra.Command{
	Use:   "agreement <results.csv>",
	Short: "Report how often the operator agreed with the proposed label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := agreement(args[0])
		if err != nil {
			return err
		}
		report.Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	dedupeCmd.Flags().BoolVar(&assumeYes, "yes", false, "Remove every duplicate without asking")
	rootCmd.AddCommand(dedupeCmd, agreementCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resultLog is a result CSV held in memory
type resultLog struct {
	header []string
	rows   [][]string
}

func readResultLog(path string) (*resultLog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading result log %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("result log %s is empty", path)
	}

	header := records[0]
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	return &resultLog{header: header, rows: records[1:]}, nil
}

func (l *resultLog) column(name string) (int, error) {
	i := slices.Index(l.header, name)
	if i == -1 {
		return -1, fmt.Errorf("result log has no %s column", name)
	}
	return i, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// write replaces the log through a temporary file in the same directory
func (l *resultLog) write(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}

	writer := csv.NewWriter(tmp)
	if err := writer.Write(l.header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	if err := writer.WriteAll(l.rows); err != nil {
		tmp.Close()
		return fmt.Errorf("writing rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// dedupe keeps the first row for every URL. Later rows are removed when
// confirmed, or unconditionally with assumeYes.
func dedupe(path string, in io.Reader, out io.Writer, assumeYes bool) (int, error) {
	results, err := readResultLog(path)
	if err != nil {
		return 0, err
	}
	urlIndex, err := results.column(columnURL)
	if err != nil {
		return 0, err
	}
	humanIndex := slices.Index(results.header, columnDecisionHuman)

	first := make(map[string]int)
	kept := make([][]string, 0, len(results.rows))
	reader := bufio.NewReader(in)
	removed := 0

	for i, row := range results.rows {
		url := field(row, urlIndex)
		firstLine, seen := first[url]
		if !seen {
			first[url] = i + 2 // 1-based, after the header
			kept = append(kept, row)
			continue
		}

		line := i + 2
		fmt.Fprintf(out, "\n%s appears again on line %d (first on line %d)\n", url, line, firstLine)
		if humanIndex != -1 {
			fmt.Fprintf(out, "  decision_human: %s\n", field(row, humanIndex))
		}

		if assumeYes || confirmDelete(reader, out, line) {
			removed++
			fmt.Fprintf(out, "  REMOVED: line %d\n", line)
			continue
		}
		fmt.Fprintf(out, "  SKIP: line %d\n", line)
		kept = append(kept, row)
	}

	if removed == 0 {
		return 0, nil
	}

	results.rows = kept
	if err := results.write(path); err != nil {
		return 0, fmt.Errorf("rewriting %s: %w", path, err)
	}
	return removed, nil
}

func confirmDelete(reader *bufio.Reader, out io.Writer, line int) bool {
	for {
		fmt.Fprintf(out, "  DELETE line %d? [y/N]: ", line)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if !errors.Is(err, io.EOF) {
				log.Printf("Error reading input: %v", err)
			}
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "  Please enter y or n.")
		}
	}
}

// tally counts rows and agreements for one group
type tally struct {
	Rows   int
	Agreed int
}

func (t tally) rate() float64 {
	if t.Rows == 0 {
		return 0
	}
	return float64(t.Agreed) / float64(t.Rows) * 100
}

// Report is the agreement between proposed and confirmed labels
type Report struct {
	Total  tally
	ByKind map[string]tally
}

// reasonKind groups reason_process values
func reasonKind(reason string) string {
	switch {
	case strings.HasPrefix(reason, kindPrecedence+"/"):
		return kindPrecedence
	case reason == kindRandom:
		return kindRandom
	default:
		return kindModel
	}
}

func agreement(path string) (*Report, error) {
	results, err := readResultLog(path)
	if err != nil {
		return nil, err
	}

	var indexes [3]int
	for i, name := range []string{columnDecisionProcess, columnDecisionHuman, columnReasonProcess} {
		if indexes[i], err = results.column(name); err != nil {
			return nil, err
		}
	}

	report := &Report{ByKind: make(map[string]tally)}
	for _, row := range results.rows {
		agreed := field(row, indexes[0]) == field(row, indexes[1])
		kind := reasonKind(field(row, indexes[2]))

		t := report.ByKind[kind]
		t.Rows++
		report.Total.Rows++
		if agreed {
			t.Agreed++
			report.Total.Agreed++
		}
		report.ByKind[kind] = t
	}

	return report, nil
}

// Print writes the report as aligned text
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Rows:       %d\n", r.Total.Rows)
	fmt.Fprintf(w, "Agreements: %d\n", r.Total.Agreed)
	fmt.Fprintf(w, "Rate:       %.1f%%\n", r.Total.rate())

	for _, kind := range []string{kindPrecedence, kindModel, kindRandom} {
		t, ok := r.ByKind[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-16s %d/%d (%.1f%%)\n", kind, t.Agreed, t.Rows, t.rate())
	}
}
