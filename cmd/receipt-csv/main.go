// Command receipt-csv converts a JSON batch of receipts into the accounting
// import sheet without running the server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-export/internal/export"
	"github.com/zombor/receipt-export/internal/receipt"
)

const (
	exitOK       = 0
	exitError    = 1
	exitNotReady = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := ff.NewFlagSet("receipt-csv")
	var (
		inputPath    = fs.StringLong("input", "", "JSON file with receipts (default stdin)")
		outputPath   = fs.StringLong("output", "", "Output file (default stdout)")
		defaultsPath = fs.StringLong("defaults", "", "YAML file with export defaults (optional)")
		partial      = fs.BoolLong("partial", "Export the complete receipts even when others miss data")
		formatName   = fs.StringLong("format", "csv", "Output format: 'csv' or 'xlsx'")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("RECEIPT_EXPORT")); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	format, err := receipt.ParseFormat(*formatName)
	if err != nil {
		logger.Error("Invalid format", "error", err)
		return exitError
	}

	var defaults receipt.Defaults
	if *defaultsPath != "" {
		if defaults, err = receipt.LoadDefaults(*defaultsPath); err != nil {
			logger.Error("Failed to load export defaults", "error", err)
			return exitError
		}
	}

	input := stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			logger.Error("Failed to open input", "error", err)
			return exitError
		}
		defer f.Close()
		input = f
	}

	records, err := readRecords(input)
	if err != nil {
		logger.Error("Failed to read receipts", "error", err)
		return exitError
	}

	prepared := defaults.ApplyAll(records)
	report := export.Validate(prepared)
	if !report.ExportReady {
		printIssues(stderr, prepared, report)
		if !*partial {
			return exitNotReady
		}
	}

	data, err := format.Render(prepared, report)
	if err != nil {
		logger.Error("Failed to render export", "error", err)
		return exitError
	}

	if *outputPath == "" {
		if _, err := stdout.Write(data); err != nil {
			logger.Error("Failed to write export", "error", err)
			return exitError
		}
		return exitOK
	}
	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		logger.Error("Failed to write export", "error", err)
		return exitError
	}
	logger.Info("Wrote export", "path", *outputPath, "rows", len(export.Select(prepared, report)))
	return exitOK
}

// readRecords decodes a JSON array of receipts or a {"receipts": [...]} object
func readRecords(r io.Reader) ([]export.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	var records []export.Record
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Receipts []export.Record `json:"receipts"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decoding receipts: %w", err)
		}
		records = envelope.Receipts
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decoding receipts: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no receipts provided")
	}
	for i := range records {
		if records[i].Currency == "" {
			records[i].Currency = receipt.DefaultCurrency
		}
	}
	return records, nil
}

// printIssues lists the receipts that still miss required fields
func printIssues(w io.Writer, records []export.Record, report export.Report) {
	fmt.Fprintf(w, "%d of %d receipts need more information\n", report.Incomplete(), len(records))
	for i, issues := range report.Issues {
		if issues.Empty() {
			continue
		}
		fields := make([]string, 0, len(issues))
		for _, f := range issues.Fields() {
			fields = append(fields, string(f))
		}
		label := records[i].Vendor
		if label == "" {
			label = records[i].ID
		}
		fmt.Fprintf(w, "  #%d %s: missing %s\n", i+1, label, strings.Join(fields, ", "))
	}
}
