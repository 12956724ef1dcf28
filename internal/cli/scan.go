package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/fingerprint"
	"github.com/ppiankov/podguard/internal/malware"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/scan"
)

var scanFormat string

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(hashCmd)
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "Output format (text|json)")
}

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan a file or stdin for sensitive data and malware",
	Long: "Runs the sensitive data catalog, configured extra patterns and malware\n" +
		"signatures over the input without a policy decision.\n" +
		"Exit code 0 if clean, 2 if anything was found.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var hashCmd = &cobra.Command{
	Use:   "hash [file]",
	Short: "Print the content fingerprint of a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHash,
}

// scanReport is the output of the scan command.
type scanReport struct {
	Source      string                  `json:"source"`
	ContentHash string                  `json:"content_hash"`
	Sensitive   model.ScanResult        `json:"sensitive"`
	Malware     model.MalwareScanResult `json:"malware"`
}

func readInput(args []string) (string, []byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		return "stdin", data, err
	}
	data, err := os.ReadFile(args[0])
	return args[0], data, err
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, data, err := readInput(args)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	report, err := scanContent(cmd, cfg, source, data)
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	} else {
		printScanReport(cmd.OutOrStdout(), report)
	}

	if report.Sensitive.Found || !report.Malware.Clean {
		os.Exit(2)
	}
	return nil
}

func scanContent(cmd *cobra.Command, cfg *config.Config, source string, data []byte) (scanReport, error) {
	pc, err := scan.LoadConfig(cfg.Files.Patterns)
	if err != nil {
		return scanReport{}, err
	}
	patterns, err := scan.CompilePatterns(pc)
	if err != nil {
		return scanReport{}, err
	}
	sc, err := malware.LoadConfig(cfg.Files.Signatures)
	if err != nil {
		return scanReport{}, err
	}
	sigs, err := malware.CompileSignatures(sc)
	if err != nil {
		return scanReport{}, err
	}
	hasher, err := fingerprint.New(cfg.Hash)
	if err != nil {
		return scanReport{}, err
	}

	ctx := cmd.Context()
	sensitive, err := scan.New(patterns...).Scan(ctx, data)
	if err != nil {
		return scanReport{}, err
	}
	mal, err := malware.NewSignatureScanner(clock.Real(), sigs...).Scan(ctx, data, filepath.Base(source))
	if err != nil {
		return scanReport{}, err
	}
	return scanReport{
		Source:      source,
		ContentHash: hasher.Sum(data),
		Sensitive:   sensitive,
		Malware:     mal,
	}, nil
}

func printScanReport(w io.Writer, r scanReport) {
	fmt.Fprintf(w, "%s  %s\n", r.ContentHash, r.Source)
	if r.Malware.Clean {
		fmt.Fprintln(w, "malware:   clean")
	} else {
		fmt.Fprintf(w, "malware:   %s (%s)\n", r.Malware.ThreatName, r.Malware.ThreatType)
	}
	if !r.Sensitive.Found {
		fmt.Fprintln(w, "sensitive: none")
		return
	}
	fmt.Fprintf(w, "sensitive: %d pattern(s), highest %s\n", len(r.Sensitive.Patterns), r.Sensitive.HighestSeverity())
	fmt.Fprintf(w, "  %-28s %-14s %-9s %s\n", "PATTERN", "CATEGORY", "SEVERITY", "COUNT")
	for _, p := range r.Sensitive.Patterns {
		fmt.Fprintf(w, "  %-28s %-14s %-9s %d\n", p.Name, p.Category, p.Severity, p.Count)
	}
}

func runHash(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, data, err := readInput(args)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	hasher, err := fingerprint.New(cfg.Hash)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", hasher.Sum(data), source)
	return nil
}
