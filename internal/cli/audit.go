package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/podguard/internal/audit"
)

var (
	tailLines     int
	tailSession   string
	tailDenied    bool
	replayFrom    string
	replayTo      string
	replayFormat  string
	replayChannel string
	replayDenied  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd, auditReplayCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().StringVar(&tailSession, "session", "", "Only show entries for this session")
	auditTailCmd.Flags().BoolVar(&tailDenied, "denied", false, "Only show denied decisions")
	auditReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayChannel, "channel", "", "Only show entries for this channel")
	auditReplayCmd.Flags().BoolVar(&replayDenied, "denied", false, "Only show denied decisions")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long: "Commands for verifying and inspecting the hash-chained audit log.\n" +
		"The log path defaults to storage.audit_log_path from the config.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the fingerprint of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay <session-id> [path]",
	Short: "Replay a session from the audit log",
	Long:  "Reads the audit log, filters by session and optional time range,\nand renders a decision timeline with summary.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAuditReplay,
}

// auditPath returns the explicit path argument or the configured log.
func auditPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Storage.AuditLogPath == "" {
		return "", fmt.Errorf("no audit log path given and storage.audit_log_path is not set")
	}
	return cfg.Storage.AuditLogPath, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified (%s chain)\n", result.Lines, result.Algorithm)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	// Keep the last N matching entries
	var entries []audit.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var entry audit.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if tailSession != "" && entry.SessionID != tailSession {
			continue
		}
		if tailDenied && entry.Allowed {
			continue
		}
		entries = append(entries, entry)
		if len(entries) > tailLines {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	for _, entry := range entries {
		out, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args[1:])
	if err != nil {
		return err
	}
	filter := audit.ReplayFilter{SessionID: args[0], Channel: replayChannel, DeniedOnly: replayDenied}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}
	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	}
	return nil
}
