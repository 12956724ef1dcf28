package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/podguard/internal/client"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/model"
)

var (
	checkServer    string
	checkSession   string
	checkDirection string
	checkType      string
	checkApproval  string
	checkFormat    string
	checkLocal     bool

	attemptsAction string
	attemptsLimit  int
	attemptsOffset int
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkNetworkCmd, checkFileCmd, checkClipboardCmd, checkScreenCmd)
	rootCmd.AddCommand(evaluateCmd, watermarkCmd, attemptsCmd)

	for _, c := range []*cobra.Command{checkCmd, evaluateCmd, watermarkCmd, attemptsCmd} {
		c.PersistentFlags().StringVar(&checkServer, "server", fmt.Sprintf("localhost:%d", config.DefaultPort), "podguard gRPC address")
		c.PersistentFlags().StringVar(&checkSession, "session", "", "Session id (required)")
		c.PersistentFlags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
		c.MarkPersistentFlagRequired("session")
	}
	for _, c := range []*cobra.Command{checkFileCmd, checkClipboardCmd, evaluateCmd} {
		c.Flags().StringVar(&checkDirection, "direction", "OUTBOUND", "INBOUND (into the pod) or OUTBOUND (out of the pod)")
	}
	evaluateCmd.Flags().StringVar(&checkType, "type", "FILE_DOWNLOAD", "Transfer type")
	evaluateCmd.Flags().StringVar(&checkApproval, "approval", "", "Approved file transfer request id")
	evaluateCmd.Flags().BoolVar(&checkLocal, "local-printer", false, "PRINT transfers: the printer is on the user's device")
	attemptsCmd.Flags().StringVar(&attemptsAction, "action", "", "Only show attempts with this action")
	attemptsCmd.Flags().IntVar(&attemptsLimit, "limit", 0, "Page size")
	attemptsCmd.Flags().IntVar(&attemptsOffset, "offset", 0, "Attempts to skip")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask a running server for a containment decision",
	Long: "Sends a single check to a podguard server and prints the decision.\n" +
		"Exit code 0 if allowed, 1 if denied.",
}

var checkNetworkCmd = &cobra.Command{
	Use:   "network <url>",
	Short: "Check whether the pod may reach a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			d := c.CheckNetworkAccess(cmd.Context(), model.NetworkRequest{SessionID: checkSession, URL: args[0]})
			return printDecision(cmd.OutOrStdout(), d)
		})
	},
}

var checkFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Check whether a file may be uploaded or downloaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return withClient(func(c *client.Client) error {
			d := c.CheckFileTransfer(cmd.Context(), model.FileTransferCheck{
				SessionID: checkSession,
				Direction: model.Direction(strings.ToUpper(checkDirection)),
				FileName:  filepath.Base(args[0]),
				Size:      int64(len(data)),
				Content:   data,
			})
			return printDecision(cmd.OutOrStdout(), d)
		})
	},
}

var checkClipboardCmd = &cobra.Command{
	Use:   "clipboard",
	Short: "Check whether stdin may be synced through the clipboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return withClient(func(c *client.Client) error {
			d := c.CheckClipboardAccess(cmd.Context(), model.ClipboardRequest{
				SessionID:   checkSession,
				Direction:   model.Direction(strings.ToUpper(checkDirection)),
				ContentType: "text/plain",
				Size:        int64(len(data)),
				Content:     data,
			})
			return printDecision(cmd.OutOrStdout(), d)
		})
	},
}

var checkScreenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Check whether the pod display may be captured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			d := c.CheckScreenCapture(cmd.Context(), model.ScreenCaptureRequest{SessionID: checkSession})
			return printDecision(cmd.OutOrStdout(), d)
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Evaluate a transfer and record the attempt",
	Long:  "Runs the unified transfer evaluation on a running server. Content is read\nfrom the file argument when one is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := model.TransferRequest{
			SessionID:         checkSession,
			TransferType:      model.TransferType(strings.ToUpper(checkType)),
			Direction:         model.Direction(strings.ToUpper(checkDirection)),
			LocalPrinter:      checkLocal,
			ApprovalRequestID: checkApproval,
		}
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req.Content = data
			req.Size = int64(len(data))
			req.FileName = filepath.Base(args[0])
		}
		return withClient(func(c *client.Client) error {
			res := c.EvaluateTransfer(cmd.Context(), req)
			if checkFormat == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Action, res.Reason)
			if res.RequestID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "approval request: %s\n", res.RequestID)
			}
			if !res.Allowed {
				os.Exit(1)
			}
			return nil
		})
	},
}

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Print the rendered watermark for a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			wm, err := c.Watermark(cmd.Context(), checkSession)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), wm)
		})
	},
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List a session's transfer attempts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			page, err := c.TransferAttempts(cmd.Context(), checkSession, model.AttemptFilter{
				Action: model.TransferAction(strings.ToUpper(attemptsAction)),
				Limit:  attemptsLimit,
				Offset: attemptsOffset,
			})
			if err != nil {
				return err
			}
			if checkFormat == "json" {
				return printJSON(cmd.OutOrStdout(), page)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d of %d attempts (offset %d)\n", len(page.Attempts), page.Total, page.Offset)
			for _, a := range page.Attempts {
				fmt.Fprintf(w, "%s  %-18s %-17s %-9s %s\n",
					a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.TransferType, a.Action, a.Direction, truncate(a.Reason, 60))
			}
			return nil
		})
	},
}

func withClient(fn func(*client.Client) error) error {
	c, err := client.New(checkServer)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printDecision(w io.Writer, d model.AccessDecision) error {
	if checkFormat == "json" {
		if err := printJSON(w, d); err != nil {
			return err
		}
	} else {
		verdict := "ALLOW"
		if !d.Allowed {
			verdict = "DENY"
		}
		fmt.Fprintf(w, "%s [%s] %s\n", verdict, d.Rule, d.Reason)
		if d.RequestID != "" {
			fmt.Fprintf(w, "approval request: %s\n", d.RequestID)
		}
		if len(d.SensitiveDataTypes) > 0 {
			fmt.Fprintf(w, "sensitive data: %s\n", strings.Join(d.SensitiveDataTypes, ", "))
		}
	}
	if !d.Allowed {
		os.Exit(1)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
