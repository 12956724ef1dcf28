package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/client"
	"github.com/ppiankov/podguard/internal/model"
)

var (
	approvalServer string
	approvalActor  string
	approveNote    string
	rejectReason   string
)

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd, cancelCmd, pendingCmd} {
		c.Flags().StringVar(&approvalServer, "server", "", "podguard gRPC address; without it the local approval store is used")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{approveCmd, rejectCmd, cancelCmd} {
		c.Flags().StringVar(&approvalActor, "as", defaultActor(), "Name recorded as the approver")
	}
	approveCmd.Flags().StringVar(&approveNote, "note", "", "Approval note")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Rejection reason (required)")
	rejectCmd.MarkFlagRequired("reason")
}

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending file transfer request",
	Long:  "Approves a PENDING request. The next EvaluateTransfer call that references it\nfrom the same session is allowed once.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending file transfer request",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Withdraw a pending file transfer request",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

// approvals is the subset of approval operations the CLI needs, served
// either by a remote server or by the local store.
type approvals interface {
	Approve(ctx context.Context, id, approver, note string) (*model.FileTransferRequest, error)
	Reject(ctx context.Context, id, approver, reason string) (*model.FileTransferRequest, error)
	Cancel(ctx context.Context, id, actor string) (*model.FileTransferRequest, error)
	Pending(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error)
}

type remoteApprovals struct{ c *client.Client }

func (r remoteApprovals) Approve(ctx context.Context, id, approver, note string) (*model.FileTransferRequest, error) {
	return r.c.Approve(ctx, id, approver, note)
}

func (r remoteApprovals) Reject(ctx context.Context, id, approver, reason string) (*model.FileTransferRequest, error) {
	return r.c.Reject(ctx, id, approver, reason)
}

func (r remoteApprovals) Cancel(ctx context.Context, id, actor string) (*model.FileTransferRequest, error) {
	return r.c.Cancel(ctx, id, actor)
}

func (r remoteApprovals) Pending(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	return r.c.ListPending(ctx, tenantID)
}

// openApprovals returns the approval backend and a close func.
func openApprovals() (approvals, func(), error) {
	if approvalServer != "" {
		c, err := client.New(approvalServer)
		if err != nil {
			return nil, nil, err
		}
		return remoteApprovals{c}, func() { c.Close() }, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dir := cfg.Storage.ApprovalDir
	if dir == "" {
		dir = approval.DefaultDir()
	}
	store, err := approval.NewFileStore(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	w := approval.NewWorkflow(store, alert.Nop{}, approval.WithExpiry(cfg.Approvals.Expiry))
	return w, func() {}, nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, done, err := openApprovals()
	if err != nil {
		return err
	}
	defer done()

	r, err := a.Approve(cmd.Context(), args[0], approvalActor, approveNote)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Approved %s (%s, %s) by %s\n", r.ID, r.FileName, r.Direction, r.ApprovedBy)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	a, done, err := openApprovals()
	if err != nil {
		return err
	}
	defer done()

	r, err := a.Reject(cmd.Context(), args[0], approvalActor, rejectReason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s (%s) by %s: %s\n", r.ID, r.FileName, r.RejectedBy, r.RejectionReason)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, done, err := openApprovals()
	if err != nil {
		return err
	}
	defer done()

	r, err := a.Cancel(cmd.Context(), args[0], approvalActor)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s (%s)\n", r.ID, r.FileName)
	return nil
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
