// Package rpc defines the ContainmentService wire contract shared by the
// gRPC server and client. Payloads travel as google.protobuf.Struct values
// carrying the JSON form of the model types, so no generated code is
// needed.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/podguard/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "podguard.v1.ContainmentService"

// Method names.
const (
	MethodCheckClipboard   = "CheckClipboardAccess"
	MethodCheckFile        = "CheckFileTransfer"
	MethodCheckNetwork     = "CheckNetworkAccess"
	MethodCheckPeripheral  = "CheckPeripheralAccess"
	MethodCheckPrint       = "CheckPrintAccess"
	MethodCheckScreen      = "CheckScreenCapture"
	MethodEvaluateTransfer = "EvaluateTransfer"
	MethodCreateRequest    = "CreateFileTransferRequest"
	MethodApproveRequest   = "ApproveFileTransfer"
	MethodRejectRequest    = "RejectFileTransfer"
	MethodCancelRequest    = "CancelFileTransfer"
	MethodGetRequest       = "GetFileTransferRequest"
	MethodListPending      = "ListPendingFileTransfers"
	MethodWatermark        = "GenerateWatermarkConfig"
	MethodTransferAttempts = "GetTransferAttempts"
	MethodScanContent      = "ScanContent"
	MethodRegisterSession  = "RegisterSession"
	MethodEndSession       = "EndSession"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RequestAction is an approver's action on a FileTransferRequest. Note is
// the approval note for approve and the reason for reject.
type RequestAction struct {
	ID    string `json:"id"`
	Actor string `json:"actor"`
	Note  string `json:"note,omitempty"`
}

// RequestRef names a FileTransferRequest.
type RequestRef struct {
	ID string `json:"id"`
}

// TenantRef scopes a listing to a tenant. Empty means all tenants.
type TenantRef struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// SessionRef names a session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// PendingList is the response of ListPendingFileTransfers.
type PendingList struct {
	Requests []model.FileTransferRequest `json:"requests"`
}

// AttemptsQuery selects one page of a session's transfer attempts.
type AttemptsQuery struct {
	SessionID string              `json:"session_id"`
	Filter    model.AttemptFilter `json:"filter"`
}

// ScanRequest asks for a content inspection without a policy decision.
type ScanRequest struct {
	Content  []byte `json:"content"`
	FileName string `json:"file_name,omitempty"`
}

// ScanReport is the combined inspection result.
type ScanReport struct {
	ContentHash string                  `json:"content_hash"`
	Sensitive   model.ScanResult        `json:"sensitive"`
	Malware     model.MalwareScanResult `json:"malware"`
}

// Empty is the response of calls that return nothing.
type Empty struct{}

// Encode converts v to a Struct through its JSON form. v must marshal to a
// JSON object.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return st, nil
}

// Decode fills v from st.
func Decode(st *structpb.Struct, v any) error {
	if st == nil {
		st = &structpb.Struct{}
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// Call invokes method on cc with req and decodes the response.
func Call[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts ...grpc.CallOption) (Resp, error) {
	var resp Resp
	in, err := Encode(req)
	if err != nil {
		return resp, err
	}
	out := &structpb.Struct{}
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return resp, err
	}
	if err := Decode(out, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}
