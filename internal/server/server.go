// Package server exposes the containment engine as the
// podguard.v1.ContainmentService gRPC service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/containment"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/rpc"
	"github.com/ppiankov/podguard/internal/session"
)

// ContainmentServer is the handler set behind the service descriptor.
type ContainmentServer interface {
	CheckClipboardAccess(context.Context, model.ClipboardRequest) (model.AccessDecision, error)
	CheckFileTransfer(context.Context, model.FileTransferCheck) (model.AccessDecision, error)
	CheckNetworkAccess(context.Context, model.NetworkRequest) (model.AccessDecision, error)
	CheckPeripheralAccess(context.Context, model.PeripheralRequest) (model.AccessDecision, error)
	CheckPrintAccess(context.Context, model.PrintRequest) (model.AccessDecision, error)
	CheckScreenCapture(context.Context, model.ScreenCaptureRequest) (model.AccessDecision, error)
	EvaluateTransfer(context.Context, model.TransferRequest) (model.TransferResult, error)
	CreateFileTransferRequest(context.Context, approval.NewRequest) (*model.FileTransferRequest, error)
	ApproveFileTransfer(context.Context, rpc.RequestAction) (*model.FileTransferRequest, error)
	RejectFileTransfer(context.Context, rpc.RequestAction) (*model.FileTransferRequest, error)
	CancelFileTransfer(context.Context, rpc.RequestAction) (*model.FileTransferRequest, error)
	GetFileTransferRequest(context.Context, rpc.RequestRef) (*model.FileTransferRequest, error)
	ListPendingFileTransfers(context.Context, rpc.TenantRef) (rpc.PendingList, error)
	GenerateWatermarkConfig(context.Context, rpc.SessionRef) (model.WatermarkConfig, error)
	GetTransferAttempts(context.Context, rpc.AttemptsQuery) (model.AttemptPage, error)
	ScanContent(context.Context, rpc.ScanRequest) (rpc.ScanReport, error)
	RegisterSession(context.Context, model.Session) (rpc.Empty, error)
	EndSession(context.Context, rpc.SessionRef) (rpc.Empty, error)
}

// ServiceDesc describes podguard.v1.ContainmentService. Every method takes
// and returns a google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: rpc.ServiceName,
	HandlerType: (*ContainmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(rpc.MethodCheckClipboard, ContainmentServer.CheckClipboardAccess),
		unary(rpc.MethodCheckFile, ContainmentServer.CheckFileTransfer),
		unary(rpc.MethodCheckNetwork, ContainmentServer.CheckNetworkAccess),
		unary(rpc.MethodCheckPeripheral, ContainmentServer.CheckPeripheralAccess),
		unary(rpc.MethodCheckPrint, ContainmentServer.CheckPrintAccess),
		unary(rpc.MethodCheckScreen, ContainmentServer.CheckScreenCapture),
		unary(rpc.MethodEvaluateTransfer, ContainmentServer.EvaluateTransfer),
		unary(rpc.MethodCreateRequest, ContainmentServer.CreateFileTransferRequest),
		unary(rpc.MethodApproveRequest, ContainmentServer.ApproveFileTransfer),
		unary(rpc.MethodRejectRequest, ContainmentServer.RejectFileTransfer),
		unary(rpc.MethodCancelRequest, ContainmentServer.CancelFileTransfer),
		unary(rpc.MethodGetRequest, ContainmentServer.GetFileTransferRequest),
		unary(rpc.MethodListPending, ContainmentServer.ListPendingFileTransfers),
		unary(rpc.MethodWatermark, ContainmentServer.GenerateWatermarkConfig),
		unary(rpc.MethodTransferAttempts, ContainmentServer.GetTransferAttempts),
		unary(rpc.MethodScanContent, ContainmentServer.ScanContent),
		unary(rpc.MethodRegisterSession, ContainmentServer.RegisterSession),
		unary(rpc.MethodEndSession, ContainmentServer.EndSession),
	},
	Metadata: "podguard/v1/containment.proto",
}

// unary adapts a typed handler to a grpc.MethodDesc.
func unary[Req, Resp any](method string, call func(ContainmentServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			invoke := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := rpc.Decode(req.(*structpb.Struct), &r); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := call(srv.(ContainmentServer), ctx, r)
				if err != nil {
					return nil, toStatus(err)
				}
				out, err := rpc.Encode(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpc.FullMethod(method)}
			return interceptor(ctx, in, info, invoke)
		},
	}
}

// toStatus maps engine errors to gRPC codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, approval.ErrInvalidState), errors.Is(err, approval.ErrExpired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, approval.ErrReasonRequired), errors.Is(err, approval.ErrApproverRequired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// Server implements ContainmentServer on top of an Engine.
type Server struct {
	engine *containment.Engine
	logger *zap.Logger
	port   int

	grpcServer *grpc.Server
}

// New registers the service on a fresh grpc.Server.
func New(engine *containment.Engine, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, logger: logger, port: port}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.observe))
	s.grpcServer.RegisterService(&ServiceDesc, s)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// observe logs and counts every call.
func (s *Server) observe(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	elapsed := time.Since(start)

	code := status.Code(err)
	metrics.RPCs.WithLabelValues(info.FullMethod, code.String()).Inc()
	metrics.RPCDuration.WithLabelValues(info.FullMethod).Observe(elapsed.Seconds())

	if err != nil && code != codes.NotFound && code != codes.InvalidArgument && code != codes.FailedPrecondition {
		s.logger.Error("rpc failed", zap.String("method", info.FullMethod), zap.Stringer("code", code), zap.Error(err))
	} else {
		s.logger.Debug("rpc", zap.String("method", info.FullMethod), zap.Stringer("code", code), zap.Duration("elapsed", elapsed))
	}
	return resp, err
}

// decided returns the decision even when recording failed. The engine has
// already turned a failed audit write into a deny, and the caller needs a
// decision rather than an error.
func (s *Server) decided(method string, d model.AccessDecision, err error) (model.AccessDecision, error) {
	if err != nil {
		s.logger.Warn("containment check completed with errors",
			zap.String("method", method),
			zap.Bool("allowed", d.Allowed),
			zap.String("rule", d.Rule),
			zap.Error(err))
	}
	return d, nil
}

func (s *Server) CheckClipboardAccess(ctx context.Context, req model.ClipboardRequest) (model.AccessDecision, error) {
	d, err := s.engine.CheckClipboardAccess(ctx, req)
	return s.decided(rpc.MethodCheckClipboard, d, err)
}

func (s *Server) CheckFileTransfer(ctx context.Context, req model.FileTransferCheck) (model.AccessDecision, error) {
	d, err := s.engine.CheckFileTransfer(ctx, req)
	return s.decided(rpc.MethodCheckFile, d, err)
}

func (s *Server) CheckNetworkAccess(ctx context.Context, req model.NetworkRequest) (model.AccessDecision, error) {
	d, err := s.engine.CheckNetworkAccess(ctx, req)
	return s.decided(rpc.MethodCheckNetwork, d, err)
}

func (s *Server) CheckPeripheralAccess(ctx context.Context, req model.PeripheralRequest) (model.AccessDecision, error) {
	d, err := s.engine.CheckPeripheralAccess(ctx, req)
	return s.decided(rpc.MethodCheckPeripheral, d, err)
}

func (s *Server) CheckPrintAccess(ctx context.Context, req model.PrintRequest) (model.AccessDecision, error) {
	d, err := s.engine.CheckPrintAccess(ctx, req)
	return s.decided(rpc.MethodCheckPrint, d, err)
}

func (s *Server) CheckScreenCapture(ctx context.Context, req model.ScreenCaptureRequest) (model.AccessDecision, error) {
	d, err := s.engine.CheckScreenCapture(ctx, req)
	return s.decided(rpc.MethodCheckScreen, d, err)
}

// EvaluateTransfer returns the result even when the attempt record could
// not be written.
func (s *Server) EvaluateTransfer(ctx context.Context, req model.TransferRequest) (model.TransferResult, error) {
	res, err := s.engine.EvaluateTransfer(ctx, req)
	if err != nil {
		s.logger.Warn("transfer evaluation completed with errors",
			zap.String("session_id", req.SessionID),
			zap.Bool("allowed", res.Allowed),
			zap.Error(err))
	}
	return res, nil
}

func (s *Server) CreateFileTransferRequest(ctx context.Context, req approval.NewRequest) (*model.FileTransferRequest, error) {
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	return s.engine.CreateFileTransferRequest(ctx, req)
}

func (s *Server) ApproveFileTransfer(ctx context.Context, req rpc.RequestAction) (*model.FileTransferRequest, error) {
	return s.engine.ApproveFileTransfer(ctx, req.ID, req.Actor, req.Note)
}

func (s *Server) RejectFileTransfer(ctx context.Context, req rpc.RequestAction) (*model.FileTransferRequest, error) {
	return s.engine.RejectFileTransfer(ctx, req.ID, req.Actor, req.Note)
}

func (s *Server) CancelFileTransfer(ctx context.Context, req rpc.RequestAction) (*model.FileTransferRequest, error) {
	return s.engine.CancelFileTransfer(ctx, req.ID, req.Actor)
}

func (s *Server) GetFileTransferRequest(ctx context.Context, req rpc.RequestRef) (*model.FileTransferRequest, error) {
	return s.engine.GetFileTransferRequest(ctx, req.ID)
}

func (s *Server) ListPendingFileTransfers(ctx context.Context, req rpc.TenantRef) (rpc.PendingList, error) {
	list, err := s.engine.PendingFileTransfers(ctx, req.TenantID)
	if err != nil {
		return rpc.PendingList{}, err
	}
	if list == nil {
		list = []model.FileTransferRequest{}
	}
	return rpc.PendingList{Requests: list}, nil
}

func (s *Server) GenerateWatermarkConfig(ctx context.Context, req rpc.SessionRef) (model.WatermarkConfig, error) {
	return s.engine.GenerateWatermarkConfig(ctx, req.SessionID)
}

func (s *Server) GetTransferAttempts(ctx context.Context, req rpc.AttemptsQuery) (model.AttemptPage, error) {
	if req.SessionID == "" {
		return model.AttemptPage{}, status.Error(codes.InvalidArgument, "session_id is required")
	}
	return s.engine.GetTransferAttempts(ctx, req.SessionID, req.Filter)
}

func (s *Server) ScanContent(ctx context.Context, req rpc.ScanRequest) (rpc.ScanReport, error) {
	sensitive, err := s.engine.ScanForSensitiveData(ctx, req.Content)
	if err != nil {
		return rpc.ScanReport{}, err
	}
	mal, err := s.engine.ScanForMalware(ctx, req.Content, req.FileName)
	if err != nil {
		return rpc.ScanReport{}, err
	}
	return rpc.ScanReport{
		ContentHash: s.engine.HashContent(req.Content),
		Sensitive:   sensitive,
		Malware:     mal,
	}, nil
}

func (s *Server) RegisterSession(ctx context.Context, req model.Session) (rpc.Empty, error) {
	if req.ID == "" || req.TenantID == "" {
		return rpc.Empty{}, status.Error(codes.InvalidArgument, "session id and tenant_id are required")
	}
	return rpc.Empty{}, s.engine.RegisterSession(ctx, &req)
}

func (s *Server) EndSession(ctx context.Context, req rpc.SessionRef) (rpc.Empty, error) {
	return rpc.Empty{}, s.engine.EndSession(ctx, req.SessionID)
}
