package grpc

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/mr1hm/disaster-response/internal/hub"
	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/repository"
)

type Server struct {
	reports    repository.ReportRepository
	hub        *hub.Hub
	grpcServer *grpc.Server
}

func NewServer(reports repository.ReportRepository, h *hub.Hub) *Server {
	s := &Server{
		reports:    reports,
		hub:        h,
		grpcServer: grpc.NewServer(),
	}
	s.grpcServer.RegisterService(&reportServiceDesc, s)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("gRPC server listening", "addr", addr)
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) ListReports(ctx context.Context, _ *ListReportsRequest) (*ListReportsResponse, error) {
	reports, err := s.reports.ListAll(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list reports: %v", err)
	}
	return &ListReportsResponse{Reports: reports}, nil
}

// StreamReports registers the stream with the hub and holds it open until
// the client goes away or the hub drops it.
func (s *Server) StreamReports(req *StreamReportsRequest, stream grpc.ServerStream) error {
	f, err := newFilter(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	conn := &streamConn{
		id:     uuid.NewString(),
		stream: stream,
		filter: f,
		done:   make(chan struct{}),
	}
	if !s.hub.Register(conn) {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	defer s.hub.Unregister(conn.id)

	// The stream counts as connected once the client has its headers.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}
	if !s.hub.Open(conn.id) {
		return status.Error(codes.Unavailable, "server is shutting down")
	}

	slog.Info("client subscribed to report stream", "conn_id", conn.id)

	select {
	case <-stream.Context().Done():
		slog.Info("client disconnected from report stream", "conn_id", conn.id)
	case <-conn.done:
	}
	return nil
}

type filter struct {
	category    models.Category
	minSeverity models.Severity
}

func newFilter(req *StreamReportsRequest) (filter, error) {
	var f filter
	if req.DisasterType != "" {
		c, ok := models.ParseCategory(req.DisasterType)
		if !ok {
			return f, &models.ValidationError{Field: "disasterType", Reason: "unknown disasterType " + req.DisasterType}
		}
		f.category = c
	}
	if req.MinSeverity != "" {
		sev, ok := models.ParseSeverity(req.MinSeverity)
		if !ok {
			return f, &models.ValidationError{Field: "minSeverity", Reason: "unknown severity " + req.MinSeverity}
		}
		f.minSeverity = sev
	}
	return f, nil
}

func (f filter) match(r models.Report) bool {
	if f.category != "" && r.DisasterType != f.category {
		return false
	}
	if f.minSeverity != "" && r.Severity.Rank() < f.minSeverity.Rank() {
		return false
	}
	return true
}

// streamConn adapts a server stream to hub.Conn.
type streamConn struct {
	id     string
	stream grpc.ServerStream
	filter filter

	closeOnce sync.Once
	done      chan struct{}
}

func (c *streamConn) ID() string { return c.id }

// WriteEvent sends in a goroutine because SendMsg ignores ctx while blocked
// on flow control. On timeout the hub closes the conn, which ends the
// handler and unblocks the send.
func (c *streamConn) WriteEvent(ctx context.Context, ev hub.Event) error {
	if !c.filter.match(ev.Data) {
		return hub.ErrSkipped
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.stream.SendMsg(&ev)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return status.Error(codes.Canceled, "stream closed")
	}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
