package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mr1hm/disaster-response/internal/hub"
	"github.com/mr1hm/disaster-response/internal/models"
)

const (
	serviceName         = "disasters.v1.ReportService"
	listReportsMethod   = "/" + serviceName + "/ListReports"
	streamReportsMethod = "/" + serviceName + "/StreamReports"
)

type ListReportsRequest struct{}

type ListReportsResponse struct {
	Reports []models.Report `json:"reports"`
}

// StreamReportsRequest narrows the live stream. Empty fields match all.
type StreamReportsRequest struct {
	DisasterType string `json:"disasterType,omitempty"`
	MinSeverity  string `json:"minSeverity,omitempty"`
}

type ReportServiceServer interface {
	ListReports(ctx context.Context, req *ListReportsRequest) (*ListReportsResponse, error)
	StreamReports(req *StreamReportsRequest, stream grpc.ServerStream) error
}

var reportServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListReports",
			Handler:    listReportsHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamReports",
			Handler:       streamReportsHandler,
			ServerStreams: true,
		},
	},
}

func listReportsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListReportsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).ListReports(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: listReportsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).ListReports(ctx, req.(*ListReportsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamReportsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamReportsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ReportServiceServer).StreamReports(in, stream)
}

// Client calls ReportService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListReports(ctx context.Context) ([]models.Report, error) {
	out := new(ListReportsResponse)
	if err := c.cc.Invoke(ctx, listReportsMethod, &ListReportsRequest{}, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// StreamReports opens the live stream. Cancel ctx to end it.
func (c *Client) StreamReports(ctx context.Context, req *StreamReportsRequest) (*ReportStream, error) {
	stream, err := c.cc.NewStream(ctx, &reportServiceDesc.Streams[0], streamReportsMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ReportStream{stream: stream}, nil
}

type ReportStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream.
func (s *ReportStream) Recv() (*hub.Event, error) {
	ev := new(hub.Event)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
