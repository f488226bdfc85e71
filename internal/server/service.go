// Service descriptor and client for spanindex.v1.SpanIndex
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names
const (
	ServiceName = "spanindex.v1.SpanIndex"

	OpenDocumentMethod      = "/spanindex.v1.SpanIndex/OpenDocument"
	CloseDocumentMethod     = "/spanindex.v1.SpanIndex/CloseDocument"
	EditMethod              = "/spanindex.v1.SpanIndex/Edit"
	ApplyDiffMethod         = "/spanindex.v1.SpanIndex/ApplyDiff"
	RetagMethod             = "/spanindex.v1.SpanIndex/Retag"
	ReleaseMethod           = "/spanindex.v1.SpanIndex/Release"
	ContainsMethod          = "/spanindex.v1.SpanIndex/Contains"
	IntersectingMethod      = "/spanindex.v1.SpanIndex/Intersecting"
	BatchIntersectingMethod = "/spanindex.v1.SpanIndex/BatchIntersecting"
	StatsMethod             = "/spanindex.v1.SpanIndex/Stats"
)

// SpanIndexServer is the server API for the SpanIndex service. Requests and
// responses are google.protobuf.Struct messages; field names are listed on
// each Server method.
type SpanIndexServer interface {
	OpenDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Edit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyDiff(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retag(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Release(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Contains(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Intersecting(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BatchIntersecting(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(SpanIndexServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SpanIndexServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SpanIndexServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the SpanIndex service for grpc.Server
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpanIndexServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenDocument", Handler: unaryHandler(OpenDocumentMethod, SpanIndexServer.OpenDocument)},
		{MethodName: "CloseDocument", Handler: unaryHandler(CloseDocumentMethod, SpanIndexServer.CloseDocument)},
		{MethodName: "Edit", Handler: unaryHandler(EditMethod, SpanIndexServer.Edit)},
		{MethodName: "ApplyDiff", Handler: unaryHandler(ApplyDiffMethod, SpanIndexServer.ApplyDiff)},
		{MethodName: "Retag", Handler: unaryHandler(RetagMethod, SpanIndexServer.Retag)},
		{MethodName: "Release", Handler: unaryHandler(ReleaseMethod, SpanIndexServer.Release)},
		{MethodName: "Contains", Handler: unaryHandler(ContainsMethod, SpanIndexServer.Contains)},
		{MethodName: "Intersecting", Handler: unaryHandler(IntersectingMethod, SpanIndexServer.Intersecting)},
		{MethodName: "BatchIntersecting", Handler: unaryHandler(BatchIntersectingMethod, SpanIndexServer.BatchIntersecting)},
		{MethodName: "Stats", Handler: unaryHandler(StatsMethod, SpanIndexServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// RegisterSpanIndexServer registers srv on s
func RegisterSpanIndexServer(s grpc.ServiceRegistrar, srv SpanIndexServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the SpanIndex service over a connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes one unary method with a request built from fields
func (c *Client) Call(ctx context.Context, method string, fields map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
