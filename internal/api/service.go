// Package api serves the worker message RPC over gRPC. Requests and
// replies are google.protobuf.Struct so no generated stubs are needed.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gsm.v1.WorkerService"

// Method names, also used by the client.
const (
	MethodSkipWaiting       = "SkipWaiting"
	MethodClearCache        = "ClearCache"
	MethodCacheURLs         = "CacheURLs"
	MethodStatus            = "Status"
	MethodSync              = "Sync"
	MethodListConversations = "ListConversations"
	MethodListMessages      = "ListMessages"
	MethodWatchEvents       = "WatchEvents"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// WorkerServer is the server side of gsm.v1.WorkerService.
type WorkerServer interface {
	SkipWaiting(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCache(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CacheURLs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sync(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryFunc func(WorkerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(WorkerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(WorkerServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorkerServer).WatchEvents(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// WatchEventsStream describes the server stream for clients.
var WatchEventsStream = grpc.StreamDesc{
	StreamName:    MethodWatchEvents,
	Handler:       watchEventsHandler,
	ServerStreams: true,
}

// ServiceDesc is the grpc.ServiceDesc for gsm.v1.WorkerService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSkipWaiting, WorkerServer.SkipWaiting),
		unary(MethodClearCache, WorkerServer.ClearCache),
		unary(MethodCacheURLs, WorkerServer.CacheURLs),
		unary(MethodStatus, WorkerServer.Status),
		unary(MethodSync, WorkerServer.Sync),
		unary(MethodListConversations, WorkerServer.ListConversations),
		unary(MethodListMessages, WorkerServer.ListMessages),
	},
	Streams: []grpc.StreamDesc{WatchEventsStream},
}

// RegisterWorkerServer registers srv on s.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&ServiceDesc, srv)
}
