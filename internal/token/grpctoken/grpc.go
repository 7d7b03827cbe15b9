// Package grpctoken serves a token over gRPC and implements payment.Token
// against such a server, so the ledger can settle against a token running
// in another process.
//
// Messages are protobuf Struct values; no code generation is involved.
// Amounts travel as decimal strings.
package grpctoken

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "marketplace.token.v1.Token"

// TokenServer is the server API for the Token service.
type TokenServer interface {
	Info(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BalanceOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Allowance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransferFrom(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTokenServer registers srv on s.
func RegisterTokenServer(s grpc.ServiceRegistrar, srv TokenServer) {
	s.RegisterService(&Token_ServiceDesc, srv)
}

type tokenClient struct{ cc grpc.ClientConnInterface }

func (c tokenClient) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type unaryFunc func(TokenServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, fn unaryFunc) grpc.MethodDesc {
	full := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			ts, ok := srv.(TokenServer)
			if !ok {
				return nil, status.Error(codes.Internal, "token server has the wrong type")
			}
			if interceptor == nil {
				return fn(ts, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(ts, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Token_ServiceDesc is the grpc.ServiceDesc for the Token service.
var Token_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TokenServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Info", TokenServer.Info),
		handler("BalanceOf", TokenServer.BalanceOf),
		handler("Allowance", TokenServer.Allowance),
		handler("Approve", TokenServer.Approve),
		handler("Transfer", TokenServer.Transfer),
		handler("TransferFrom", TokenServer.TransferFrom),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "token.proto",
}
