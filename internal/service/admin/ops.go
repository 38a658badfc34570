package admin

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/blinddate/internal/app"
)

const OpsServiceName = "blinddate.ops.v1.Ops"

// OpsServer is the internal operations API served next to health and
// reflection on the gRPC port. Payloads are well-known types so no
// generated code is needed.
type OpsServer interface {
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ReloadSettings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// OpsRegistrar ties the ops API into the gRPC server
type OpsRegistrar struct {
	appCtx *app.AppContext
}

func NewOpsRegistrar(appCtx *app.AppContext) *OpsRegistrar {
	return &OpsRegistrar{appCtx: appCtx}
}

// Register attaches the ops service to a gRPC server
func (r *OpsRegistrar) Register(s *grpc.Server) {
	s.RegisterService(&opsServiceDesc, &opsServer{svc: NewAdminService(r.appCtx)})
}

type opsServer struct {
	svc *Service
}

func (o *opsServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := o.svc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(st)
}

func (o *opsServer) ReloadSettings(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	values, err := o.svc.ReloadSettings(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(values)
}

// toStruct goes through JSON so field names match the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

var opsServiceDesc = grpc.ServiceDesc{
	ServiceName: OpsServiceName,
	HandlerType: (*OpsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: opsStatsHandler},
		{MethodName: "ReloadSettings", Handler: opsReloadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blinddate/ops/v1/ops.proto",
}

func opsStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpsServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OpsServiceName + "/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OpsServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func opsReloadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpsServer).ReloadSettings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OpsServiceName + "/ReloadSettings"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OpsServer).ReloadSettings(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// OpsClient calls the ops service over any connection.
type OpsClient struct {
	cc grpc.ClientConnInterface
}

func NewOpsClient(cc grpc.ClientConnInterface) *OpsClient {
	return &OpsClient{cc: cc}
}

func (c *OpsClient) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+OpsServiceName+"/Stats", &emptypb.Empty{}, out, opts...)
	return out, err
}

func (c *OpsClient) ReloadSettings(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+OpsServiceName+"/ReloadSettings", &emptypb.Empty{}, out, opts...)
	return out, err
}
