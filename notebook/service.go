package notebook

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "notebook.NotebookService"

const (
	ConnectUserMethod  = "/" + ServiceName + "/ConnectUser"
	GetUsersMethod     = "/" + ServiceName + "/GetUsers"
	GetNotebooksMethod = "/" + ServiceName + "/GetNotebooks"
	AddNotebookMethod  = "/" + ServiceName + "/AddNotebook"
	DropNotebookMethod = "/" + ServiceName + "/DropNotebook"
	AddNodeMethod      = "/" + ServiceName + "/AddNode"
	DropNodeMethod     = "/" + ServiceName + "/DropNode"
	MoveNodeMethod     = "/" + ServiceName + "/MoveNode"
	EditNodeMethod     = "/" + ServiceName + "/EditNode"
	AddTagsMethod      = "/" + ServiceName + "/AddTags"
	DropTagMethod      = "/" + ServiceName + "/DropTag"
	ExecuteMethod      = "/" + ServiceName + "/Execute"
	AddWriterMethod    = "/" + ServiceName + "/AddWriter"
	AddReaderMethod    = "/" + ServiceName + "/AddReader"
	DropWriterMethod   = "/" + ServiceName + "/DropWriter"
	DropReaderMethod   = "/" + ServiceName + "/DropReader"
	WatchMethod        = "/" + ServiceName + "/Watch"
)

type NotebookServiceServer interface {
	ConnectUser(context.Context, *ConnectUserRequest) (*UserResponse, error)
	GetUsers(context.Context, *GetUsersRequest) (*GetUsersResponse, error)
	GetNotebooks(context.Context, *GetNotebooksRequest) (*GetNotebooksResponse, error)
	AddNotebook(context.Context, *AddNotebookRequest) (*NotebookResponse, error)
	DropNotebook(context.Context, *DropNotebookRequest) (*DropNotebookResponse, error)
	AddNode(context.Context, *AddNodeRequest) (*NotebookResponse, error)
	DropNode(context.Context, *DropNodeRequest) (*NotebookResponse, error)
	MoveNode(context.Context, *MoveNodeRequest) (*NotebookResponse, error)
	EditNode(context.Context, *EditNodeRequest) (*NodeResponse, error)
	AddTags(context.Context, *AddTagsRequest) (*NodeResponse, error)
	DropTag(context.Context, *DropTagRequest) (*NodeResponse, error)
	Execute(context.Context, *ExecuteRequest) (*NodeResponse, error)
	AddWriter(context.Context, *MemberRequest) (*NotebookResponse, error)
	AddReader(context.Context, *MemberRequest) (*NotebookResponse, error)
	DropWriter(context.Context, *MemberRequest) (*NotebookResponse, error)
	DropReader(context.Context, *MemberRequest) (*NotebookResponse, error)
	Watch(*WatchRequest, grpc.ServerStreamingServer[ChangeEvent]) error
}

// UnimplementedNotebookServiceServer answers every call with Unimplemented.
// Embed it to stay compatible with future methods.
type UnimplementedNotebookServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedNotebookServiceServer) ConnectUser(context.Context, *ConnectUserRequest) (*UserResponse, error) {
	return nil, unimplemented("ConnectUser")
}
func (UnimplementedNotebookServiceServer) GetUsers(context.Context, *GetUsersRequest) (*GetUsersResponse, error) {
	return nil, unimplemented("GetUsers")
}
func (UnimplementedNotebookServiceServer) GetNotebooks(context.Context, *GetNotebooksRequest) (*GetNotebooksResponse, error) {
	return nil, unimplemented("GetNotebooks")
}
func (UnimplementedNotebookServiceServer) AddNotebook(context.Context, *AddNotebookRequest) (*NotebookResponse, error) {
	return nil, unimplemented("AddNotebook")
}
func (UnimplementedNotebookServiceServer) DropNotebook(context.Context, *DropNotebookRequest) (*DropNotebookResponse, error) {
	return nil, unimplemented("DropNotebook")
}
func (UnimplementedNotebookServiceServer) AddNode(context.Context, *AddNodeRequest) (*NotebookResponse, error) {
	return nil, unimplemented("AddNode")
}
func (UnimplementedNotebookServiceServer) DropNode(context.Context, *DropNodeRequest) (*NotebookResponse, error) {
	return nil, unimplemented("DropNode")
}
func (UnimplementedNotebookServiceServer) MoveNode(context.Context, *MoveNodeRequest) (*NotebookResponse, error) {
	return nil, unimplemented("MoveNode")
}
func (UnimplementedNotebookServiceServer) EditNode(context.Context, *EditNodeRequest) (*NodeResponse, error) {
	return nil, unimplemented("EditNode")
}
func (UnimplementedNotebookServiceServer) AddTags(context.Context, *AddTagsRequest) (*NodeResponse, error) {
	return nil, unimplemented("AddTags")
}
func (UnimplementedNotebookServiceServer) DropTag(context.Context, *DropTagRequest) (*NodeResponse, error) {
	return nil, unimplemented("DropTag")
}
func (UnimplementedNotebookServiceServer) Execute(context.Context, *ExecuteRequest) (*NodeResponse, error) {
	return nil, unimplemented("Execute")
}
func (UnimplementedNotebookServiceServer) AddWriter(context.Context, *MemberRequest) (*NotebookResponse, error) {
	return nil, unimplemented("AddWriter")
}
func (UnimplementedNotebookServiceServer) AddReader(context.Context, *MemberRequest) (*NotebookResponse, error) {
	return nil, unimplemented("AddReader")
}
func (UnimplementedNotebookServiceServer) DropWriter(context.Context, *MemberRequest) (*NotebookResponse, error) {
	return nil, unimplemented("DropWriter")
}
func (UnimplementedNotebookServiceServer) DropReader(context.Context, *MemberRequest) (*NotebookResponse, error) {
	return nil, unimplemented("DropReader")
}
func (UnimplementedNotebookServiceServer) Watch(*WatchRequest, grpc.ServerStreamingServer[ChangeEvent]) error {
	return unimplemented("Watch")
}

func unary[Req, Resp any](name string, call func(NotebookServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NotebookServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NotebookServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NotebookServiceServer).Watch(in, &grpc.GenericServerStream[WatchRequest, ChangeEvent]{ServerStream: stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotebookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ConnectUser", NotebookServiceServer.ConnectUser),
		unary("GetUsers", NotebookServiceServer.GetUsers),
		unary("GetNotebooks", NotebookServiceServer.GetNotebooks),
		unary("AddNotebook", NotebookServiceServer.AddNotebook),
		unary("DropNotebook", NotebookServiceServer.DropNotebook),
		unary("AddNode", NotebookServiceServer.AddNode),
		unary("DropNode", NotebookServiceServer.DropNode),
		unary("MoveNode", NotebookServiceServer.MoveNode),
		unary("EditNode", NotebookServiceServer.EditNode),
		unary("AddTags", NotebookServiceServer.AddTags),
		unary("DropTag", NotebookServiceServer.DropTag),
		unary("Execute", NotebookServiceServer.Execute),
		unary("AddWriter", NotebookServiceServer.AddWriter),
		unary("AddReader", NotebookServiceServer.AddReader),
		unary("DropWriter", NotebookServiceServer.DropWriter),
		unary("DropReader", NotebookServiceServer.DropReader),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "notebook.proto",
}

func RegisterNotebookServiceServer(s grpc.ServiceRegistrar, srv NotebookServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NotebookServiceClient calls the service with the JSON codec.
type NotebookServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewNotebookServiceClient(cc grpc.ClientConnInterface) *NotebookServiceClient {
	return &NotebookServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NotebookServiceClient) ConnectUser(ctx context.Context, in *ConnectUserRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, ConnectUserMethod, in, opts)
}

func (c *NotebookServiceClient) GetUsers(ctx context.Context, in *GetUsersRequest, opts ...grpc.CallOption) (*GetUsersResponse, error) {
	return invoke[GetUsersResponse](ctx, c.cc, GetUsersMethod, in, opts)
}

func (c *NotebookServiceClient) GetNotebooks(ctx context.Context, in *GetNotebooksRequest, opts ...grpc.CallOption) (*GetNotebooksResponse, error) {
	return invoke[GetNotebooksResponse](ctx, c.cc, GetNotebooksMethod, in, opts)
}

func (c *NotebookServiceClient) AddNotebook(ctx context.Context, in *AddNotebookRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, AddNotebookMethod, in, opts)
}

func (c *NotebookServiceClient) DropNotebook(ctx context.Context, in *DropNotebookRequest, opts ...grpc.CallOption) (*DropNotebookResponse, error) {
	return invoke[DropNotebookResponse](ctx, c.cc, DropNotebookMethod, in, opts)
}

func (c *NotebookServiceClient) AddNode(ctx context.Context, in *AddNodeRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, AddNodeMethod, in, opts)
}

func (c *NotebookServiceClient) DropNode(ctx context.Context, in *DropNodeRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, DropNodeMethod, in, opts)
}

func (c *NotebookServiceClient) MoveNode(ctx context.Context, in *MoveNodeRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, MoveNodeMethod, in, opts)
}

func (c *NotebookServiceClient) EditNode(ctx context.Context, in *EditNodeRequest, opts ...grpc.CallOption) (*NodeResponse, error) {
	return invoke[NodeResponse](ctx, c.cc, EditNodeMethod, in, opts)
}

func (c *NotebookServiceClient) AddTags(ctx context.Context, in *AddTagsRequest, opts ...grpc.CallOption) (*NodeResponse, error) {
	return invoke[NodeResponse](ctx, c.cc, AddTagsMethod, in, opts)
}

func (c *NotebookServiceClient) DropTag(ctx context.Context, in *DropTagRequest, opts ...grpc.CallOption) (*NodeResponse, error) {
	return invoke[NodeResponse](ctx, c.cc, DropTagMethod, in, opts)
}

func (c *NotebookServiceClient) Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*NodeResponse, error) {
	return invoke[NodeResponse](ctx, c.cc, ExecuteMethod, in, opts)
}

func (c *NotebookServiceClient) AddWriter(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, AddWriterMethod, in, opts)
}

func (c *NotebookServiceClient) AddReader(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, AddReaderMethod, in, opts)
}

func (c *NotebookServiceClient) DropWriter(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, DropWriterMethod, in, opts)
}

func (c *NotebookServiceClient) DropReader(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*NotebookResponse, error) {
	return invoke[NotebookResponse](ctx, c.cc, DropReaderMethod, in, opts)
}

func (c *NotebookServiceClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ChangeEvent], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchRequest, ChangeEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
