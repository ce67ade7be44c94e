package wire

import (
	"chat-relay/api"
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "chatrelay.v1.ChatService"

	RegisterMethod        = "/" + ServiceName + "/Register"
	LoginMethod           = "/" + ServiceName + "/Login"
	MeMethod              = "/" + ServiceName + "/Me"
	GetOrCreateRoomMethod = "/" + ServiceName + "/GetOrCreateRoom"
	RoomsMethod           = "/" + ServiceName + "/Rooms"
	RoomMessagesMethod    = "/" + ServiceName + "/RoomMessages"
	StoreMessageMethod    = "/" + ServiceName + "/StoreMessage"
	SearchMessagesMethod  = "/" + ServiceName + "/SearchMessages"
	MessageAddedMethod    = "/" + ServiceName + "/MessageAdded"
)

// PublicMethods skip authentication.
var PublicMethods = []string{RegisterMethod, LoginMethod}

type ChatServiceServer interface {
	Register(ctx context.Context, req *api.AuthRequest) (*api.AuthResponse, error)
	Login(ctx context.Context, req *api.AuthRequest) (*api.AuthResponse, error)
	Me(ctx context.Context, req *api.Empty) (*api.User, error)
	GetOrCreateRoom(ctx context.Context, req *api.GetOrCreateRoomRequest) (*api.Room, error)
	Rooms(ctx context.Context, req *api.PageRequest) (*api.RoomConnection, error)
	RoomMessages(ctx context.Context, req *api.PageRequest) (*api.MessageConnection, error)
	StoreMessage(ctx context.Context, req *api.StoreMessageRequest) (*api.Message, error)
	SearchMessages(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error)
	MessageAdded(req *api.SubscribeRequest, stream MessageAddedServer) error
}

type MessageAddedServer interface {
	Send(*api.Message) error
	Context() context.Context
}

type messageAddedServer struct {
	grpc.ServerStream
}

func (s *messageAddedServer) Send(m *api.Message) error {
	return s.ServerStream.SendMsg(m)
}

// unary builds the method handler the way generated code does, running the
// interceptor chain around call.
func unary[Req, Res any](name, fullMethod string,
	call func(srv ChatServiceServer, ctx context.Context, req *Req) (*Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func messageAddedHandler(srv any, stream grpc.ServerStream) error {
	in := new(api.SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).MessageAdded(in, &messageAddedServer{ServerStream: stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", RegisterMethod, ChatServiceServer.Register),
		unary("Login", LoginMethod, ChatServiceServer.Login),
		unary("Me", MeMethod, ChatServiceServer.Me),
		unary("GetOrCreateRoom", GetOrCreateRoomMethod, ChatServiceServer.GetOrCreateRoom),
		unary("Rooms", RoomsMethod, ChatServiceServer.Rooms),
		unary("RoomMessages", RoomMessagesMethod, ChatServiceServer.RoomMessages),
		unary("StoreMessage", StoreMessageMethod, ChatServiceServer.StoreMessage),
		unary("SearchMessages", SearchMessagesMethod, ChatServiceServer.SearchMessages),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "MessageAdded",
			Handler:       messageAddedHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatrelay/v1/chat.proto",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ChatServiceClient mirrors ChatServiceServer on the calling side.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) Register(ctx context.Context, in *api.AuthRequest, opts ...grpc.CallOption) (*api.AuthResponse, error) {
	return invoke[api.AuthResponse](ctx, c.cc, RegisterMethod, in, opts)
}

func (c *ChatServiceClient) Login(ctx context.Context, in *api.AuthRequest, opts ...grpc.CallOption) (*api.AuthResponse, error) {
	return invoke[api.AuthResponse](ctx, c.cc, LoginMethod, in, opts)
}

func (c *ChatServiceClient) Me(ctx context.Context, opts ...grpc.CallOption) (*api.User, error) {
	return invoke[api.User](ctx, c.cc, MeMethod, &api.Empty{}, opts)
}

func (c *ChatServiceClient) GetOrCreateRoom(ctx context.Context, in *api.GetOrCreateRoomRequest, opts ...grpc.CallOption) (*api.Room, error) {
	return invoke[api.Room](ctx, c.cc, GetOrCreateRoomMethod, in, opts)
}

func (c *ChatServiceClient) Rooms(ctx context.Context, in *api.PageRequest, opts ...grpc.CallOption) (*api.RoomConnection, error) {
	return invoke[api.RoomConnection](ctx, c.cc, RoomsMethod, in, opts)
}

func (c *ChatServiceClient) RoomMessages(ctx context.Context, in *api.PageRequest, opts ...grpc.CallOption) (*api.MessageConnection, error) {
	return invoke[api.MessageConnection](ctx, c.cc, RoomMessagesMethod, in, opts)
}

func (c *ChatServiceClient) StoreMessage(ctx context.Context, in *api.StoreMessageRequest, opts ...grpc.CallOption) (*api.Message, error) {
	return invoke[api.Message](ctx, c.cc, StoreMessageMethod, in, opts)
}

func (c *ChatServiceClient) SearchMessages(ctx context.Context, in *api.SearchRequest, opts ...grpc.CallOption) (*api.SearchResponse, error) {
	return invoke[api.SearchResponse](ctx, c.cc, SearchMessagesMethod, in, opts)
}

type MessageAddedClient interface {
	Recv() (*api.Message, error)
	grpc.ClientStream
}

type messageAddedClient struct {
	grpc.ClientStream
}

func (x *messageAddedClient) Recv() (*api.Message, error) {
	m := new(api.Message)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *ChatServiceClient) MessageAdded(ctx context.Context, in *api.SubscribeRequest, opts ...grpc.CallOption) (MessageAddedClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MessageAddedMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &messageAddedClient{ClientStream: stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
