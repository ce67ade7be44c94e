package client

import (
	"chat-relay/api"
	"chat-relay/domain"
	"chat-relay/infrastructure/grpc/wire"
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// ChatClient wraps the chat service stub and attaches the bearer token
// obtained at Register or Login to every later call.
type ChatClient struct {
	conn *grpc.ClientConn
	stub *wire.ChatServiceClient

	mu    sync.RWMutex
	token string
	user  api.User
}

func Dial(target string, opts ...grpc.DialOption) (*ChatClient, error) {
	c := &ChatClient{}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.unaryToken),
		grpc.WithStreamInterceptor(c.streamToken),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.stub = wire.NewChatServiceClient(conn)
	return c, nil
}

func (c *ChatClient) Close() error { return c.conn.Close() }

func (c *ChatClient) withToken(ctx context.Context) context.Context {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (c *ChatClient) unaryToken(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(c.withToken(ctx), method, req, reply, cc, opts...)
}

func (c *ChatClient) streamToken(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
	method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return streamer(c.withToken(ctx), desc, cc, method, opts...)
}

func (c *ChatClient) authenticated(res *api.AuthResponse) api.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = res.Token
	c.user = res.User
	return res.User
}

func (c *ChatClient) UserID() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.UserID(c.user.ID)
}

func (c *ChatClient) Register(ctx context.Context, username, password string) (api.User, error) {
	res, err := c.stub.Register(ctx, &api.AuthRequest{Username: username, Password: password})
	if err != nil {
		return api.User{}, err
	}
	return c.authenticated(res), nil
}

func (c *ChatClient) Login(ctx context.Context, username, password string) (api.User, error) {
	res, err := c.stub.Login(ctx, &api.AuthRequest{Username: username, Password: password})
	if err != nil {
		return api.User{}, err
	}
	return c.authenticated(res), nil
}

func (c *ChatClient) Me(ctx context.Context) (api.User, error) {
	res, err := c.stub.Me(ctx)
	if err != nil {
		return api.User{}, err
	}
	return *res, nil
}

func (c *ChatClient) GetOrCreateRoom(ctx context.Context, otherUserID string) (api.Room, error) {
	res, err := c.stub.GetOrCreateRoom(ctx, &api.GetOrCreateRoomRequest{OtherUserID: otherUserID})
	if err != nil {
		return api.Room{}, err
	}
	return *res, nil
}

func (c *ChatClient) Rooms(ctx context.Context, page api.PageRequest) (api.RoomConnection, error) {
	res, err := c.stub.Rooms(ctx, &page)
	if err != nil {
		return api.RoomConnection{}, err
	}
	return *res, nil
}

func (c *ChatClient) RoomMessages(ctx context.Context, page api.PageRequest) (api.MessageConnection, error) {
	res, err := c.stub.RoomMessages(ctx, &page)
	if err != nil {
		return api.MessageConnection{}, err
	}
	return *res, nil
}

func (c *ChatClient) StoreMessage(ctx context.Context, roomID, content string) (api.Message, error) {
	res, err := c.stub.StoreMessage(ctx, &api.StoreMessageRequest{RoomID: roomID, Content: content})
	if err != nil {
		return api.Message{}, err
	}
	return *res, nil
}

func (c *ChatClient) Search(ctx context.Context, roomID, query string, limit int) ([]api.Message, error) {
	res, err := c.stub.SearchMessages(ctx, &api.SearchRequest{RoomID: roomID, Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Subscribe opens the MessageAdded stream. Canceling ctx ends it.
func (c *ChatClient) Subscribe(ctx context.Context, roomID string) (wire.MessageAddedClient, error) {
	return c.stub.MessageAdded(ctx, &api.SubscribeRequest{RoomID: roomID})
}
