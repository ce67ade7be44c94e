package e2e

import (
	"bytes"
	"chat-relay/api"
	"chat-relay/infrastructure/grpc/client"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const Password = "E2eComplexPass1!"

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HTTPAddr == "" {
		s.T().Skip("E2E_HTTP_ADDR is not set")
	}
}

func (s *BaseSuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Username returns a fresh valid username so scenarios can run repeatedly
// against the same store.
func Username(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// GrpcClient dials the server with call logging, and JSON bodies when E2E_DEBUG_JSON is set.
func (s *BaseSuite) GrpcClient(t *testing.T, name string) *client.ChatClient {
	s.header(t, name)
	c, err := client.Dial(s.Config.GRPCAddr,
		grpc.WithChainUnaryInterceptor(func(ctx context.Context, method string, req, reply any,
			cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, indent(req))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, indent(reply))
				}
			}
			t.Log(logBuilder.String())
			return err
		}))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func indent(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(raw)
}

// HTTP sends a JSON request to the REST API and decodes the answer into out.
func (s *BaseSuite) HTTP(method, path, token string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, "http://"+s.Config.HTTPAddr+path, &payload)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	s.T().Logf("HTTP %s %s [%d]", method, path, resp.StatusCode)
	return resp.StatusCode
}

// Socket opens the messageAdded subscription of a room over WebSocket.
func (s *BaseSuite) Socket(roomID, token string) *websocket.Conn {
	u := url.URL{
		Scheme:   "ws",
		Host:     s.Config.HTTPAddr,
		Path:     "/ws/rooms/" + roomID,
		RawQuery: url.Values{"access_token": {token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseSuite) ReadFrame(conn *websocket.Conn) api.Frame {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame api.Frame
	s.Require().NoError(conn.ReadJSON(&frame))
	return frame
}
