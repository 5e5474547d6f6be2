package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client talks to a running daemon over its Unix socket. One request
// per connection, so a Client is safe for concurrent use.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a daemon client from the daemon config.
func NewClient(cfg Config) *Client {
	return &Client{socketPath: cfg.SocketPath, timeout: cfg.Timeout}
}

// Connect dials the daemon socket.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning reports whether the daemon accepts connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks that the daemon answers requests.
func (c *Client) Ping(ctx context.Context) error {
	var pong PingResult
	if err := c.call(ctx, MethodPing, nil, &pong); err != nil {
		return err
	}
	if !pong.Pong {
		return fmt.Errorf("unexpected ping response")
	}
	return nil
}

// Search runs one query through the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchReply, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	reply := new(SearchReply)
	if err := c.call(ctx, MethodSearch, params, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	status := new(StatusResult)
	if err := c.call(ctx, MethodStatus, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// call runs one request-response exchange and decodes the result into
// out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(c.callDeadline(ctx)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      fmt.Sprintf("req-%d", c.requestID.Add(1)),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("receive response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}

	if err := rebind(resp.Result, out); err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	return nil
}

// callDeadline picks the earlier of the client timeout and the context
// deadline.
func (c *Client) callDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
