package quantick

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service quantick-server registers.
const ServiceName = "quantick.v1.Backtest"

// Full gRPC method names.
const (
	MethodListStrategies = "/" + ServiceName + "/ListStrategies"
	MethodListRuns       = "/" + ServiceName + "/ListRuns"
	MethodGetRun         = "/" + ServiceName + "/GetRun"
	MethodRunBacktest    = "/" + ServiceName + "/RunBacktest"
	MethodSweep          = "/" + ServiceName + "/Sweep"
)

// Client calls quantick-server over gRPC.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial creates a client for the server at addr. The connection is
// established lazily on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close does not close it.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ListStrategies returns the registered strategy names.
func (c *Client) ListStrategies(ctx context.Context) ([]string, error) {
	var resp StrategiesResponse
	if err := c.invoke(ctx, MethodListStrategies, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// ListRuns returns stored runs, newest first, without trades.
func (c *Client) ListRuns(ctx context.Context, req ListRunsRequest) ([]Run, error) {
	var resp ListRunsResponse
	if err := c.invoke(ctx, MethodListRuns, req, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun returns a stored run with its trades.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var resp RunResponse
	if err := c.invoke(ctx, MethodGetRun, GetRunRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// RunBacktest runs a backtest on the server.
func (c *Client) RunBacktest(ctx context.Context, req RunRequest) (*Run, error) {
	var resp RunResponse
	if err := c.invoke(ctx, MethodRunBacktest, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// Sweep runs a parameter sweep on the server.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) ([]Run, error) {
	var resp SweepResponse
	if err := c.invoke(ctx, MethodSweep, req, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := ToStruct(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	if err := FromStruct(out, resp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}
