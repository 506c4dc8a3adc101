package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/server"
)

// DefaultTimeout bounds each remote evaluation.
const DefaultTimeout = 5 * time.Second

// Client connects to a typegate gRPC admission server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ admission.Checker = (*Client)(nil)

// New creates a gRPC client for the given address. The connection is lazy,
// so an unreachable server surfaces on the first Evaluate, not here.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to admission server: %w", err)
	}
	return &Client{conn: conn, timeout: DefaultTimeout}, nil
}

// Evaluate asks the remote server about candidate.
// Fail-closed: any RPC or decoding error yields a policy_unavailable reject.
func (c *Client) Evaluate(candidate string) admission.Decision {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	d, _ := c.EvaluateContext(ctx, candidate)
	return d
}

// EvaluateContext is Evaluate with a caller context. It also returns the hash
// of the policy the server used, empty when the call failed.
func (c *Client) EvaluateContext(ctx context.Context, candidate string) (admission.Decision, string) {
	req, err := structpb.NewStruct(map[string]any{"type": candidate})
	if err != nil {
		return unavailable(candidate, err), ""
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.EvaluateMethod, req, resp); err != nil {
		return unavailable(candidate, err), ""
	}

	fields := resp.AsMap()
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	d := admission.Decision{
		Verdict:   admission.Verdict(str("decision")),
		Candidate: candidate,
		Kind:      admission.Kind(str("kind")),
		Reason:    str("reason"),
		Rule:      str("rule"),
	}
	switch d.Verdict {
	case admission.Admit, admission.Reject:
	default:
		return unavailable(candidate, fmt.Errorf("invalid decision %q", d.Verdict)), ""
	}
	return d, str("policy_hash")
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func unavailable(candidate string, err error) admission.Decision {
	return admission.Decision{
		Verdict:   admission.Reject,
		Candidate: candidate,
		Kind:      admission.KindPolicyUnavailable,
		Reason:    fmt.Sprintf("admission server unreachable: %v", err),
	}
}
