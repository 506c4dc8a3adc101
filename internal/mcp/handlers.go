package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/decode"
	"github.com/ppiankov/typegate/internal/engine"
)

// --- Input/Output types ---

// CheckInput defines parameters for the typegate_check tool.
type CheckInput struct {
	Type string `json:"type" jsonschema:"fully qualified type identifier, e.g. io.typegate.safe.SafeClass"`
}

// CheckOutput contains the admission decision.
type CheckOutput struct {
	Decision   string `json:"decision"`
	Type       string `json:"type"`
	Kind       string `json:"kind,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
	PolicyHash string `json:"policy_hash"`
}

// DecodeInput defines parameters for the typegate_decode tool.
type DecodeInput struct {
	Format  string `json:"format" jsonschema:"payload format (native/json/yaml)"`
	Payload string `json:"payload" jsonschema:"payload; base64 for native, text for json and yaml"`
}

// DecodeOutput contains the decoded type or rejection details.
type DecodeOutput struct {
	Decoded    bool     `json:"decoded"`
	Type       string   `json:"type,omitempty"`
	Value      string   `json:"value,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Rejected   bool     `json:"rejected,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
	PolicyHash string   `json:"policy_hash"`
	RequestID  string   `json:"request_id"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	res := s.eng.Check(engine.NewMeta(audit.SourceMCP), input.Type)
	return nil, CheckOutput{
		Decision:   string(res.Verdict),
		Type:       res.Candidate,
		Kind:       string(res.Kind),
		Reason:     res.Reason,
		Rule:       res.Rule,
		PolicyHash: res.PolicyHash,
	}, nil
}

func (s *Server) handleDecode(ctx context.Context, req *mcpsdk.CallToolRequest, input DecodeInput) (*mcpsdk.CallToolResult, DecodeOutput, error) {
	format, err := decode.ParseFormat(input.Format)
	if err != nil {
		return nil, DecodeOutput{}, err
	}

	raw := []byte(input.Payload)
	if format == decode.FormatNative {
		raw, err = base64.StdEncoding.DecodeString(input.Payload)
		if err != nil {
			return nil, DecodeOutput{}, fmt.Errorf("native payload must be base64: %w", err)
		}
	}

	out, err := s.eng.Decode(ctx, engine.NewMeta(audit.SourceMCP), format, engine.ModeSecure, raw)
	result := DecodeOutput{PolicyHash: out.PolicyHash, RequestID: out.RequestID}
	for _, d := range out.Decisions {
		result.Candidates = append(result.Candidates, d.Candidate)
	}

	if err != nil {
		var rejected *decode.TypeRejectedError
		if errors.As(err, &rejected) {
			result.Rejected = true
			result.Type = rejected.Candidate
			result.Reason = rejected.Reason
			var re *admission.RejectionError
			if errors.As(err, &re) {
				result.Kind = string(re.Kind)
			}
		}
		result.Error = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, result, nil
	}

	result.Decoded = true
	result.Type = out.Result.Type
	result.Value = fmt.Sprintf("%v", out.Result.Value)
	if str, ok := out.Result.Value.(fmt.Stringer); ok {
		result.Value = str.String()
	}
	return nil, result, nil
}
