// Package engine is the core every transport shares. It owns the admission
// gate, the type registry, the decoder settings and the audit log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/alert"
	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/decode"
	"github.com/ppiankov/typegate/internal/policy"
	"github.com/ppiankov/typegate/internal/registry"
	"github.com/ppiankov/typegate/internal/sample"
)

// Mode selects the checker a decode runs against.
type Mode string

const (
	// ModeSecure checks every candidate against the loaded policy.
	ModeSecure Mode = "secure"
	// ModeInsecure admits everything. It exists to demonstrate the attack.
	ModeInsecure Mode = "insecure"
)

// ParseMode maps a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSecure, ModeInsecure:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (expected secure|insecure)", s)
}

var (
	// ErrPayloadTooLarge reports a payload above limits.max_payload_bytes.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrInsecureDisabled reports an insecure decode on an engine built without AllowInsecure.
	ErrInsecureDisabled = errors.New("insecure mode disabled")
)

// Config configures an Engine.
type Config struct {
	// PolicyPath is the policy file. Empty means ~/.typegate/policy.yaml.
	PolicyPath string
	// AuditLogPath enables the hash-chained audit log when set.
	AuditLogPath string
	// AllowInsecure permits ModeInsecure decodes.
	AllowInsecure bool
	// Registry maps identifiers to Go types. Nil registers the sample types.
	Registry *registry.Registry
	// Logger receives audit and alert delivery failures. Nil uses slog.Default().
	Logger *slog.Logger
}

type settings struct {
	cfg    *policy.Config
	hash   string
	alerts *alert.Dispatcher
}

// Engine is safe for concurrent use.
type Engine struct {
	gate          *admission.Gate
	settings      atomic.Pointer[settings]
	registry      *registry.Registry
	auditLog      *audit.Log
	policyPath    string
	allowInsecure bool
	logger        *slog.Logger

	reloadMu sync.Mutex
}

// New loads the policy (a missing file yields defaults) and opens the audit log.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		gate:          admission.NewGate(nil),
		registry:      cfg.Registry,
		policyPath:    cfg.PolicyPath,
		allowInsecure: cfg.AllowInsecure,
		logger:        cfg.Logger,
	}
	if e.policyPath == "" {
		e.policyPath = policy.DefaultPath()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.registry == nil {
		e.registry = registry.New()
		if err := sample.Register(e.registry); err != nil {
			return nil, fmt.Errorf("failed to register sample types: %w", err)
		}
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}

	if cfg.AuditLogPath != "" {
		l, err := audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		e.auditLog = l
	}
	return e, nil
}

// Close waits for pending alerts and closes the audit log.
func (e *Engine) Close() error {
	if s := e.settings.Load(); s != nil && s.alerts != nil {
		s.alerts.Wait()
	}
	if e.auditLog != nil {
		e.logger.Info("audit log closed", "path", e.auditLog.Path(), "head", e.auditLog.Head())
		return e.auditLog.Close()
	}
	return nil
}

// Reload re-reads the policy file and swaps policy and settings. On error the
// previous snapshot stays active.
func (e *Engine) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	cfg, hash, err := policy.LoadConfigWithHash(e.policyPath)
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}
	p, err := cfg.BuildPolicy(hash)
	if err != nil {
		return err
	}

	e.settings.Store(&settings{cfg: cfg, hash: hash, alerts: alert.NewDispatcher(cfg.Alerts, e.logger)})
	e.gate.Swap(p)
	return nil
}

// Gate returns the admission gate holding the active policy.
func (e *Engine) Gate() *admission.Gate { return e.gate }

// Registry returns the type registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// PolicyPath returns the policy file the engine loads.
func (e *Engine) PolicyPath() string { return e.policyPath }

// AllowInsecure reports whether insecure decodes are permitted.
func (e *Engine) AllowInsecure() bool { return e.allowInsecure }

// PolicyHash returns the hash of the active policy.
func (e *Engine) PolicyHash() string {
	return e.gate.Snapshot().Hash()
}

// Settings returns a copy of the active policy configuration.
func (e *Engine) Settings() policy.Config {
	s := e.settings.Load()
	if s == nil {
		return *policy.DefaultConfig()
	}
	return *s.cfg
}

// Meta identifies the request a check or decode belongs to.
type Meta struct {
	RequestID string
	Source    string
}

// NewMeta returns Meta with a fresh request ID.
func NewMeta(source string) Meta {
	return Meta{RequestID: uuid.NewString(), Source: source}
}

// CheckResult is a decision together with the policy that produced it.
type CheckResult struct {
	admission.Decision
	PolicyHash string `json:"policy_hash"`
	RequestID  string `json:"request_id,omitempty"`
}

// Check evaluates one candidate against the active policy and records it.
func (e *Engine) Check(meta Meta, candidate string) CheckResult {
	p := e.gate.Snapshot()
	d := admission.Evaluate(candidate, p)
	e.record(meta, "", "", p.Hash(), d)
	return CheckResult{Decision: d, PolicyHash: p.Hash(), RequestID: meta.RequestID}
}

// Outcome describes one decode. It is returned even when the decode fails.
type Outcome struct {
	RequestID  string
	Format     decode.Format
	Mode       Mode
	PolicyHash string
	Decisions  []admission.Decision
	Result     *decode.Result
}

// Rejected returns the first rejected decision, if any.
func (o *Outcome) Rejected() (admission.Decision, bool) {
	for _, d := range o.Decisions {
		if !d.Admitted() {
			return d, true
		}
	}
	return admission.Decision{}, false
}

// Decode decodes raw in the given format and mode. All candidates of one
// payload are evaluated against a single policy snapshot.
func (e *Engine) Decode(ctx context.Context, meta Meta, format decode.Format, mode Mode, raw []byte) (*Outcome, error) {
	p := e.gate.Snapshot()
	cfg := e.Settings()
	out := &Outcome{RequestID: meta.RequestID, Format: format, Mode: mode, PolicyHash: p.Hash()}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	opts := decode.Options{
		Registry:     e.registry,
		MaxDepth:     cfg.Limits.MaxDepth,
		TypeProperty: cfg.JSON.TypeProperty,
		Observe: func(d admission.Decision) {
			out.Decisions = append(out.Decisions, d)
		},
	}
	switch mode {
	case ModeSecure:
		opts.Checker = p
		opts.RootType = cfg.YAML.RootType
	case ModeInsecure:
		if !e.allowInsecure {
			return out, ErrInsecureDisabled
		}
		opts.Checker = admission.Unrestricted{}
	default:
		return out, fmt.Errorf("unknown mode %q", mode)
	}

	if int64(len(raw)) > cfg.Limits.MaxPayloadBytes {
		err := fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(raw), cfg.Limits.MaxPayloadBytes)
		e.recordFailure(meta, out, err)
		return out, err
	}

	dec, err := decode.New(format, opts)
	if err != nil {
		return out, err
	}
	res, err := dec.Decode(raw)

	for _, d := range out.Decisions {
		e.record(meta, string(format), string(mode), out.PolicyHash, d)
	}
	if err != nil {
		if !errors.Is(err, decode.ErrTypeRejected) {
			e.recordFailure(meta, out, err)
		}
		return out, err
	}
	out.Result = res
	return out, nil
}

func (e *Engine) record(meta Meta, format, mode, hash string, d admission.Decision) {
	e.write(audit.AuditEntry{
		RequestID:  meta.RequestID,
		Source:     meta.Source,
		Format:     format,
		Mode:       mode,
		Type:       d.Candidate,
		Decision:   string(d.Verdict),
		Kind:       string(d.Kind),
		Reason:     d.Reason,
		Rule:       d.Rule,
		PolicyHash: hash,
	})
}

func (e *Engine) recordFailure(meta Meta, out *Outcome, err error) {
	e.write(audit.AuditEntry{
		RequestID:  meta.RequestID,
		Source:     meta.Source,
		Format:     string(out.Format),
		Mode:       string(out.Mode),
		Decision:   audit.DecisionError,
		Reason:     err.Error(),
		PolicyHash: out.PolicyHash,
	})
}

func (e *Engine) write(entry audit.AuditEntry) {
	if s := e.settings.Load(); s != nil && s.alerts != nil {
		s.alerts.Dispatch(alert.AlertEvent{
			Timestamp:  time.Now().UTC().Format(audit.TimestampFormat),
			RequestID:  entry.RequestID,
			Source:     entry.Source,
			Format:     entry.Format,
			Mode:       entry.Mode,
			Type:       entry.Type,
			Decision:   entry.Decision,
			Kind:       entry.Kind,
			Reason:     entry.Reason,
			Rule:       entry.Rule,
			PolicyHash: entry.PolicyHash,
		})
	}
	if e.auditLog == nil {
		return
	}
	if err := e.auditLog.Record(entry); err != nil {
		e.logger.Warn("audit write failed", "request_id", entry.RequestID, "error", err)
	}
}
