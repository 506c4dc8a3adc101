package audit

// Sources recorded in AuditEntry.Source.
const (
	SourceHTTP = "http"
	SourceGRPC = "grpc"
	SourceMCP  = "mcp"
	SourceCLI  = "cli"
)

// AuditEntry is one line in the hash-chained JSONL audit log: one admission
// decision, or one payload-level failure with an empty Type.
// All fields are scalars so json.Marshal output, and therefore the chain
// hash, is reproducible.
type AuditEntry struct {
	Timestamp  string `json:"ts"`
	RequestID  string `json:"request_id"`
	Source     string `json:"source,omitempty"`
	Format     string `json:"format,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Type       string `json:"type"`
	Decision   string `json:"decision"`
	Kind       string `json:"kind,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}
