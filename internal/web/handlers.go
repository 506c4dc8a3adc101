package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/decode"
	"github.com/ppiankov/typegate/internal/engine"
)

var mediaTypes = map[decode.Format][]string{
	decode.FormatNative: {"application/octet-stream", "application/x-java-serialized-object"},
	decode.FormatJSON:   {"application/json"},
	decode.FormatYAML:   {"application/x-yaml", "application/yaml", "text/yaml"},
}

type route struct {
	path   string
	format decode.Format
	mode   engine.Mode
}

var decodeRoutes = []route{
	{"/v1/deserialize", decode.FormatNative, engine.ModeInsecure},
	{"/v1/deserialize-secure", decode.FormatNative, engine.ModeSecure},
	{"/v1/deserialize-json", decode.FormatJSON, engine.ModeInsecure},
	{"/v1/deserialize-json-secure", decode.FormatJSON, engine.ModeSecure},
	{"/v1/deserialize-yaml", decode.FormatYAML, engine.ModeInsecure},
	{"/v1/deserialize-yaml-secure", decode.FormatYAML, engine.ModeSecure},
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	for _, rt := range decodeRoutes {
		if rt.mode == engine.ModeInsecure && !s.eng.AllowInsecure() {
			continue
		}
		mux.Handle("POST "+rt.path, s.withRateLimit(s.handleDecode(rt)))
	}
	mux.HandleFunc("POST /v1/admission/check", s.handleCheck)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleDecode(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r.Context())
		annotate(r.Context(), "format", string(rt.format), "mode", string(rt.mode))

		if !acceptsMediaType(r, rt.format) {
			writeError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type",
				fmt.Sprintf("expected Content-Type %s", mediaTypes[rt.format][0]), "")
			return
		}

		limit := s.eng.Settings().Limits.MaxPayloadBytes
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large",
					fmt.Sprintf("payload exceeds %d bytes", limit), "")
				return
			}
			writeError(w, r, http.StatusBadRequest, "malformed_payload", "failed to read body", "")
			return
		}

		meta := engine.Meta{RequestID: id, Source: audit.SourceHTTP}
		out, err := s.eng.Decode(r.Context(), meta, rt.format, rt.mode, raw)
		if err != nil {
			s.writeDecodeError(w, r, err)
			return
		}
		annotate(r.Context(), "type", out.Result.Type)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Deserialized: %s", describe(rt, out.Result))
	}
}

// describe names the decoded value. The secure YAML route renders the value
// itself; every other route names its type.
func describe(rt route, res *decode.Result) string {
	if rt.format == decode.FormatYAML && rt.mode == engine.ModeSecure {
		if str, ok := res.Value.(fmt.Stringer); ok {
			return str.String()
		}
	}
	return res.Type
}

func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *decode.TypeRejectedError
	if errors.As(err, &rejected) {
		kind := "type_rejected"
		if d, ok := rejectionKind(rejected); ok {
			kind = d
		}
		annotate(r.Context(), "type", rejected.Candidate)
		writeError(w, r, http.StatusForbidden, kind, rejected.Error(), rejected.Candidate, rejected.Reason)
		return
	}

	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("decode failed", "request_id", requestID(r.Context()), "error", err)
		writeError(w, r, status, kind, "internal error", "")
		return
	}
	writeError(w, r, status, kind, err.Error(), "")
}

func rejectionKind(rejected *decode.TypeRejectedError) (string, bool) {
	var re *admission.RejectionError
	if errors.As(rejected.Cause, &re) && re.Kind != admission.KindNone {
		return string(re.Kind), true
	}
	return "", false
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, engine.ErrInsecureDisabled):
		return http.StatusNotFound, "insecure_disabled"
	case errors.Is(err, decode.ErrUnknownType):
		return http.StatusUnprocessableEntity, "unknown_type"
	case errors.Is(err, decode.ErrMalformedPayload):
		return http.StatusBadRequest, "malformed_payload"
	case errors.Is(err, decode.ErrUnsupported):
		return http.StatusBadRequest, "unsupported"
	case errors.Is(err, decode.ErrTooDeep):
		return http.StatusBadRequest, "too_deep"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	}
	return http.StatusInternalServerError, "internal"
}

type checkRequest struct {
	Type *string `json:"type"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	if err := dec.Decode(&req); err != nil || req.Type == nil {
		writeError(w, r, http.StatusBadRequest, "malformed_payload", `expected {"type": "<identifier>"}`, "")
		return
	}

	res := s.eng.Check(engine.Meta{RequestID: requestID(r.Context()), Source: audit.SourceHTTP}, *req.Type)
	annotate(r.Context(), "type", res.Candidate, "decision", string(res.Verdict))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"policy_hash": s.eng.PolicyHash(),
		"insecure":    s.eng.AllowInsecure(),
	})
}

func acceptsMediaType(r *http.Request, format decode.Format) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	for _, want := range mediaTypes[format] {
		if mt == want {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, msg, candidate string, reason ...string) {
	body := errorBody{Error: msg, Kind: kind, Type: candidate, RequestID: requestID(r.Context())}
	if len(reason) > 0 {
		body.Reason = reason[0]
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
