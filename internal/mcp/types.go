// Package mcp serves the stock lookups as JSON-RPC style calls: one request
// object per input line, one response object per output line.
package mcp

import (
	"encoding/json"
	"fmt"

	"go.lsp.dev/jsonrpc2"
)

// Version is the protocol version stamped on every response.
const Version = "2.0"

// ErrorCode is carried by every error envelope. Existing clients key on this
// single value, so validation, protocol and internal failures all share it.
// Only the code comes from jsonrpc2; its Conn frames with Content-Length
// headers and cannot carry this newline-delimited wire.
const ErrorCode = int64(jsonrpc2.MethodNotFound)

// ErrorKind classifies envelope errors for logs and metrics. It is never
// serialized.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // required parameter missing or unusable
	KindProtocol   ErrorKind = "protocol"   // malformed request, unknown method
	KindInternal   ErrorKind = "internal"   // unexpected failure while matching
)

// Error is the error member of a response.
type Error struct {
	Code    int64     `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Code: ErrorCode, Message: fmt.Sprintf(format, args...), Kind: kind}
}

// Request is one decoded call.
type Request struct {
	JSONRPC string
	// ID is the correlation id exactly as received; nil when absent.
	ID     json.RawMessage
	Method string
	Params Params
}

// Response is one reply. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Success builds a result envelope.
func Success(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// Failure builds an error envelope.
func Failure(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Error: err}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// NotFoundPayload is the data-shaped result returned when a lookup matches
// nothing. List methods wrap it in a one-element array so callers always
// receive the type they asked for.
type NotFoundPayload struct {
	Error string `json:"error"`
}

// ParseRequest decodes one request line. A line that is not a JSON object
// yields an error with no id; a request whose params are unusable yields an
// error carrying the request's id.
func ParseRequest(line []byte) (*Request, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		if json.Valid(line) {
			return nil, newError(KindProtocol, "Invalid request: expected a JSON object")
		}
		return nil, newError(KindProtocol, "Invalid JSON")
	}
	if fields == nil {
		return nil, newError(KindProtocol, "Invalid request: expected a JSON object")
	}

	req := &Request{ID: fields["id"], Params: Params{}}

	if raw, ok := fields["jsonrpc"]; ok {
		_ = json.Unmarshal(raw, &req.JSONRPC)
	}

	if raw, ok := fields["method"]; ok {
		if err := json.Unmarshal(raw, &req.Method); err != nil {
			// Not a string; keep its text so the unknown-method message names it.
			req.Method = string(raw)
		}
	}

	if raw, ok := fields["params"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Params); err != nil || req.Params == nil {
			req.Params = Params{}
			return req, newError(KindValidation, "Invalid params: expected an object")
		}
	}

	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
