// Package pbx holds the wire vocabulary of the PBX control API: request
// envelopes, replies, binary payloads, credential digests and the error
// taxonomy shared by the authenticator and the fetchers.
package pbx

import (
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// StatusOK is the only status code the PBX uses for success. Every other
// value is vendor specific and treated as opaque.
const StatusOK = 0

// DefaultContentType is assumed for recordings when the PBX omits the header.
const DefaultContentType = "audio/wav"

// Well-known actions.
const (
	ActionChallenge = "challenge"
	ActionLogin     = "login"
	ActionLogout    = "logout"
	ActionCall      = "call"
	ActionCDR       = "cdrapi"
	ActionRecording = "recapi"
)

// Request is one action sent to the PBX. It serializes to
// {"request": {"action": ..., <fields>}}. Cookie is not part of the body;
// transports send it as a Cookie header when set.
type Request struct {
	Action string
	Fields map[string]any
	Cookie string
}

// NewRequest creates a request for action.
func NewRequest(action string) *Request {
	return &Request{Action: action, Fields: make(map[string]any)}
}

// With sets a body field and returns the request for chaining.
func (r *Request) With(key string, value any) *Request {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
	return r
}

// WithOptional sets a string field only when it is non-empty.
func (r *Request) WithOptional(key, value string) *Request {
	if value == "" {
		return r
	}
	return r.With(key, value)
}

// WithCookieHeader attaches the session cookie as a transport header.
func (r *Request) WithCookieHeader(cookie string) *Request {
	r.Cookie = cookie
	return r
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		body[k] = v
	}
	body["action"] = r.Action
	return json.Marshal(struct {
		Request map[string]any `json:"request"`
	}{Request: body})
}

// Reply is a decoded PBX JSON response plus the transport metadata the
// authenticator needs.
type Reply struct {
	// HTTPStatus is the transport status code.
	HTTPStatus int
	// Status is the PBX status; nil when the body carried none or was not JSON.
	Status *int
	// Response is the "response" object of the body, if any.
	Response map[string]any
	// Body is the raw response body.
	Body []byte
	// SetCookies holds every Set-Cookie header value in arrival order.
	SetCookies []string
}

type replyBody struct {
	Status   *int           `json:"status"`
	Response map[string]any `json:"response"`
}

// ParseReply decodes body into a Reply. A body that is not a JSON object
// yields a Reply without Status rather than an error, since a malformed
// answer is a protocol outcome and not a transport failure.
func ParseReply(httpStatus int, setCookies []string, body []byte) *Reply {
	reply := &Reply{
		HTTPStatus: httpStatus,
		Body:       body,
		SetCookies: setCookies,
	}
	var decoded replyBody
	if err := json.Unmarshal(body, &decoded); err == nil {
		reply.Status = decoded.Status
		reply.Response = decoded.Response
	}
	return reply
}

// OK reports whether the PBX answered with StatusOK.
func (r *Reply) OK() bool {
	return r != nil && r.Status != nil && *r.Status == StatusOK
}

// Challenge returns response.challenge, or "" when absent or not a string.
func (r *Reply) Challenge() string {
	return r.responseString("challenge")
}

// BodyCookie returns response.cookie, the cookie carried in the JSON body
// by token logins.
func (r *Reply) BodyCookie() string {
	return r.responseString("cookie")
}

// HeaderCookie returns the first Set-Cookie value, the cookie carried by
// password logins.
func (r *Reply) HeaderCookie() string {
	for _, c := range r.SetCookies {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// JSON returns the body when it is valid JSON and a JSON string holding the
// body otherwise, so callers can always embed it in a JSON document.
func (r *Reply) JSON() json.RawMessage {
	if r == nil || len(r.Body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(r.Body) {
		return json.RawMessage(r.Body)
	}
	quoted, err := json.Marshal(string(r.Body))
	if err != nil {
		return json.RawMessage("null")
	}
	return quoted
}

func (r *Reply) responseString(key string) string {
	if r == nil || r.Response == nil {
		return ""
	}
	s, _ := r.Response[key].(string)
	return s
}

// Payload is a fully read binary answer, typically a recording.
type Payload struct {
	HTTPStatus    int
	ContentType   string
	ContentLength int64
	Data          []byte
}

// Success reports a 2xx transport status.
func (p *Payload) Success() bool {
	return p.HTTPStatus >= 200 && p.HTTPStatus < 300
}

// Stream is an unread binary answer. The caller must close Body.
type Stream struct {
	HTTPStatus    int
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}
