// ABOUTME: Request and response envelopes of the native protocol
// ABOUTME: Requests are immutable once parsed; the empty response encodes as {}

package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/service"
)

// Protocol tags.
const (
	ProtocolNative = "HDP"
	ProtocolHTTP   = "HTTP"
)

// Request is one parsed client request. HTTP-only fields are not encoded.
type Request struct {
	Protocol          string          `json:"protocol"`
	AccountName       string          `json:"account_name,omitempty"`
	AccountPassword   string          `json:"account_password,omitempty"`
	AccountPrivileges auth.Privileges `json:"account_privileges,omitempty"`
	Action            Action          `json:"action"`

	UserID       int                   `json:"userid,omitempty"`
	ItemID       int                   `json:"itemid,omitempty"`
	ItemIDs      []int                 `json:"itemids,omitempty"`
	MaxRecommend int                   `json:"max_recommend,omitempty"`
	ExternalID   string                `json:"external_id,omitempty"`
	Attribute    string                `json:"attribute,omitempty"`
	Index        int                   `json:"index,omitempty"`
	Rating       *service.RatingVector `json:"rating,omitempty"`
	Profile      *service.Profile      `json:"profile,omitempty"`
	Nominal      *service.Nominal      `json:"nominal,omitempty"`

	Method   string `json:"-"`
	Path     string `json:"-"`
	FileType string `json:"-"`
	Format   string `json:"-"`
}

// IsHTTP reports whether the request arrived as an HTTP request line.
func (r *Request) IsHTTP() bool {
	return r.Protocol == ProtocolHTTP
}

// IsQuit reports whether the request ends the conversation.
func (r *Request) IsQuit() bool {
	return r.Action == ActionQuit
}

// HasCredentials reports whether the request carries an account.
func (r *Request) HasCredentials() bool {
	return r.AccountName != ""
}

// RecommendParam builds the subject of an estimate or recommendation.
func (r *Request) RecommendParam() service.RecommendParam {
	return service.RecommendParam{UserID: r.UserID, Ratings: r.Rating, Profile: r.Profile}
}

// Response is one reply envelope. Exactly one payload field is set on
// success; the zero Response is the empty envelope.
type Response struct {
	Protocol string `json:"protocol,omitempty"`
	Action   Action `json:"action,omitempty"`

	IDs            []int                   `json:"ids,omitempty"`
	Rating         *service.RatingVector   `json:"rating,omitempty"`
	Profile        *service.Profile        `json:"profile,omitempty"`
	ExternalRecord *service.ExternalRecord `json:"external_record,omitempty"`
	Nominal        *service.Nominal        `json:"nominal,omitempty"`
	OK             *bool                   `json:"ok,omitempty"`
	Status         *service.Status         `json:"status,omitempty"`
}

// Empty returns the empty envelope.
func Empty() *Response {
	return &Response{}
}

// NewResponse starts a response to req.
func NewResponse(req *Request) *Response {
	return &Response{Protocol: ProtocolNative, Action: req.Action}
}

// WithOK sets the boolean payload.
func (r *Response) WithOK(ok bool) *Response {
	r.OK = &ok
	return r
}

// IsEmpty reports whether r is the empty envelope.
func (r *Response) IsEmpty() bool {
	return r == nil || r.Action == ""
}

// Payload returns the single payload value of r, or nil.
func (r *Response) Payload() any {
	switch {
	case r == nil:
		return nil
	case r.IDs != nil:
		return r.IDs
	case r.Rating != nil:
		return r.Rating
	case r.Profile != nil:
		return r.Profile
	case r.ExternalRecord != nil:
		return r.ExternalRecord
	case r.Nominal != nil:
		return r.Nominal
	case r.OK != nil:
		return map[string]bool{"ok": *r.OK}
	case r.Status != nil:
		return r.Status
	default:
		return nil
	}
}

// WriteNative writes resp as one JSON line. A nil resp is written as {}.
func WriteNative(w io.Writer, resp *Response) error {
	if resp == nil {
		resp = Empty()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
