package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeType is the discriminator carried in the "type" field of every frame.
type EnvelopeType string

const (
	TypeLogin          EnvelopeType = "login"
	TypePublicMessage  EnvelopeType = "publicMessage"
	TypePrivateMessage EnvelopeType = "privateMessage"
)

// TimestampLayout matches JavaScript's Date.prototype.toISOString output.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrUnknownType  = errors.New("unknown envelope type")
	ErrMissingField = errors.New("missing envelope field")
)

// UserID is an opaque user identifier. Browser clients send it as a JSON number,
// other clients as a string; both decode to the same value.
type UserID string

// UnmarshalJSON accepts a JSON string or number.
func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// String returns the identifier as text.
func (u UserID) String() string { return string(u) }

// Identity is the (userId, nickname) pair bound to an authenticated session.
type Identity struct {
	UserID   UserID `json:"userId"`
	Nickname string `json:"nickname"`
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i.UserID == "" && i.Nickname == "" }

// Valid reports whether both parts of the identity are non-empty.
func (i Identity) Valid() bool { return i.UserID != "" && i.Nickname != "" }

// Envelope is a typed JSON frame exchanged over the chat transport.
// Login envelopes carry UserID and Nickname; message envelopes carry the sender
// fields, Content and Timestamp, and private messages add ReceiverID.
type Envelope struct {
	Type       EnvelopeType `json:"type"`
	UserID     UserID       `json:"userId,omitempty"`
	Nickname   string       `json:"nickname,omitempty"`
	SenderID   UserID       `json:"senderId,omitempty"`
	SenderName string       `json:"senderName,omitempty"`
	ReceiverID UserID       `json:"receiverId,omitempty"`
	Content    string       `json:"content"`
	Timestamp  string       `json:"timestamp,omitempty"`
}

// loginWire is the exact wire shape of a login frame.
type loginWire struct {
	Type     EnvelopeType `json:"type"`
	UserID   UserID       `json:"userId"`
	Nickname string       `json:"nickname"`
}

// NewLogin builds a Login envelope asserting id.
func NewLogin(id Identity) Envelope {
	return Envelope{Type: TypeLogin, UserID: id.UserID, Nickname: id.Nickname}
}

// NewPublicMessage builds a PublicMessage stamped with sender and now.
func NewPublicMessage(sender Identity, content string, now time.Time) Envelope {
	return Envelope{
		Type:       TypePublicMessage,
		SenderID:   sender.UserID,
		SenderName: sender.Nickname,
		Content:    content,
		Timestamp:  FormatTimestamp(now),
	}
}

// NewPrivateMessage builds a PrivateMessage for receiver stamped with sender and now.
func NewPrivateMessage(sender Identity, receiver UserID, content string, now time.Time) Envelope {
	return Envelope{
		Type:       TypePrivateMessage,
		SenderID:   sender.UserID,
		SenderName: sender.Nickname,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  FormatTimestamp(now),
	}
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Identity returns the identity asserted by a Login envelope.
func (e Envelope) Identity() Identity {
	return Identity{UserID: e.UserID, Nickname: e.Nickname}
}

// IsMessage reports whether the envelope is a public or private message.
func (e Envelope) IsMessage() bool {
	return e.Type == TypePublicMessage || e.Type == TypePrivateMessage
}

// Validate checks the fields required by the envelope's type.
func (e Envelope) Validate() error {
	switch e.Type {
	case TypeLogin:
		if e.UserID == "" {
			return fmt.Errorf("%w: userId", ErrMissingField)
		}
		if e.Nickname == "" {
			return fmt.Errorf("%w: nickname", ErrMissingField)
		}
	case TypePublicMessage, TypePrivateMessage:
		if e.SenderID == "" {
			return fmt.Errorf("%w: senderId", ErrMissingField)
		}
		if e.Type == TypePrivateMessage && e.ReceiverID == "" {
			return fmt.Errorf("%w: receiverId", ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// MarshalJSON writes login frames without message fields.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Type == TypeLogin {
		return json.Marshal(loginWire{Type: e.Type, UserID: e.UserID, Nickname: e.Nickname})
	}
	type plain Envelope
	return json.Marshal(plain(e))
}

// Encode validates and marshals the envelope into a text frame payload.
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses and validates a single frame payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
