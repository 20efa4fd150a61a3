// internal/models/channel.go
package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ChannelKind is the discriminator of a Channel. The string values are the
// stored and wire representation.
type ChannelKind string

const (
	ChannelKindSMS   ChannelKind = "SMS"
	ChannelKindEmail ChannelKind = "E-Mail"
	ChannelKindPush  ChannelKind = "Push Notification"
)

// ChannelKinds lists every supported kind.
var ChannelKinds = []ChannelKind{ChannelKindSMS, ChannelKindEmail, ChannelKindPush}

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelKindSMS, ChannelKindEmail, ChannelKindPush:
		return true
	}
	return false
}

func (k ChannelKind) String() string {
	return string(k)
}

// Address is the kind-specific delivery address of a Channel.
type Address interface {
	Kind() ChannelKind
	Value() string
}

type PhoneNumber string

func (PhoneNumber) Kind() ChannelKind { return ChannelKindSMS }
func (p PhoneNumber) Value() string   { return string(p) }

type EmailAddress string

func (EmailAddress) Kind() ChannelKind { return ChannelKindEmail }
func (e EmailAddress) Value() string   { return string(e) }

type DeviceToken string

func (DeviceToken) Kind() ChannelKind { return ChannelKindPush }
func (d DeviceToken) Value() string   { return string(d) }

// Channel is one delivery mechanism instance. Address is nil when no address
// has been registered, and otherwise always matches Kind.
type Channel struct {
	ID          uuid.UUID
	Kind        ChannelKind
	Description string
	Address     Address
}

func NewSMSChannel(id uuid.UUID, description string, phone PhoneNumber) Channel {
	return newChannel(id, ChannelKindSMS, description, phone)
}

func NewEmailChannel(id uuid.UUID, description string, email EmailAddress) Channel {
	return newChannel(id, ChannelKindEmail, description, email)
}

func NewPushChannel(id uuid.UUID, description string, token DeviceToken) Channel {
	return newChannel(id, ChannelKindPush, description, token)
}

// NewChannel builds a Channel from its stored representation. The address is
// attached only when it is non-empty and the kind is known.
func NewChannel(id uuid.UUID, kind ChannelKind, description, address string) Channel {
	var addr Address
	switch kind {
	case ChannelKindSMS:
		addr = PhoneNumber(address)
	case ChannelKindEmail:
		addr = EmailAddress(address)
	case ChannelKindPush:
		addr = DeviceToken(address)
	}
	return newChannel(id, kind, description, addr)
}

func newChannel(id uuid.UUID, kind ChannelKind, description string, addr Address) Channel {
	if addr != nil && addr.Value() == "" {
		addr = nil
	}
	return Channel{ID: id, Kind: kind, Description: description, Address: addr}
}

func (c Channel) PhoneNumber() (PhoneNumber, bool) {
	p, ok := c.Address.(PhoneNumber)
	return p, ok
}

func (c Channel) EmailAddress() (EmailAddress, bool) {
	e, ok := c.Address.(EmailAddress)
	return e, ok
}

func (c Channel) DeviceToken() (DeviceToken, bool) {
	d, ok := c.Address.(DeviceToken)
	return d, ok
}

// AddressValue returns the raw address or "" when none is registered.
func (c Channel) AddressValue() string {
	if c.Address == nil {
		return ""
	}
	return c.Address.Value()
}

type channelJSON struct {
	ID           uuid.UUID   `json:"id"`
	Type         ChannelKind `json:"type"`
	Description  string      `json:"description"`
	PhoneNumber  string      `json:"phoneNumber,omitempty"`
	EmailAddress string      `json:"emailAddress,omitempty"`
	DeviceToken  string      `json:"deviceToken,omitempty"`
}

func (c Channel) MarshalJSON() ([]byte, error) {
	out := channelJSON{ID: c.ID, Type: c.Kind, Description: c.Description}
	switch a := c.Address.(type) {
	case PhoneNumber:
		out.PhoneNumber = string(a)
	case EmailAddress:
		out.EmailAddress = string(a)
	case DeviceToken:
		out.DeviceToken = string(a)
	}
	return json.Marshal(out)
}

func (c *Channel) UnmarshalJSON(data []byte) error {
	var in channelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var address string
	switch in.Type {
	case ChannelKindSMS:
		address = in.PhoneNumber
	case ChannelKindEmail:
		address = in.EmailAddress
	case ChannelKindPush:
		address = in.DeviceToken
	}
	*c = NewChannel(in.ID, in.Type, in.Description, address)
	return nil
}
