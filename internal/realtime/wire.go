package realtime

import (
	"fmt"

	"github.com/google/uuid"
)

// Websocket message kinds.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"

	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeChange       = "change"
	TypeError        = "error"
)

// ClientMessage is sent by a websocket client. Ref identifies the
// subscription in later replies and pushes.
type ClientMessage struct {
	Action string `json:"action"`
	Ref    string `json:"ref"`
	Table  Table  `json:"table,omitempty"`
	Filter string `json:"filter,omitempty"`
	Event  Event  `json:"event,omitempty"`
}

// SubscribeMessage renders sub for the wire.
func SubscribeMessage(ref string, sub Subscription) ClientMessage {
	return ClientMessage{
		Action: ActionSubscribe,
		Ref:    ref,
		Table:  sub.Table,
		Filter: sub.Filter(),
		Event:  sub.Event,
	}
}

// Subscription parses the table, filter and event of a subscribe message.
func (m ClientMessage) Subscription() (Subscription, error) {
	clinicID, err := ParseFilter(m.Filter)
	if err != nil {
		return Subscription{}, err
	}
	sub := Subscription{Table: m.Table, ClinicID: clinicID, Event: m.Event}
	if sub.Event == "" {
		sub.Event = EventAll
	}
	if err := sub.Validate(); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// ServerMessage is a reply or a pushed change. Change fields are inlined.
type ServerMessage struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Error string `json:"error,omitempty"`
	*Change
}

// ErrForbiddenClinic rejects a subscription to another clinic's rows.
var ErrForbiddenClinic = fmt.Errorf("%w: clinic does not match token", ErrInvalidFilter)

// Authorize checks that sub is scoped to the caller's clinic.
func (s Subscription) Authorize(clinicID uuid.UUID) error {
	if s.ClinicID != clinicID {
		return ErrForbiddenClinic
	}
	return nil
}
