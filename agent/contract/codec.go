package contract

import (
	"encoding/json"
	"fmt"
)

type wireEnvelope struct {
	Performative Performative    `json:"performative"`
	Sender       string          `json:"sender"`
	To           string          `json:"to"`
	Thread       string          `json:"thread,omitempty"`
	Body         json.RawMessage `json:"body"`
}

type wireKind struct {
	Type BodyKind `json:"type"`
}

// MarshalJSON encodes the envelope with the body kind embedded as a "type"
// field inside the body object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Body == nil {
		return nil, fmt.Errorf("%w: envelope body is nil", ErrValidation)
	}

	raw, err := json.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("reshape body: %w", err)
	}
	kind, err := json.Marshal(e.Body.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireEnvelope{
		Performative: e.Performative,
		Sender:       e.Sender,
		To:           e.To,
		Thread:       e.Thread,
		Body:         body,
	})
}

// UnmarshalJSON decodes the envelope, dispatching the body on its "type"
// field. An unknown or missing kind yields ErrUnknownBody; a payload that does
// not fit its declared kind yields ErrDecode. Callers at the transport
// boundary drop such messages without replying.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	body, err := DecodeBody(wire.Body)
	if err != nil {
		return err
	}

	e.Performative = wire.Performative
	e.Sender = wire.Sender
	e.To = wire.To
	e.Thread = wire.Thread
	e.Body = body
	return nil
}

// DecodeBody turns a raw body payload into its concrete struct.
func DecodeBody(raw json.RawMessage) (Body, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecode)
	}

	var tag wireKind
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var body Body
	switch tag.Type {
	case BodyTextRequest:
		body = &TextRequest{}
	case BodyAsk:
		body = &Ask{}
	case BodyAnswer:
		body = &Answer{}
	case BodyDebtQuery:
		body = &DebtQuery{}
	case BodyDebtReply:
		body = &DebtReply{}
	case BodyDebtStatus:
		body = &DebtStatus{}
	case BodyPaymentRequest:
		body = &PaymentRequest{}
	case BodyPaymentReply:
		body = &PaymentReply{}
	case BodyScheduleRequest:
		body = &ScheduleRequest{}
	case BodyScheduleReply:
		body = &ScheduleReply{}
	case BodyErrorReply:
		body = &ErrorReply{}
	default:
		return nil, fmt.Errorf("%w: type=%q", ErrUnknownBody, tag.Type)
	}

	if err := json.Unmarshal(raw, body); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDecode, tag.Type, err)
	}
	return deref(body), nil
}

// deref normalizes decoded bodies to value form so type switches in handlers
// can match on both constructed and decoded envelopes.
func deref(b Body) Body {
	switch v := b.(type) {
	case *TextRequest:
		return *v
	case *Ask:
		return *v
	case *Answer:
		return *v
	case *DebtQuery:
		return *v
	case *DebtReply:
		return *v
	case *DebtStatus:
		return *v
	case *PaymentRequest:
		return *v
	case *PaymentReply:
		return *v
	case *ScheduleRequest:
		return *v
	case *ScheduleReply:
		return *v
	case *ErrorReply:
		return *v
	default:
		return b
	}
}
