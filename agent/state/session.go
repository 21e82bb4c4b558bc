// Package state holds per-requester dialogue state and the stores that guard
// it. A session tracks the current intent, the slots collected so far, the
// single slot being awaited and the single pending downstream continuation.
package state

import (
	"errors"
	"strings"
	"time"
)

// RequesterID is the opaque key of a session. Build one with NewRequesterID so
// transport resource suffixes are stripped in exactly one place.
type RequesterID string

// NewRequesterID normalizes a transport address into a session key. Addresses
// may carry a "/resource" suffix depending on the channel; sessions are keyed
// on the bare address.
func NewRequesterID(addr string) RequesterID {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	return RequesterID(addr)
}

func (r RequesterID) String() string { return string(r) }

func (r RequesterID) Empty() bool { return r == "" }

// Intent is the classified purpose of a dialogue.
type Intent string

const (
	IntentInscricao  Intent = "inscricao"
	IntentHorarios   Intent = "horarios"
	IntentPagamentos Intent = "pagamentos"
	IntentUnknown    Intent = "desconhecida"
)

// Continuation marks what a session resumes once a downstream reply arrives.
type Continuation string

const (
	ContinuationNone       Continuation = ""
	ContinuationEnrollment Continuation = "inscricao_apos_divida"
	ContinuationPayment    Continuation = "consulta_pagamentos"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilSession      = errors.New("session is nil")
	ErrEmptyRequester  = errors.New("requester id is empty")
)

// Session is the per-requester dialogue state. Slots accumulate across turns;
// at most one slot is awaited and at most one continuation is pending at a
// time.
type Session struct {
	Requester RequesterID    `json:"requester"`
	Intent    Intent         `json:"intent,omitempty"`
	Slots     map[string]any `json:"slots,omitempty"`
	Awaiting  string         `json:"awaiting_slot,omitempty"`
	Pending   Continuation   `json:"pending,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession creates an empty session for a requester.
func NewSession(requester RequesterID, now time.Time) *Session {
	return &Session{
		Requester: requester,
		Slots:     make(map[string]any, 4),
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureSlots makes sure the slot map is initialized.
func (s *Session) EnsureSlots() {
	if s.Slots == nil {
		s.Slots = make(map[string]any, 4)
	}
}

// SetSlot stores a slot value, overwriting any prior value for the name.
func (s *Session) SetSlot(name string, value any) {
	s.EnsureSlots()
	s.Slots[name] = value
}

// HasSlot reports whether the slot has been collected.
func (s *Session) HasSlot(name string) bool {
	if s == nil || s.Slots == nil {
		return false
	}
	_, ok := s.Slots[name]
	return ok
}

// SlotString returns a slot value coerced to string, or "" when absent or not
// a scalar.
func (s *Session) SlotString(name string) string {
	if s == nil || s.Slots == nil {
		return ""
	}
	v, ok := s.Slots[name].(string)
	if !ok {
		return ""
	}
	return v
}

// SlotStrings returns a slot value as a string list. Scalar strings come back
// as a single-element list.
func (s *Session) SlotStrings(name string) []string {
	if s == nil || s.Slots == nil {
		return nil
	}
	switch v := s.Slots[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Validate checks the session invariants.
func (s *Session) Validate() error {
	if s == nil {
		return ErrNilSession
	}
	if s.Requester.Empty() {
		return ErrEmptyRequester
	}
	if s.Awaiting != "" && s.Intent == "" {
		return errors.New("awaiting slot without an intent")
	}
	return nil
}
