// Package assistantnode holds the per-turn pipeline steps of the assistant.
// Each step is a plain function so the answer and continuation handlers can
// reuse them outside the compiled graph.
package assistantnode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	nlux "github.com/mRafaelSilva/Projeto-ASM/agent/nlu"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
)

var (
	ErrInvalidMessage   = errors.New("message text is empty")
	ErrInvalidRequester = errors.New("requester id is empty")
)

// Addresses are the agent endpoints the assistant talks to.
type Addresses struct {
	Assistant  string
	Horarios   string
	Financeiro string
}

// Deps are the collaborators the pipeline steps need.
type Deps struct {
	Extractor nlux.Extractor
	Addresses Addresses
	NewThread func() string
}

// GraphInput starts a text turn. Session is the requester's session, already
// held under its store lock by the caller.
type GraphInput struct {
	Requester statex.RequesterID
	Text      string
	Thread    string
	Session   *statex.Session
}

// GraphOutput is what a turn produces: messages to publish after the session
// lock is released, and whether the session reached normal completion.
type GraphOutput struct {
	Outbound     []contractx.Envelope
	CloseSession bool
}

// GraphState threads the turn through the pipeline.
type GraphState struct {
	Requester statex.RequesterID
	Text      string
	Thread    string
	Session   *statex.Session

	Extraction nlux.Extraction

	Outbound     []contractx.Envelope
	CloseSession bool
}

// RequiredSlots lists, per intent, the slots that must be collected before the
// intent can proceed. List order is ask order.
var RequiredSlots = map[statex.Intent][]string{
	statex.IntentInscricao:  {nlux.SlotNumeroAluno, nlux.SlotCurso, nlux.SlotDisciplina},
	statex.IntentHorarios:   {nlux.SlotCurso, nlux.SlotDisciplina},
	statex.IntentPagamentos: {nlux.SlotNumeroAluno},
}

// ValidateTurn checks the turn input and seeds the pipeline state.
func ValidateTurn(in GraphInput) (*GraphState, error) {
	if in.Requester.Empty() {
		return nil, ErrInvalidRequester
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrInvalidMessage
	}
	if in.Session == nil {
		return nil, fmt.Errorf("%w: session is nil", contractx.ErrValidation)
	}

	return &GraphState{
		Requester: in.Requester,
		Text:      strings.TrimSpace(in.Text),
		Thread:    in.Thread,
		Session:   in.Session,
	}, nil
}

// ExtractIntent runs the NLU collaborator over the turn text.
func ExtractIntent(ctx context.Context, st *GraphState, extractor nlux.Extractor) (*GraphState, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	ext, err := extractor.Extract(ctx, st.Text)
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}
	st.Extraction = ext
	return st, nil
}

// MergeSlots folds the extraction into the session. Extracted values overwrite
// prior values for the same slot name; program and discipline mentions go
// through the shared normalizers.
func MergeSlots(st *GraphState) (*GraphState, error) {
	if st == nil || st.Session == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	st.Session.Intent = st.Extraction.Intent
	for name, value := range st.Extraction.Slots {
		st.Session.SetSlot(name, NormalizeSlot(name, value))
	}
	return st, nil
}

// NormalizeSlot applies the per-slot normalization policy. Values that do not
// normalize are stored as they arrived; slot validation beyond this is
// deliberately not imposed.
func NormalizeSlot(name string, value any) any {
	switch name {
	case nlux.SlotCurso:
		if s, ok := value.(string); ok {
			if norm := nlux.NormalizeProgram(s); norm != "" {
				return norm
			}
		}
	case nlux.SlotDisciplina:
		if norm := nlux.NormalizeDisciplines(value); len(norm) > 0 {
			return norm
		}
	case nlux.SlotNumeroAluno:
		if norm := nlux.NormalizeStudentID(value); norm != "" {
			return norm
		}
	}
	return value
}

// Evaluate runs the required-slot check for the session's intent and decides
// the turn's outcome: ask for the first missing slot, dispatch the downstream
// query, or fail an unrecognized intent.
func Evaluate(st *GraphState, deps Deps) (*GraphState, error) {
	if st == nil || st.Session == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	sess := st.Session
	required, ok := RequiredSlots[sess.Intent]
	if !ok {
		st.Outbound = append(st.Outbound, contractx.Envelope{
			Performative: contractx.PerformativeFailure,
			Sender:       deps.Addresses.Assistant,
			To:           st.Requester.String(),
			Thread:       st.Thread,
			Body: contractx.ErrorReply{
				Erro: contractx.ErroIntencaoNaoEntendi,
			},
		})
		st.CloseSession = true
		return st, nil
	}

	for _, slot := range required {
		if !sess.HasSlot(slot) {
			sess.Awaiting = slot
			st.Outbound = append(st.Outbound, contractx.Envelope{
				Performative: contractx.PerformativeQueryRef,
				Sender:       deps.Addresses.Assistant,
				To:           st.Requester.String(),
				Thread:       st.Thread,
				Body: contractx.Ask{
					Slot:   slot,
					Prompt: "Por favor, indique: " + slot,
				},
			})
			return st, nil
		}
	}
	sess.Awaiting = ""

	switch sess.Intent {
	case statex.IntentInscricao:
		sess.Pending = statex.ContinuationEnrollment
		st.Outbound = append(st.Outbound, debtQuery(st, deps))
	case statex.IntentPagamentos:
		sess.Pending = statex.ContinuationPayment
		st.Outbound = append(st.Outbound, debtQuery(st, deps))
	case statex.IntentHorarios:
		st.Outbound = append(st.Outbound, scheduleForward(st, deps))
	}
	return st, nil
}

// Finalize collapses the pipeline state into the turn output.
func Finalize(st *GraphState) (GraphOutput, error) {
	if st == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	return GraphOutput{
		Outbound:     st.Outbound,
		CloseSession: st.CloseSession,
	}, nil
}

func debtQuery(st *GraphState, deps Deps) contractx.Envelope {
	return contractx.Envelope{
		Performative: contractx.PerformativeQueryIf,
		Sender:       deps.Addresses.Assistant,
		To:           deps.Addresses.Financeiro,
		Thread:       threadOf(st, deps),
		Body: contractx.DebtQuery{
			Acao:        contractx.ActionHasDebt,
			EstudanteID: st.Session.SlotString(nlux.SlotNumeroAluno),
			ToUser:      st.Requester.String(),
		},
	}
}

// ScheduleForward builds the check_schedule request for a session whose
// timetable slots are complete, tagged so the reply routes back.
func ScheduleForward(sess *statex.Session, thread string, deps Deps) contractx.Envelope {
	return contractx.Envelope{
		Performative: contractx.PerformativeRequest,
		Sender:       deps.Addresses.Assistant,
		To:           deps.Addresses.Horarios,
		Thread:       thread,
		Body: contractx.ScheduleRequest{
			Acao:        contractx.ActionCheckSchedule,
			Curso:       sess.SlotString(nlux.SlotCurso),
			Disciplinas: sess.SlotStrings(nlux.SlotDisciplina),
			ToUser:      sess.Requester.String(),
		},
	}
}

func scheduleForward(st *GraphState, deps Deps) contractx.Envelope {
	return ScheduleForward(st.Session, threadOf(st, deps), deps)
}

func threadOf(st *GraphState, deps Deps) string {
	if st.Thread != "" {
		return st.Thread
	}
	if deps.NewThread != nil {
		st.Thread = deps.NewThread()
	}
	return st.Thread
}
