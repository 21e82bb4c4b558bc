// Package assistant is the session orchestrator. It consumes requester text
// and answers, drives the slot-collection state machine, defers to the finance
// agent for debt checks and to the horarios agent for timetable work, and
// folds their replies back to the requester.
package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	nlux "github.com/mRafaelSilva/Projeto-ASM/agent/nlu"
	nodex "github.com/mRafaelSilva/Projeto-ASM/agent/nodes/assistant"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
	busx "github.com/mRafaelSilva/Projeto-ASM/pkg/bus"
)

var (
	ErrInvalidMessage   = nodex.ErrInvalidMessage
	ErrInvalidRequester = nodex.ErrInvalidRequester
)

type Config struct {
	Address           string
	HorariosAddress   string
	FinanceiroAddress string
}

type Service struct {
	store     statex.Store
	extractor nlux.Extractor
	bus       busx.Bus
	deps      nodex.Deps
	logger    zerolog.Logger

	turnRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
}

func New(
	store statex.Store,
	extractor nlux.Extractor,
	b busx.Bus,
	cfg Config,
	logger zerolog.Logger,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}

	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		addr = "assistente"
	}
	horarios := strings.TrimSpace(cfg.HorariosAddress)
	if horarios == "" {
		horarios = "horarios"
	}
	financeiro := strings.TrimSpace(cfg.FinanceiroAddress)
	if financeiro == "" {
		financeiro = "financeiro"
	}

	s := &Service{
		store:     store,
		extractor: extractor,
		bus:       b,
		deps: nodex.Deps{
			Extractor: extractor,
			Addresses: nodex.Addresses{
				Assistant:  addr,
				Horarios:   horarios,
				Financeiro: financeiro,
			},
			NewThread: uuid.NewString,
		},
		logger: logger.With().Str("agent", "assistente").Logger(),
	}

	turnRunner, err := s.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.turnRunner = turnRunner

	return s, nil
}

func (s *Service) Address() string { return s.deps.Addresses.Assistant }

// Run consumes the assistant's inbound channel until the context ends.
// Handler errors are logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	inbox, unsubscribe, err := s.bus.Subscribe(s.Address())
	if err != nil {
		return err
	}
	defer unsubscribe()

	s.logger.Info().Str("address", s.Address()).Msg("assistant active")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-inbox:
			if !ok {
				return nil
			}
			if err := s.HandleEnvelope(ctx, env); err != nil {
				s.logger.Error().Err(err).
					Str("sender", env.Sender).
					Str("performative", string(env.Performative)).
					Msg("handle envelope")
			}
		}
	}
}

// HandleEnvelope dispatches one inbound message. Bodies that fit no handler
// are dropped with a log line only; replying to non-conforming senders invites
// reply storms.
func (s *Service) HandleEnvelope(ctx context.Context, env contractx.Envelope) error {
	switch body := env.Body.(type) {
	case contractx.TextRequest:
		return s.handleText(ctx, statex.NewRequesterID(env.Sender), env.Thread, body.Texto)
	case contractx.Answer:
		return s.handleAnswer(ctx, statex.NewRequesterID(env.Sender), env.Thread, body)
	case contractx.DebtReply:
		return s.handleDebtReply(ctx, env.Thread, body)
	case contractx.ScheduleReply:
		return s.handleScheduleReply(ctx, env.Thread, body)
	default:
		s.logger.Debug().
			Str("sender", env.Sender).
			Str("performative", string(env.Performative)).
			Msg("dropping unhandled envelope")
		return nil
	}
}

// handleText runs the full turn pipeline under the requester's session lock
// and publishes the resulting messages once the lock is released.
func (s *Service) handleText(ctx context.Context, requester statex.RequesterID, thread, text string) error {
	if requester.Empty() {
		return ErrInvalidRequester
	}

	var out nodex.GraphOutput
	err := s.store.Update(ctx, requester, func(sess *statex.Session) error {
		o, err := s.turnRunner.Invoke(ctx, nodex.GraphInput{
			Requester: requester,
			Text:      text,
			Thread:    thread,
			Session:   sess,
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return err
	}

	return s.deliver(ctx, requester, out)
}

// handleAnswer stores the value under the awaited slot and re-runs the
// required-slot evaluation. Answers with nothing awaited are stale and ignored.
func (s *Service) handleAnswer(ctx context.Context, requester statex.RequesterID, thread string, body contractx.Answer) error {
	if requester.Empty() {
		return ErrInvalidRequester
	}

	if _, found, err := s.store.Get(ctx, requester); err != nil {
		return err
	} else if !found {
		s.logger.Debug().Str("requester", requester.String()).Msg("answer without session, ignoring")
		return nil
	}

	var (
		out   nodex.GraphOutput
		stale bool
	)
	err := s.store.Update(ctx, requester, func(sess *statex.Session) error {
		if sess.Awaiting == "" {
			stale = true
			return nil
		}

		slot := sess.Awaiting
		sess.SetSlot(slot, nodex.NormalizeSlot(slot, body.Value))
		sess.Awaiting = ""

		st := &nodex.GraphState{
			Requester: requester,
			Thread:    thread,
			Session:   sess,
		}
		st, err := nodex.Evaluate(st, s.deps)
		if err != nil {
			return err
		}
		o, err := nodex.Finalize(st)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return err
	}
	if stale {
		s.logger.Debug().Str("requester", requester.String()).Msg("no slot awaited, ignoring answer")
		return nil
	}

	return s.deliver(ctx, requester, out)
}

// handleDebtReply resumes the continuation recorded for the tagged requester.
func (s *Service) handleDebtReply(ctx context.Context, thread string, body contractx.DebtReply) error {
	requester := statex.NewRequesterID(body.ToUser)
	if requester.Empty() {
		s.logger.Warn().Msg("debt reply without to_user tag, dropping")
		return nil
	}

	if _, found, err := s.store.Get(ctx, requester); err != nil {
		return err
	} else if !found {
		s.logger.Debug().Str("requester", requester.String()).Msg("debt reply without session, ignoring")
		return nil
	}

	var (
		out   nodex.GraphOutput
		stale bool
	)
	err := s.store.Update(ctx, requester, func(sess *statex.Session) error {
		if sess.Pending == statex.ContinuationNone {
			stale = true
			return nil
		}

		pending := sess.Pending
		sess.Pending = statex.ContinuationNone

		switch pending {
		case statex.ContinuationEnrollment:
			out = s.resumeEnrollment(sess, requester, thread, body)
		case statex.ContinuationPayment:
			out = nodex.GraphOutput{
				Outbound: []contractx.Envelope{{
					Performative: contractx.PerformativeInform,
					Sender:       s.Address(),
					To:           requester.String(),
					Thread:       thread,
					Body: contractx.DebtStatus{
						OK:          true,
						Debt:        body.Debt,
						Valor:       body.Valor,
						Saldo:       body.Saldo,
						IsentoTaxas: body.IsentoTaxas,
					},
				}},
				CloseSession: true,
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if stale {
		s.logger.Debug().Str("requester", requester.String()).Msg("no pending continuation, ignoring debt reply")
		return nil
	}

	return s.deliver(ctx, requester, out)
}

func (s *Service) resumeEnrollment(
	sess *statex.Session,
	requester statex.RequesterID,
	thread string,
	body contractx.DebtReply,
) nodex.GraphOutput {
	switch body.Debt {
	case "yes":
		valor, saldo := body.Valor, body.Saldo
		return nodex.GraphOutput{
			Outbound: []contractx.Envelope{{
				Performative: contractx.PerformativeFailure,
				Sender:       s.Address(),
				To:           requester.String(),
				Thread:       thread,
				Body: contractx.ErrorReply{
					Erro:        contractx.ErroBloqueadoPorDivida,
					ValorDivida: &valor,
					Saldo:       &saldo,
				},
			}},
			CloseSession: true,
		}
	case "no":
		return nodex.GraphOutput{
			Outbound: []contractx.Envelope{
				nodex.ScheduleForward(sess, thread, s.deps),
			},
		}
	default:
		return nodex.GraphOutput{
			Outbound: []contractx.Envelope{{
				Performative: contractx.PerformativeFailure,
				Sender:       s.Address(),
				To:           requester.String(),
				Thread:       thread,
				Body: contractx.ErrorReply{
					Erro: contractx.ErroEstadoFinanceiro,
				},
			}},
			CloseSession: true,
		}
	}
}

// handleScheduleReply forwards the horarios payload verbatim to the tagged
// requester. Replies without the tag are dropped: guessing an open session
// would only ever hide a routing bug.
func (s *Service) handleScheduleReply(ctx context.Context, thread string, body contractx.ScheduleReply) error {
	requester := statex.NewRequesterID(body.ToUser)
	if requester.Empty() {
		s.logger.Warn().Str("acao", body.Acao).Msg("schedule reply without to_user tag, dropping")
		return nil
	}

	env := contractx.Envelope{
		Performative: contractx.PerformativeInform,
		Sender:       s.Address(),
		To:           requester.String(),
		Thread:       thread,
		Body:         body,
	}
	if err := s.bus.Publish(ctx, env); err != nil {
		return err
	}

	// Normal completion: nothing further awaited or pending for this session.
	sess, found, err := s.store.Get(ctx, requester)
	if err != nil {
		return err
	}
	if found && sess.Awaiting == "" && sess.Pending == statex.ContinuationNone {
		return s.store.Remove(ctx, requester)
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, requester statex.RequesterID, out nodex.GraphOutput) error {
	for _, env := range out.Outbound {
		if err := s.bus.Publish(ctx, env); err != nil {
			return err
		}
	}
	if out.CloseSession {
		return s.store.Remove(ctx, requester)
	}
	return nil
}
