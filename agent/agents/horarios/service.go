// Package horarios owns the schedule engine. It answers timetable requests
// over the bus: validating a set of section picks, searching for a feasible
// combination, and proposing alternatives.
package horarios

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	catalogx "github.com/mRafaelSilva/Projeto-ASM/agent/catalog"
	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	schedulex "github.com/mRafaelSilva/Projeto-ASM/agent/schedule"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
	busx "github.com/mRafaelSilva/Projeto-ASM/pkg/bus"
)

// SupportedActions is what this agent answers, in the order advertised on an
// unknown-action reply.
var SupportedActions = []string{
	contractx.ActionCheckSchedule,
	contractx.ActionFindFeasible,
	contractx.ActionSuggestAlternatives,
}

type Config struct {
	Address string
}

type Service struct {
	cat    *catalogx.Catalog
	engine *schedulex.Engine
	bus    busx.Bus
	addr   string
	logger zerolog.Logger
}

func New(cat *catalogx.Catalog, engine *schedulex.Engine, b busx.Bus, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if engine == nil {
		return nil, errors.New("schedule engine is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}

	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		addr = "horarios"
	}

	return &Service{
		cat:    cat,
		engine: engine,
		bus:    b,
		addr:   addr,
		logger: logger.With().Str("agent", "horarios").Logger(),
	}, nil
}

func (s *Service) Address() string { return s.addr }

func (s *Service) Run(ctx context.Context) error {
	inbox, unsubscribe, err := s.bus.Subscribe(s.addr)
	if err != nil {
		return err
	}
	defer unsubscribe()

	s.logger.Info().Str("address", s.addr).Msg("horarios active")

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
					Msg("handle envelope")
			}
		}
	}
}

// HandleEnvelope answers one schedule request. Every malformed or unknown
// request gets a typed reply; nothing here is fatal.
func (s *Service) HandleEnvelope(ctx context.Context, env contractx.Envelope) error {
	req, ok := env.Body.(contractx.ScheduleRequest)
	if !ok {
		s.logger.Debug().
			Str("sender", env.Sender).
			Str("performative", string(env.Performative)).
			Msg("dropping non-schedule envelope")
		return nil
	}

	// Replies always go to the bare sender address, never the resource.
	replyTo := statex.NewRequesterID(env.Sender).String()

	performative, body := s.Answer(req)
	return s.bus.Publish(ctx, contractx.Envelope{
		Performative: performative,
		Sender:       s.addr,
		To:           replyTo,
		Thread:       env.Thread,
		Body:         body,
	})
}

// Answer computes the reply for one request without touching the bus.
func (s *Service) Answer(req contractx.ScheduleRequest) (contractx.Performative, contractx.Body) {
	if req.Acao == "" || req.Curso == "" || len(req.Disciplinas) == 0 {
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro:     contractx.ErroCamposInvalidos,
			Esperado: expectedShape(),
			ToUser:   req.ToUser,
		}
	}

	if !s.cat.HasProgram(req.Curso) {
		return contractx.PerformativeRefuse, contractx.ErrorReply{
			Erro:   contractx.ErroCursoDesconhecido,
			Curso:  req.Curso,
			ToUser: req.ToUser,
		}
	}

	switch req.Acao {
	case contractx.ActionCheckSchedule:
		return contractx.PerformativeInform, s.checkSchedule(req)
	case contractx.ActionFindFeasible:
		return contractx.PerformativeInform, s.findFeasible(req)
	case contractx.ActionSuggestAlternatives:
		reply := s.findFeasible(req)
		reply.Acao = contractx.ActionSuggestAlternatives
		if reply.OK {
			return contractx.PerformativePropose, reply
		}
		return contractx.PerformativeInform, reply
	default:
		return contractx.PerformativeNotUnderstood, contractx.ErrorReply{
			Erro:            contractx.ErroAcaoDesconhecida,
			Acao:            req.Acao,
			AcoesSuportadas: SupportedActions,
			ToUser:          req.ToUser,
		}
	}
}

func (s *Service) checkSchedule(req contractx.ScheduleRequest) contractx.ScheduleReply {
	var choices []schedulex.Choice
	if len(req.Escolhas) == 0 {
		choices = s.engine.DefaultChoice(req.Curso, req.Disciplinas)
	} else {
		choices = schedulex.OrderedChoices(req.Disciplinas, req.Escolhas)
	}

	items := s.engine.ResolveItems(req.Curso, choices)
	conflicts := s.engine.DetectConflicts(items)
	ok := schedulex.Feasible(conflicts)

	reply := contractx.ScheduleReply{
		OK:          ok,
		Acao:        contractx.ActionCheckSchedule,
		Curso:       req.Curso,
		Disciplinas: req.Disciplinas,
		Escolhas:    schedulex.ChoicesToMap(choices),
		Conflitos:   conflicts,
		Detalhes:    items,
		ToUser:      req.ToUser,
	}

	if !ok {
		ok2, best, conflicts2 := s.engine.FindFeasible(req.Curso, req.Disciplinas)
		reply.Sugestao = &contractx.Suggestion{
			OK:        ok2,
			Escolhas:  schedulex.ChoicesToMap(best),
			Conflitos: conflicts2,
		}
	}
	return reply
}

func (s *Service) findFeasible(req contractx.ScheduleRequest) contractx.ScheduleReply {
	ok, best, conflicts := s.engine.FindFeasible(req.Curso, req.Disciplinas)
	return contractx.ScheduleReply{
		OK:          ok,
		Acao:        contractx.ActionFindFeasible,
		Curso:       req.Curso,
		Disciplinas: req.Disciplinas,
		Escolhas:    schedulex.ChoicesToMap(best),
		Conflitos:   conflicts,
		ToUser:      req.ToUser,
	}
}

// expectedShape documents the request contract on a malformed-request failure.
func expectedShape() map[string]any {
	return map[string]any{
		"acao":        strings.Join(SupportedActions, "|"),
		"curso":       "L-EI",
		"disciplinas": []string{"SO1", "PF"},
		"escolhas":    map[string]string{"SO1": "T1"},
		"to_user":     "user@localhost",
	}
}
