package horarios

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	catalogx "github.com/mRafaelSilva/Projeto-ASM/agent/catalog"
	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	schedulex "github.com/mRafaelSilva/Projeto-ASM/agent/schedule"
	busx "github.com/mRafaelSilva/Projeto-ASM/pkg/bus"
)

type fakeBus struct {
	mu        sync.Mutex
	published []contractx.Envelope
}

func (f *fakeBus) Publish(_ context.Context, env contractx.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
	return nil
}

func (f *fakeBus) Subscribe(addr string) (<-chan contractx.Envelope, func(), error) {
	ch := make(chan contractx.Envelope)
	return ch, func() { close(ch) }, nil
}

var _ busx.Bus = (*fakeBus)(nil)

func testCatalog() *catalogx.Catalog {
	return catalogx.New(map[string][]catalogx.Discipline{
		"L-EI": {
			{
				ID: "SO1",
				Turnos: []catalogx.Section{
					{ID: "T1", Dia: "segunda", Inicio: "09:00", Fim: "10:30", VagasTotais: 30, VagasOcupadas: 30},
					{ID: "T2", Dia: "terca", Inicio: "11:00", Fim: "12:30", VagasTotais: 30, VagasOcupadas: 12},
				},
			},
			{
				ID: "PF",
				Turnos: []catalogx.Section{
					{ID: "T1", Dia: "segunda", Inicio: "10:30", Fim: "11:40", VagasTotais: 25, VagasOcupadas: 10},
				},
			},
		},
	})
}

func newTestService(t *testing.T) (*Service, *fakeBus) {
	t.Helper()

	cat := testCatalog()
	bus := &fakeBus{}
	s, err := New(cat, schedulex.NewEngine(cat), bus, Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, bus
}

func TestAnswerMalformedRequest(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	cases := []contractx.ScheduleRequest{
		{Curso: "L-EI", Disciplinas: []string{"SO1"}},                    // no action
		{Acao: contractx.ActionCheckSchedule, Disciplinas: []string{"SO1"}}, // no program
		{Acao: contractx.ActionCheckSchedule, Curso: "L-EI"},             // no disciplines
	}
	for _, req := range cases {
		req.ToUser = "user@localhost"
		performative, body := s.Answer(req)
		if performative != contractx.PerformativeFailure {
			t.Fatalf("performative = %q for %+v", performative, req)
		}
		reply := body.(contractx.ErrorReply)
		if reply.Erro != contractx.ErroCamposInvalidos {
			t.Fatalf("erro = %q", reply.Erro)
		}
		if reply.Esperado == nil {
			t.Fatal("expected shape missing from failure")
		}
		if reply.ToUser != "user@localhost" {
			t.Fatalf("to_user not echoed: %+v", reply)
		}
	}
}

func TestAnswerUnknownProgram(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionCheckSchedule,
		Curso:       "L-X",
		Disciplinas: []string{"SO1"},
	})
	if performative != contractx.PerformativeRefuse {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.ErrorReply)
	if reply.Erro != contractx.ErroCursoDesconhecido || reply.Curso != "L-X" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestAnswerUnknownAction(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        "optimize",
		Curso:       "L-EI",
		Disciplinas: []string{"SO1"},
	})
	if performative != contractx.PerformativeNotUnderstood {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.ErrorReply)
	if reply.Erro != contractx.ErroAcaoDesconhecida || reply.Acao != "optimize" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(reply.AcoesSuportadas) != 3 {
		t.Fatalf("supported actions = %v", reply.AcoesSuportadas)
	}
}

func TestCheckScheduleWithDefaultChoices(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionCheckSchedule,
		Curso:       "L-EI",
		Disciplinas: []string{"SO1", "PF"},
		ToUser:      "user@localhost",
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.ScheduleReply)
	if !reply.OK {
		t.Fatalf("expected feasible default schedule, got %+v", reply.Conflitos)
	}
	// Omitted escolhas come back fully populated, one item per discipline.
	if len(reply.Detalhes) != 2 {
		t.Fatalf("detalhes = %d items, want 2", len(reply.Detalhes))
	}
	if reply.Escolhas["SO1"] != "T2" {
		t.Fatalf("default choice should skip full T1: %+v", reply.Escolhas)
	}
	if reply.Sugestao != nil {
		t.Fatalf("sugestao must be absent when ok: %+v", reply.Sugestao)
	}
	if reply.ToUser != "user@localhost" {
		t.Fatalf("to_user not echoed: %+v", reply)
	}
}

func TestCheckScheduleConflictAttachesSuggestion(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	// SO1 T1 is full and also overlaps nothing; it forces !ok via capacity.
	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionCheckSchedule,
		Curso:       "L-EI",
		Disciplinas: []string{"SO1", "PF"},
		Escolhas:    map[string]string{"SO1": "T1", "PF": "T1"},
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.ScheduleReply)
	if reply.OK {
		t.Fatal("expected capacity conflict")
	}
	if len(reply.Conflitos) == 0 {
		t.Fatal("expected conflicts listed")
	}
	if reply.Sugestao == nil || !reply.Sugestao.OK {
		t.Fatalf("expected feasible suggestion, got %+v", reply.Sugestao)
	}
	if reply.Sugestao.Escolhas["SO1"] != "T2" {
		t.Fatalf("suggestion should route around the full section: %+v", reply.Sugestao.Escolhas)
	}
}

func TestFindFeasibleAction(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionFindFeasible,
		Curso:       "L-EI",
		Disciplinas: []string{"SO1", "PF"},
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.ScheduleReply)
	if !reply.OK || reply.Acao != contractx.ActionFindFeasible {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Escolhas["SO1"] != "T2" {
		t.Fatalf("unexpected escolhas: %+v", reply.Escolhas)
	}
}

func TestSuggestAlternativesPerformative(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	// Feasible: propose.
	performative, body := s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionSuggestAlternatives,
		Curso:       "L-EI",
		Disciplinas: []string{"SO1", "PF"},
	})
	if performative != contractx.PerformativePropose {
		t.Fatalf("performative = %q, want propose", performative)
	}
	if reply := body.(contractx.ScheduleReply); reply.Acao != contractx.ActionSuggestAlternatives {
		t.Fatalf("acao = %q", reply.Acao)
	}

	// Infeasible (unknown discipline): inform.
	performative, body = s.Answer(contractx.ScheduleRequest{
		Acao:        contractx.ActionSuggestAlternatives,
		Curso:       "L-EI",
		Disciplinas: []string{"NOPE"},
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q, want inform", performative)
	}
	if reply := body.(contractx.ScheduleReply); reply.OK {
		t.Fatal("expected infeasible")
	}
}

func TestHandleEnvelopeRepliesToBareSender(t *testing.T) {
	t.Parallel()

	s, bus := newTestService(t)

	err := s.HandleEnvelope(context.Background(), contractx.Envelope{
		Performative: contractx.PerformativeRequest,
		Sender:       "assistente/worker-1",
		To:           "horarios",
		Thread:       "th-9",
		Body: contractx.ScheduleRequest{
			Acao:        contractx.ActionCheckSchedule,
			Curso:       "L-EI",
			Disciplinas: []string{"SO1"},
		},
	})
	if err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 1 {
		t.Fatalf("published %d envelopes", len(bus.published))
	}
	env := bus.published[0]
	if env.To != "assistente" {
		t.Fatalf("reply went to %q, want bare sender", env.To)
	}
	if env.Thread != "th-9" {
		t.Fatalf("thread not echoed: %q", env.Thread)
	}
}

func TestHandleEnvelopeDropsNonScheduleBodies(t *testing.T) {
	t.Parallel()

	s, bus := newTestService(t)

	err := s.HandleEnvelope(context.Background(), contractx.Envelope{
		Performative: contractx.PerformativeInform,
		Sender:       "someone",
		Body:         contractx.TextRequest{Texto: "hello"},
	})
	if err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 0 {
		t.Fatal("non-schedule body must be dropped")
	}
}
