package financeiro

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	ledgerx "github.com/mRafaelSilva/Projeto-ASM/agent/ledger"
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

func newTestService(t *testing.T) (*Service, *ledgerx.FileStore, *fakeBus) {
	t.Helper()

	store, err := ledgerx.NewFileStore(filepath.Join(t.TempDir(), "financeiro.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	seed := []*ledgerx.Record{
		{EstudanteID: 202301, Nome: "Rita Gomes", Saldo: -250},
		{EstudanteID: 202302, Nome: "Joao Martins", Saldo: 0},
		{EstudanteID: 202303, Nome: "Sofia Carvalho", Saldo: -120.5, IsentoTaxas: true},
	}
	for _, rec := range seed {
		if err := store.Save(context.Background(), rec); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	bus := &fakeBus{}
	s, err := New(store, bus, Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, store, bus
}

func TestDebtQueryVerdicts(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		id     string
		debt   string
		valor  float64
		isento bool
	}{
		{"202301", "yes", 250, false},
		{"202302", "no", 0, false},
		{"202303", "no", 120.5, true}, // exempt: negative balance is not debt
	}
	for _, c := range cases {
		performative, body := s.AnswerDebtQuery(ctx, contractx.DebtQuery{
			Acao:        contractx.ActionHasDebt,
			EstudanteID: c.id,
			ToUser:      "user@localhost",
		})
		if performative != contractx.PerformativeInform {
			t.Fatalf("%s: performative = %q", c.id, performative)
		}
		reply := body.(contractx.DebtReply)
		if reply.Debt != c.debt || reply.Valor != c.valor || reply.IsentoTaxas != c.isento {
			t.Fatalf("%s: unexpected reply %+v", c.id, reply)
		}
		if reply.ToUser != "user@localhost" {
			t.Fatalf("%s: to_user not echoed", c.id)
		}
	}
}

func TestDebtQueryUnknownStudent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)

	performative, body := s.AnswerDebtQuery(context.Background(), contractx.DebtQuery{
		Acao:        contractx.ActionHasDebt,
		EstudanteID: "999999",
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.DebtReply)
	if reply.Debt != DebtUnknown || reply.Motivo != MotivoEstudanteNaoEncontrado {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestDebtQueryInvalidStudentID(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)

	performative, body := s.AnswerDebtQuery(context.Background(), contractx.DebtQuery{
		Acao:        contractx.ActionHasDebt,
		EstudanteID: "sem numero",
	})
	if performative != contractx.PerformativeFailure {
		t.Fatalf("performative = %q", performative)
	}
	if reply := body.(contractx.ErrorReply); reply.Erro != ErroEstudanteInvalido {
		t.Fatalf("erro = %q", reply.Erro)
	}
}

func TestPaymentReducesDebt(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestService(t)
	ctx := context.Background()

	performative, body := s.AnswerPayment(ctx, contractx.PaymentRequest{
		Acao:        contractx.ActionPayDebt,
		EstudanteID: "202301",
		Valor:       100,
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.PaymentReply)
	if !reply.Paid || reply.SaldoNovo != -150 || reply.DebtCleared {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.DebtValorRestante != 150 {
		t.Fatalf("debt_valor_restante = %v", reply.DebtValorRestante)
	}

	rec, err := store.Get(ctx, 202301)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Saldo != -150 {
		t.Fatalf("saldo not persisted: %v", rec.Saldo)
	}
	if len(rec.HistoricoPagamentos) != 1 || rec.HistoricoPagamentos[0].Valor != 100 {
		t.Fatalf("payment not recorded: %+v", rec.HistoricoPagamentos)
	}
}

func TestPaymentClearsDebt(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)

	_, body := s.AnswerPayment(context.Background(), contractx.PaymentRequest{
		Acao:        contractx.ActionPayDebt,
		EstudanteID: "202301",
		Valor:       250,
	})
	reply := body.(contractx.PaymentReply)
	if !reply.Paid || !reply.DebtCleared || reply.SaldoNovo != 0 || reply.DebtValorRestante != 0 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestPaymentExemptStudent(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestService(t)

	performative, body := s.AnswerPayment(context.Background(), contractx.PaymentRequest{
		Acao:        contractx.ActionPayDebt,
		EstudanteID: "202303",
		Valor:       50,
	})
	if performative != contractx.PerformativeInform {
		t.Fatalf("performative = %q", performative)
	}
	reply := body.(contractx.PaymentReply)
	if reply.Paid || reply.Motivo != MotivoIsentoTaxas || reply.SaldoAtual != -120.5 {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	rec, _ := store.Get(context.Background(), 202303)
	if rec.Saldo != -120.5 {
		t.Fatal("exempt student's balance must not change")
	}
}

func TestPaymentValidation(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  contractx.PaymentRequest
		erro string
	}{
		{"wrong action", contractx.PaymentRequest{Acao: "refund", EstudanteID: "202301", Valor: 10}, contractx.ErroAcaoDesconhecida},
		{"missing id", contractx.PaymentRequest{Acao: contractx.ActionPayDebt, Valor: 10}, ErroEstudanteInvalido},
		{"zero valor", contractx.PaymentRequest{Acao: contractx.ActionPayDebt, EstudanteID: "202301"}, ErroValorNaoPositivo},
		{"negative valor", contractx.PaymentRequest{Acao: contractx.ActionPayDebt, EstudanteID: "202301", Valor: -5}, ErroValorNaoPositivo},
	}
	for _, c := range cases {
		performative, body := s.AnswerPayment(ctx, c.req)
		if performative != contractx.PerformativeFailure {
			t.Fatalf("%s: performative = %q", c.name, performative)
		}
		if reply := body.(contractx.ErrorReply); reply.Erro != c.erro {
			t.Fatalf("%s: erro = %q, want %q", c.name, reply.Erro, c.erro)
		}
	}
}

func TestPaymentUnknownStudentRefused(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t)

	performative, body := s.AnswerPayment(context.Background(), contractx.PaymentRequest{
		Acao:        contractx.ActionPayDebt,
		EstudanteID: "999999",
		Valor:       10,
	})
	if performative != contractx.PerformativeRefuse {
		t.Fatalf("performative = %q", performative)
	}
	if reply := body.(contractx.ErrorReply); reply.Erro != MotivoEstudanteNaoEncontrado {
		t.Fatalf("erro = %q", reply.Erro)
	}
}

func TestHandleEnvelopeRepliesToBareSender(t *testing.T) {
	t.Parallel()

	s, _, bus := newTestService(t)

	err := s.HandleEnvelope(context.Background(), contractx.Envelope{
		Performative: contractx.PerformativeQueryIf,
		Sender:       "assistente/worker-2",
		To:           "financeiro",
		Thread:       "th-3",
		Body: contractx.DebtQuery{
			Acao:        contractx.ActionHasDebt,
			EstudanteID: "202301",
			ToUser:      "user@localhost",
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
	if env.To != "assistente" || env.Thread != "th-3" {
		t.Fatalf("unexpected reply envelope: to=%q thread=%q", env.To, env.Thread)
	}
	if reply := env.Body.(contractx.DebtReply); reply.Debt != "yes" {
		t.Fatalf("unexpected verdict: %+v", reply)
	}
}
