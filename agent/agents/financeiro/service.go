// Package financeiro answers debt queries and settles debt payments against
// the finance ledger.
package financeiro

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	ledgerx "github.com/mRafaelSilva/Projeto-ASM/agent/ledger"
	nlux "github.com/mRafaelSilva/Projeto-ASM/agent/nlu"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
	busx "github.com/mRafaelSilva/Projeto-ASM/pkg/bus"
)

// Debt verdicts carried in DebtReply.Debt.
const (
	DebtYes     = "yes"
	DebtNo      = "no"
	DebtUnknown = "unknown"
)

// Reply reasons.
const (
	MotivoEstudanteNaoEncontrado = "estudante_nao_encontrado"
	MotivoIsentoTaxas            = "isento_taxas"
)

// Error codes for malformed payment requests.
const (
	ErroEstudanteInvalido = "estudante_id_invalido"
	ErroValorInvalido     = "valor_invalido"
	ErroValorNaoPositivo  = "valor_deve_ser_positivo"
)

const paymentKind = "pagamento_divida"

type Config struct {
	Address string
}

type Service struct {
	ledger ledgerx.Store
	bus    busx.Bus
	addr   string
	logger zerolog.Logger
	now    func() time.Time
}

func New(ledger ledgerx.Store, b busx.Bus, cfg Config, logger zerolog.Logger) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger store is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}

	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		addr = "financeiro"
	}

	return &Service{
		ledger: ledger,
		bus:    b,
		addr:   addr,
		logger: logger.With().Str("agent", "financeiro").Logger(),
		now:    time.Now,
	}, nil
}

func (s *Service) Address() string { return s.addr }

func (s *Service) Run(ctx context.Context) error {
	inbox, unsubscribe, err := s.bus.Subscribe(s.addr)
	if err != nil {
		return err
	}
	defer unsubscribe()

	s.logger.Info().Str("address", s.addr).Msg("financeiro active")

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

func (s *Service) HandleEnvelope(ctx context.Context, env contractx.Envelope) error {
	replyTo := statex.NewRequesterID(env.Sender).String()

	switch body := env.Body.(type) {
	case contractx.DebtQuery:
		performative, reply := s.AnswerDebtQuery(ctx, body)
		return s.reply(ctx, replyTo, env.Thread, performative, reply)
	case contractx.PaymentRequest:
		performative, reply := s.AnswerPayment(ctx, body)
		return s.reply(ctx, replyTo, env.Thread, performative, reply)
	default:
		s.logger.Debug().
			Str("sender", env.Sender).
			Str("performative", string(env.Performative)).
			Msg("dropping unhandled envelope")
		return nil
	}
}

// AnswerDebtQuery computes the has_debt reply. A student absent from the
// ledger is an "unknown" verdict, not an error.
func (s *Service) AnswerDebtQuery(ctx context.Context, req contractx.DebtQuery) (contractx.Performative, contractx.Body) {
	if req.Acao != "" && req.Acao != contractx.ActionHasDebt {
		return contractx.PerformativeNotUnderstood, contractx.ErrorReply{
			Erro:            contractx.ErroAcaoDesconhecida,
			Acao:            req.Acao,
			AcoesSuportadas: []string{contractx.ActionHasDebt, contractx.ActionPayDebt},
			ToUser:          req.ToUser,
		}
	}

	id, ok := parseStudentID(req.EstudanteID)
	if !ok {
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro:   ErroEstudanteInvalido,
			ToUser: req.ToUser,
		}
	}

	rec, err := s.ledger.Get(ctx, id)
	if errors.Is(err, ledgerx.ErrRecordNotFound) {
		return contractx.PerformativeInform, contractx.DebtReply{
			Debt:        DebtUnknown,
			Motivo:      MotivoEstudanteNaoEncontrado,
			EstudanteID: req.EstudanteID,
			ToUser:      req.ToUser,
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Int("estudante_id", id).Msg("ledger lookup")
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro:   contractx.ErroEstadoFinanceiro,
			ToUser: req.ToUser,
		}
	}

	info := rec.Debt()
	verdict := DebtNo
	if info.TemDivida {
		verdict = DebtYes
	}
	return contractx.PerformativeInform, contractx.DebtReply{
		Debt:        verdict,
		Valor:       info.ValorDivida,
		Saldo:       info.Saldo,
		IsentoTaxas: info.IsentoTaxas,
		ToUser:      req.ToUser,
	}
}

// AnswerPayment settles one pay_debt request. Paying increases the balance,
// so a 100 payment against -250 leaves -150.
func (s *Service) AnswerPayment(ctx context.Context, req contractx.PaymentRequest) (contractx.Performative, contractx.Body) {
	if req.Acao != contractx.ActionPayDebt {
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro:     contractx.ErroAcaoDesconhecida,
			Acao:     req.Acao,
			Esperado: contractx.ActionPayDebt,
		}
	}

	id, ok := parseStudentID(req.EstudanteID)
	if !ok {
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro:     ErroEstudanteInvalido,
			Esperado: []string{"acao", "estudante_id", "valor"},
		}
	}
	if math.IsNaN(req.Valor) || math.IsInf(req.Valor, 0) {
		return contractx.PerformativeFailure, contractx.ErrorReply{Erro: ErroValorInvalido}
	}
	if req.Valor <= 0 {
		return contractx.PerformativeFailure, contractx.ErrorReply{Erro: ErroValorNaoPositivo}
	}

	rec, err := s.ledger.Get(ctx, id)
	if errors.Is(err, ledgerx.ErrRecordNotFound) {
		return contractx.PerformativeRefuse, contractx.ErrorReply{
			Erro:     MotivoEstudanteNaoEncontrado,
			Esperado: req.EstudanteID,
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Int("estudante_id", id).Msg("ledger lookup")
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro: contractx.ErroEstadoFinanceiro,
		}
	}

	before := rec.Debt()
	if before.IsentoTaxas {
		return contractx.PerformativeInform, contractx.PaymentReply{
			Paid:       false,
			Motivo:     MotivoIsentoTaxas,
			SaldoAtual: before.Saldo,
		}
	}

	rec.Saldo = math.Round((rec.Saldo+req.Valor)*100) / 100
	rec.HistoricoPagamentos = append(rec.HistoricoPagamentos, ledgerx.Payment{
		Data:  s.now().Format(time.RFC3339),
		Valor: req.Valor,
		Tipo:  paymentKind,
	})

	if err := s.ledger.Save(ctx, rec); err != nil {
		s.logger.Error().Err(err).Int("estudante_id", id).Msg("ledger save")
		return contractx.PerformativeFailure, contractx.ErrorReply{
			Erro: contractx.ErroEstadoFinanceiro,
		}
	}

	after := rec.Debt()
	return contractx.PerformativeInform, contractx.PaymentReply{
		Paid:              true,
		SaldoNovo:         rec.Saldo,
		DebtCleared:       !after.TemDivida,
		DebtValorRestante: after.ValorDivida,
	}
}

func (s *Service) reply(ctx context.Context, to, thread string, performative contractx.Performative, body contractx.Body) error {
	return s.bus.Publish(ctx, contractx.Envelope{
		Performative: performative,
		Sender:       s.addr,
		To:           to,
		Thread:       thread,
		Body:         body,
	})
}

func parseStudentID(raw string) (int, bool) {
	normalized := nlux.NormalizeStudentID(raw)
	if normalized == "" {
		return 0, false
	}
	id, err := strconv.Atoi(normalized)
	if err != nil {
		return 0, false
	}
	return id, true
}
