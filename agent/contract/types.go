package contract

import (
	schedulex "github.com/mRafaelSilva/Projeto-ASM/agent/schedule"
)

// Performative labels the communicative act of an envelope, mirroring the
// FIPA-style metadata the agents exchange.
type Performative string

const (
	PerformativeRequest       Performative = "request"
	PerformativeInform        Performative = "inform"
	PerformativeQueryIf       Performative = "query-if"
	PerformativeQueryRef      Performative = "query-ref"
	PerformativePropose       Performative = "propose"
	PerformativeRefuse        Performative = "refuse"
	PerformativeFailure       Performative = "failure"
	PerformativeNotUnderstood Performative = "not-understood"
)

// BodyKind discriminates the closed set of message bodies. Every body carries
// its kind on the wire as a "type" field, so a payload is decoded exactly once
// at the transport boundary into its concrete struct.
type BodyKind string

const (
	BodyTextRequest     BodyKind = "texto"
	BodyAsk             BodyKind = "ask"
	BodyAnswer          BodyKind = "answer"
	BodyDebtQuery       BodyKind = "debt_query"
	BodyDebtReply       BodyKind = "debt_reply"
	BodyDebtStatus      BodyKind = "debt_status"
	BodyPaymentRequest  BodyKind = "payment_request"
	BodyPaymentReply    BodyKind = "payment_reply"
	BodyScheduleRequest BodyKind = "schedule_request"
	BodyScheduleReply   BodyKind = "schedule_reply"
	BodyErrorReply      BodyKind = "error"
)

// Body is the closed union of payloads the agents exchange.
type Body interface {
	Kind() BodyKind
}

// Envelope is the transport-agnostic message wrapper. Sender and To are opaque
// participant addresses; Thread correlates a multi-message conversation.
type Envelope struct {
	Performative Performative `json:"performative"`
	Sender       string       `json:"sender"`
	To           string       `json:"to"`
	Thread       string       `json:"thread,omitempty"`
	Body         Body         `json:"body"`
}

// TextRequest is a requester's free-text request to the assistant.
type TextRequest struct {
	Texto string `json:"texto"`
}

func (TextRequest) Kind() BodyKind { return BodyTextRequest }

// Ask requests one missing slot from the requester.
type Ask struct {
	Slot   string `json:"slot"`
	Prompt string `json:"prompt"`
}

func (Ask) Kind() BodyKind { return BodyAsk }

// Answer carries the requester's value for the slot last asked.
// Value is a scalar string or a list of strings.
type Answer struct {
	Value any `json:"value"`
}

func (Answer) Kind() BodyKind { return BodyAnswer }

// DebtQuery asks the finance agent whether a student has outstanding debt.
type DebtQuery struct {
	Acao        string `json:"acao"`
	EstudanteID string `json:"estudante_id"`
	ToUser      string `json:"to_user,omitempty"`
}

func (DebtQuery) Kind() BodyKind { return BodyDebtQuery }

// DebtReply answers a DebtQuery. Debt is "yes", "no" or "unknown".
type DebtReply struct {
	Debt        string  `json:"debt"`
	Valor       float64 `json:"valor"`
	Saldo       float64 `json:"saldo"`
	IsentoTaxas bool    `json:"isento_taxas"`
	Motivo      string  `json:"motivo,omitempty"`
	EstudanteID string  `json:"estudante_id,omitempty"`
	ToUser      string  `json:"to_user,omitempty"`
}

func (DebtReply) Kind() BodyKind { return BodyDebtReply }

// DebtStatus is the requester-facing success wrapper around a debt lookup.
type DebtStatus struct {
	OK          bool    `json:"ok"`
	Debt        string  `json:"debt"`
	Valor       float64 `json:"valor"`
	Saldo       float64 `json:"saldo"`
	IsentoTaxas bool    `json:"isento_taxas"`
}

func (DebtStatus) Kind() BodyKind { return BodyDebtStatus }

// PaymentRequest settles part of a student's debt.
type PaymentRequest struct {
	Acao        string  `json:"acao"`
	EstudanteID string  `json:"estudante_id"`
	Valor       float64 `json:"valor"`
}

func (PaymentRequest) Kind() BodyKind { return BodyPaymentRequest }

// PaymentReply reports the outcome of a PaymentRequest.
type PaymentReply struct {
	Paid              bool    `json:"paid"`
	SaldoNovo         float64 `json:"saldo_novo,omitempty"`
	SaldoAtual        float64 `json:"saldo_atual,omitempty"`
	DebtCleared       bool    `json:"debt_cleared,omitempty"`
	DebtValorRestante float64 `json:"debt_valor_restante,omitempty"`
	Motivo            string  `json:"motivo,omitempty"`
}

func (PaymentReply) Kind() BodyKind { return BodyPaymentReply }

// Schedule actions supported by the horarios agent.
const (
	ActionCheckSchedule       = "check_schedule"
	ActionFindFeasible        = "find_feasible"
	ActionSuggestAlternatives = "suggest_alternatives"
	ActionHasDebt             = "has_debt"
	ActionPayDebt             = "pay_debt"
)

// ScheduleRequest asks the horarios agent to validate or build a timetable.
type ScheduleRequest struct {
	Acao        string            `json:"acao"`
	Curso       string            `json:"curso"`
	Disciplinas []string          `json:"disciplinas"`
	Escolhas    map[string]string `json:"escolhas,omitempty"`
	ToUser      string            `json:"to_user,omitempty"`
}

func (ScheduleRequest) Kind() BodyKind { return BodyScheduleRequest }

// Suggestion is the feasible-combination proposal attached to a failed check.
type Suggestion struct {
	OK        bool                 `json:"ok"`
	Escolhas  map[string]string    `json:"escolhas"`
	Conflitos []schedulex.Conflict `json:"conflitos"`
}

// ScheduleReply is the horarios agent's answer for any schedule action.
type ScheduleReply struct {
	OK          bool                 `json:"ok"`
	Acao        string               `json:"acao"`
	Curso       string               `json:"curso"`
	Disciplinas []string             `json:"disciplinas"`
	Escolhas    map[string]string    `json:"escolhas"`
	Conflitos   []schedulex.Conflict `json:"conflitos"`
	Detalhes    []schedulex.Item     `json:"detalhes,omitempty"`
	Sugestao    *Suggestion          `json:"sugestao,omitempty"`
	ToUser      string               `json:"to_user,omitempty"`
}

func (ScheduleReply) Kind() BodyKind { return BodyScheduleReply }

// ErrorReply is the structured failure payload. Only Erro is always set; the
// optional fields identify what was rejected.
type ErrorReply struct {
	OK              bool     `json:"ok"`
	Erro            string   `json:"erro"`
	Curso           string   `json:"curso,omitempty"`
	Acao            string   `json:"acao_recebida,omitempty"`
	AcoesSuportadas []string `json:"acoes_suportadas,omitempty"`
	Esperado        any      `json:"esperado,omitempty"`
	ValorDivida     *float64 `json:"valor_divida,omitempty"`
	Saldo           *float64 `json:"saldo,omitempty"`
	ToUser          string   `json:"to_user,omitempty"`
}

func (ErrorReply) Kind() BodyKind { return BodyErrorReply }

// Error codes carried in ErrorReply.Erro.
const (
	ErroCamposInvalidos    = "campos_invalidos"
	ErroCursoDesconhecido  = "curso_desconhecido"
	ErroAcaoDesconhecida   = "acao_desconhecida"
	ErroIntencaoNaoEntendi = "intencao_desconhecida"
	ErroBloqueadoPorDivida = "bloqueado_por_divida"
	ErroEstadoFinanceiro   = "estado_financeiro_desconhecido"
)
