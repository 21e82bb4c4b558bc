// Package nlu classifies a requester's free text into an intent and pulls the
// slots it mentions. The default implementation is a text-pattern matcher; an
// LLM-backed implementation of the same interface exists for deployments that
// want it. Classification quality is explicitly not this module's problem —
// the contract is only the Extraction shape.
package nlu

import (
	"context"
	"regexp"
	"strings"

	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
)

// Slot names the dialogue collects.
const (
	SlotNumeroAluno = "numero_aluno"
	SlotCurso       = "curso"
	SlotDisciplina  = "disciplina"
)

// Extraction is the result of one pass over a requester message.
type Extraction struct {
	Intent statex.Intent
	Slots  map[string]any
}

// Extractor is the replaceable NLU collaborator.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

var (
	reInscricao  = regexp.MustCompile(`inscrev|inscri(?:c|ç)(?:a|ã)o`)
	reHorarios   = regexp.MustCompile(`horar|horári|schedule`)
	rePagamentos = regexp.MustCompile(`paga|propina|saldo|divida|dívida|finance`)

	reNumeroAluno = regexp.MustCompile(`\b(\d{1,10})\b`)
	reCurso       = regexp.MustCompile(`(?i)\b(l[-_.\s]?ei|lei|l[-_.\s]?g|lg)\b`)
	reToken       = regexp.MustCompile(`[A-Za-z0-9_]+`)
)

// RegexExtractor matches intents and slots with fixed patterns. Discipline
// tokens are recognized against the catalog's known discipline ids.
type RegexExtractor struct {
	disciplineIDs map[string]struct{}
}

// NewRegexExtractor builds the default extractor. disciplineIDs usually come
// from catalog.DisciplineIDs.
func NewRegexExtractor(disciplineIDs []string) *RegexExtractor {
	ids := make(map[string]struct{}, len(disciplineIDs))
	for _, id := range disciplineIDs {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &RegexExtractor{disciplineIDs: ids}
}

func (e *RegexExtractor) Extract(_ context.Context, text string) (Extraction, error) {
	out := Extraction{
		Intent: classify(text),
		Slots:  map[string]any{},
	}

	if m := reNumeroAluno.FindStringSubmatch(text); m != nil {
		out.Slots[SlotNumeroAluno] = m[1]
	}
	if m := reCurso.FindStringSubmatch(text); m != nil {
		out.Slots[SlotCurso] = NormalizeProgram(m[1])
	}
	if discs := e.disciplines(text); len(discs) > 0 {
		out.Slots[SlotDisciplina] = discs
	}

	return out, nil
}

func (e *RegexExtractor) disciplines(text string) []string {
	var out []string
	for _, tok := range reToken.FindAllString(strings.ToUpper(text), -1) {
		if _, ok := e.disciplineIDs[tok]; ok {
			out = append(out, tok)
		}
	}
	return NormalizeDisciplines(out)
}

func classify(text string) statex.Intent {
	text = strings.ToLower(text)
	switch {
	case reInscricao.MatchString(text):
		return statex.IntentInscricao
	case reHorarios.MatchString(text):
		return statex.IntentHorarios
	case rePagamentos.MatchString(text):
		return statex.IntentPagamentos
	default:
		return statex.IntentUnknown
	}
}
