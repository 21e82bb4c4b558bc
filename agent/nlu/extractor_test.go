package nlu

import (
	"context"
	"reflect"
	"testing"

	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
)

func TestClassifyIntent(t *testing.T) {
	t.Parallel()

	e := NewRegexExtractor(nil)

	cases := map[string]statex.Intent{
		"quero inscrever-me":                statex.IntentInscricao,
		"Inscrição em SO1 por favor":        statex.IntentInscricao,
		"quais os horarios de PF":           statex.IntentHorarios,
		"preciso do meu schedule":           statex.IntentHorarios,
		"tenho alguma dívida em propinas?":  statex.IntentPagamentos,
		"qual o meu saldo":                  statex.IntentPagamentos,
		"bom dia":                           statex.IntentUnknown,
	}

	for text, want := range cases {
		got, err := e.Extract(context.Background(), text)
		if err != nil {
			t.Fatalf("Extract(%q) error = %v", text, err)
		}
		if got.Intent != want {
			t.Fatalf("Extract(%q).Intent = %q, want %q", text, got.Intent, want)
		}
	}
}

func TestExtractSlots(t *testing.T) {
	t.Parallel()

	e := NewRegexExtractor([]string{"SO1", "PF", "AED"})

	got, err := e.Extract(context.Background(), "inscrever o aluno 202301 de LEI em so1 e pf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got.Slots[SlotNumeroAluno] != "202301" {
		t.Fatalf("numero_aluno = %v", got.Slots[SlotNumeroAluno])
	}
	if got.Slots[SlotCurso] != "L-EI" {
		t.Fatalf("curso = %v", got.Slots[SlotCurso])
	}
	discs, _ := got.Slots[SlotDisciplina].([]string)
	if !reflect.DeepEqual(discs, []string{"SO1", "PF"}) {
		t.Fatalf("disciplina = %v", discs)
	}
}

func TestExtractNoSlots(t *testing.T) {
	t.Parallel()

	e := NewRegexExtractor([]string{"SO1"})
	got, err := e.Extract(context.Background(), "quero inscrever-me")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got.Slots) != 0 {
		t.Fatalf("expected no slots, got %v", got.Slots)
	}
}

func TestNormalizeProgram(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"L-EI":   "L-EI",
		"lei":    "L-EI",
		"l_ei":   "L-EI",
		"l.ei ":  "L-EI",
		"LG":     "L-G",
		"l-g":    "L-G",
		"":       "",
		"L-MAT":  "L-MAT",
		" l-mat": "L-MAT",
	}
	for in, want := range cases {
		if got := NormalizeProgram(in); got != want {
			t.Fatalf("NormalizeProgram(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeDisciplines(t *testing.T) {
	t.Parallel()

	if got := NormalizeDisciplines(nil); got != nil {
		t.Fatalf("nil = %v", got)
	}
	if got := NormalizeDisciplines("so1, pf ,"); !reflect.DeepEqual(got, []string{"SO1", "PF"}) {
		t.Fatalf("comma string = %v", got)
	}
	if got := NormalizeDisciplines([]string{" so1 ", "pf"}); !reflect.DeepEqual(got, []string{"SO1", "PF"}) {
		t.Fatalf("string list = %v", got)
	}
	if got := NormalizeDisciplines([]any{"so1", 42, "pf"}); !reflect.DeepEqual(got, []string{"SO1", "PF"}) {
		t.Fatalf("mixed list = %v", got)
	}
	if got := NormalizeDisciplines(42); got != nil {
		t.Fatalf("int = %v", got)
	}
	if got := NormalizeDisciplines("  "); got != nil {
		t.Fatalf("blank = %v", got)
	}
}

func TestNormalizeStudentID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{"202301", "202301"},
		{"aluno 202301", "202301"},
		{"a202301b999", "202301"},
		{"sem numero", ""},
		{42, ""},
		{nil, ""},
	}
	for _, c := range cases {
		if got := NormalizeStudentID(c.in); got != c.want {
			t.Fatalf("NormalizeStudentID(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
