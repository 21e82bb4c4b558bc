// Package schedule checks section choices for conflicts and searches for
// feasible combinations. The engine is a pure function of the catalog and the
// choices it is given; it never holds session state and never returns an error
// for malformed input — problems are encoded as item error tags and conflict
// entries so callers always have a payload to render.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	catalogx "github.com/mRafaelSilva/Projeto-ASM/agent/catalog"
)

// UnknownSection is the sentinel emitted for disciplines that have no
// resolvable section.
const UnknownSection = "T?"

// Item error tags.
const (
	ItemErrDisciplineMissing = "disciplina_inexistente"
	ItemErrSectionMissing    = "turno_inexistente"
	ItemErrInvalidTime       = "hora_invalida"
)

// Choice assigns one section to one discipline. Choices are ordered so the
// resolved item list is deterministic.
type Choice struct {
	Disciplina string
	Turno      string
}

// Item is a resolved (discipline, section) pair, or an error-tagged stub when
// resolution fails. Times are minute-of-day, half-open [InicioMin, FimMin).
type Item struct {
	Disciplina    string `json:"disciplina"`
	Turno         string `json:"turno"`
	Erro          string `json:"erro,omitempty"`
	Dia           string `json:"dia,omitempty"`
	InicioMin     int    `json:"inicio_min,omitempty"`
	FimMin        int    `json:"fim_min,omitempty"`
	Inicio        string `json:"inicio,omitempty"`
	Fim           string `json:"fim,omitempty"`
	Sala          string `json:"sala,omitempty"`
	VagasTotais   int    `json:"vagas_totais"`
	VagasOcupadas int    `json:"vagas_ocupadas"`
}

func (i Item) valid() bool { return i.Erro == "" }

func (i Item) hasFreeSeats() bool {
	return i.VagasTotais <= 0 || i.VagasOcupadas < i.VagasTotais
}

// ConflictKind tags a Conflict.
type ConflictKind string

const (
	ConflictInvalid  ConflictKind = "invalid"
	ConflictCapacity ConflictKind = "capacity"
	ConflictOverlap  ConflictKind = "overlap"
)

// ConflictSide identifies one participant of an overlap conflict.
type ConflictSide struct {
	Disciplina string `json:"disciplina"`
	Turno      string `json:"turno"`
	Dia        string `json:"dia,omitempty"`
	Inicio     string `json:"inicio,omitempty"`
	Fim        string `json:"fim,omitempty"`
}

// Conflict is one detected problem in a set of schedule items.
type Conflict struct {
	Tipo       ConflictKind  `json:"tipo"`
	Disciplina string        `json:"disciplina,omitempty"`
	Turno      string        `json:"turno,omitempty"`
	Dia        string        `json:"dia,omitempty"`
	Desc       string        `json:"desc"`
	A          *ConflictSide `json:"a,omitempty"`
	B          *ConflictSide `json:"b,omitempty"`
}

// Feasible reports whether the conflict list is free of hard conflicts.
func Feasible(conflicts []Conflict) bool {
	for _, c := range conflicts {
		switch c.Tipo {
		case ConflictInvalid, ConflictCapacity, ConflictOverlap:
			return false
		}
	}
	return true
}

// Search guard failure description.
const descSearchGuard = "limite_pesquisa_excedido"

const (
	defaultMaxDisciplines = 32
	defaultMaxSections    = 64
)

// Engine answers schedule queries against a read-only catalog.
type Engine struct {
	cat            *catalogx.Catalog
	maxDisciplines int
	maxSections    int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSearchBounds caps the backtracking input. The wire contract has no upper
// bound, so oversized requests report infeasible instead of searching.
func WithSearchBounds(maxDisciplines, maxSections int) Option {
	return func(e *Engine) {
		if maxDisciplines > 0 {
			e.maxDisciplines = maxDisciplines
		}
		if maxSections > 0 {
			e.maxSections = maxSections
		}
	}
}

func NewEngine(cat *catalogx.Catalog, opts ...Option) *Engine {
	e := &Engine{
		cat:            cat,
		maxDisciplines: defaultMaxDisciplines,
		maxSections:    defaultMaxSections,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ResolveItems resolves each choice against the catalog, in choice order.
// Unresolvable entries come back error-tagged rather than failing the call.
func (e *Engine) ResolveItems(program string, choices []Choice) []Item {
	items := make([]Item, 0, len(choices))

	for _, ch := range choices {
		disc, ok := e.cat.Discipline(program, ch.Disciplina)
		if !ok {
			items = append(items, Item{Disciplina: ch.Disciplina, Turno: ch.Turno, Erro: ItemErrDisciplineMissing})
			continue
		}

		sec, ok := sectionOf(disc, ch.Turno)
		if !ok {
			items = append(items, Item{Disciplina: ch.Disciplina, Turno: ch.Turno, Erro: ItemErrSectionMissing})
			continue
		}

		ini, errIni := hhmmToMinutes(sec.Inicio)
		fim, errFim := hhmmToMinutes(sec.Fim)
		if errIni != nil || errFim != nil {
			items = append(items, Item{Disciplina: ch.Disciplina, Turno: ch.Turno, Erro: ItemErrInvalidTime})
			continue
		}

		items = append(items, Item{
			Disciplina:    ch.Disciplina,
			Turno:         ch.Turno,
			Dia:           sec.Dia,
			InicioMin:     ini,
			FimMin:        fim,
			Inicio:        sec.Inicio,
			Fim:           sec.Fim,
			Sala:          sec.Sala,
			VagasTotais:   sec.VagasTotais,
			VagasOcupadas: sec.VagasOcupadas,
		})
	}

	return items
}

// DetectConflicts checks a resolved item set. Error-tagged items yield one
// "invalid" conflict each and take part in no further checks. Overlaps use the
// half-open interval test, so touching endpoints do not conflict.
func (e *Engine) DetectConflicts(items []Item) []Conflict {
	var conflicts []Conflict

	for _, it := range items {
		if !it.valid() {
			conflicts = append(conflicts, Conflict{
				Tipo:       ConflictInvalid,
				Disciplina: it.Disciplina,
				Turno:      it.Turno,
				Desc:       it.Erro,
			})
		}
	}

	for _, it := range items {
		if !it.valid() {
			continue
		}
		if !it.hasFreeSeats() {
			conflicts = append(conflicts, Conflict{
				Tipo:       ConflictCapacity,
				Disciplina: it.Disciplina,
				Turno:      it.Turno,
				Dia:        it.Dia,
				Desc:       "sem_vagas",
			})
		}
	}

	valid := make([]Item, 0, len(items))
	for _, it := range items {
		if it.valid() {
			valid = append(valid, it)
		}
	}
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			a, b := valid[i], valid[j]
			if a.Dia != b.Dia {
				continue
			}
			if a.InicioMin < b.FimMin && b.InicioMin < a.FimMin {
				conflicts = append(conflicts, Conflict{
					Tipo: ConflictOverlap,
					Desc: "conflito_horario",
					A:    &ConflictSide{Disciplina: a.Disciplina, Turno: a.Turno, Dia: a.Dia, Inicio: a.Inicio, Fim: a.Fim},
					B:    &ConflictSide{Disciplina: b.Disciplina, Turno: b.Turno, Dia: b.Dia, Inicio: b.Inicio, Fim: b.Fim},
				})
			}
		}
	}

	return conflicts
}

// DefaultChoice picks, per requested discipline, the first section with free
// seats in catalog order, falling back to the first section when all are full
// and to UnknownSection when the discipline resolves to nothing.
func (e *Engine) DefaultChoice(program string, disciplinas []string) []Choice {
	choices := make([]Choice, 0, len(disciplinas))

	for _, discID := range disciplinas {
		disc, ok := e.cat.Discipline(program, discID)
		if !ok || len(disc.Turnos) == 0 {
			choices = append(choices, Choice{Disciplina: discID, Turno: UnknownSection})
			continue
		}

		chosen := ""
		for _, t := range disc.Turnos {
			if t.HasFreeSeats() {
				chosen = t.ID
				break
			}
		}
		if chosen == "" {
			chosen = disc.Turnos[0].ID
			if chosen == "" {
				chosen = UnknownSection
			}
		}
		choices = append(choices, Choice{Disciplina: discID, Turno: chosen})
	}

	return choices
}

// FindFeasible searches for one conflict-free section per requested
// discipline. Candidates are tried free-capacity-first with a stable sort, so
// repeated calls with the same input reach the same verdict. When no
// combination works the returned choices and conflicts describe the default
// assignment, so the caller always has something concrete to report.
func (e *Engine) FindFeasible(program string, disciplinas []string) (bool, []Choice, []Conflict) {
	if len(disciplinas) > e.maxDisciplines {
		return false, nil, []Conflict{{
			Tipo: ConflictInvalid,
			Desc: descSearchGuard,
		}}
	}

	type option struct {
		disciplina string
		turnos     []string
	}
	options := make([]option, 0, len(disciplinas))

	for _, discID := range disciplinas {
		disc, ok := e.cat.Discipline(program, discID)
		if !ok || len(disc.Turnos) == 0 {
			options = append(options, option{disciplina: discID, turnos: []string{UnknownSection}})
			continue
		}
		if len(disc.Turnos) > e.maxSections {
			return false, nil, []Conflict{{
				Tipo:       ConflictInvalid,
				Disciplina: discID,
				Desc:       descSearchGuard,
			}}
		}

		turnos := append([]catalogx.Section(nil), disc.Turnos...)
		sort.SliceStable(turnos, func(i, j int) bool {
			return turnos[i].HasFreeSeats() && !turnos[j].HasFreeSeats()
		})

		ids := make([]string, 0, len(turnos))
		for _, t := range turnos {
			if t.ID != "" {
				ids = append(ids, t.ID)
			}
		}
		if len(ids) == 0 {
			ids = []string{UnknownSection}
		}
		options = append(options, option{disciplina: discID, turnos: ids})
	}

	assigned := make([]Choice, 0, len(options))

	partialOK := func() bool {
		items := e.ResolveItems(program, assigned)
		return Feasible(e.DetectConflicts(items))
	}

	var backtrack func(idx int) bool
	backtrack = func(idx int) bool {
		if idx == len(options) {
			return true
		}
		opt := options[idx]
		for _, turno := range opt.turnos {
			assigned = append(assigned, Choice{Disciplina: opt.disciplina, Turno: turno})
			if partialOK() && backtrack(idx+1) {
				return true
			}
			assigned = assigned[:len(assigned)-1]
		}
		return false
	}

	ok := backtrack(0)
	if !ok && len(assigned) == 0 {
		assigned = e.DefaultChoice(program, disciplinas)
	}
	items := e.ResolveItems(program, assigned)
	conflicts := e.DetectConflicts(items)
	return ok && Feasible(conflicts), append([]Choice(nil), assigned...), conflicts
}

// ChoicesToMap converts ordered choices to the wire map form.
func ChoicesToMap(choices []Choice) map[string]string {
	out := make(map[string]string, len(choices))
	for _, c := range choices {
		out[c.Disciplina] = c.Turno
	}
	return out
}

// OrderedChoices rebuilds ordered choices from a wire map, following the
// requested discipline order first and appending any extra map entries in
// sorted order so resolution stays deterministic.
func OrderedChoices(disciplinas []string, escolhas map[string]string) []Choice {
	choices := make([]Choice, 0, len(escolhas))
	used := make(map[string]bool, len(escolhas))

	for _, d := range disciplinas {
		if turno, ok := escolhas[d]; ok && !used[d] {
			choices = append(choices, Choice{Disciplina: d, Turno: turno})
			used[d] = true
		}
	}

	rest := make([]string, 0, len(escolhas))
	for d := range escolhas {
		if !used[d] {
			rest = append(rest, d)
		}
	}
	sort.Strings(rest)
	for _, d := range rest {
		choices = append(choices, Choice{Disciplina: d, Turno: escolhas[d]})
	}

	return choices
}

// sectionOf finds a section by id within an already-resolved discipline.
func sectionOf(disc catalogx.Discipline, id string) (catalogx.Section, bool) {
	for _, t := range disc.Turnos {
		if t.ID == id {
			return t, true
		}
	}
	return catalogx.Section{}, false
}

// hhmmToMinutes parses "HH:MM" into minutes since midnight.
func hhmmToMinutes(hhmm string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", hhmm)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range %q", hhmm)
	}
	return h*60 + m, nil
}
