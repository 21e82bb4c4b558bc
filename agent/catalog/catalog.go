// Package catalog holds the program/discipline/section offering data. The
// document is loaded once at startup and is read-only afterwards, so any
// number of engine queries may read it concurrently without locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Section is one time-slotted offering of a discipline ("turno").
// VagasTotais <= 0 means the section has no seat limit.
type Section struct {
	ID            string `json:"id"`
	Dia           string `json:"dia"`
	Inicio        string `json:"inicio"`
	Fim           string `json:"fim"`
	Sala          string `json:"sala"`
	VagasTotais   int    `json:"vagas_totais"`
	VagasOcupadas int    `json:"vagas_ocupadas"`
}

// HasFreeSeats reports whether the section can still take a student.
func (s Section) HasFreeSeats() bool {
	return s.VagasTotais <= 0 || s.VagasOcupadas < s.VagasTotais
}

// Discipline is a course unit within a program.
type Discipline struct {
	ID     string    `json:"id"`
	Nome   string    `json:"nome,omitempty"`
	Turnos []Section `json:"turnos"`
}

// Catalog indexes disciplines by program. Section and discipline order is the
// document order, which the schedule engine relies on for deterministic
// tie-breaking.
type Catalog struct {
	byProgram map[string][]Discipline
}

// New builds a catalog from an already-decoded document.
func New(data map[string][]Discipline) *Catalog {
	if data == nil {
		data = map[string][]Discipline{}
	}
	return &Catalog{byProgram: data}
}

// Load reads the catalog document from disk.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog document: %w", err)
	}

	var data map[string][]Discipline
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode catalog document: %w", err)
	}
	return New(data), nil
}

// HasProgram reports whether the program exists.
func (c *Catalog) HasProgram(program string) bool {
	_, ok := c.byProgram[program]
	return ok
}

// Programs returns the known program identifiers, sorted.
func (c *Catalog) Programs() []string {
	out := make([]string, 0, len(c.byProgram))
	for p := range c.byProgram {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Disciplines returns the program's disciplines in document order.
func (c *Catalog) Disciplines(program string) []Discipline {
	return c.byProgram[program]
}

// Discipline looks up one discipline within a program.
func (c *Catalog) Discipline(program, id string) (Discipline, bool) {
	for _, d := range c.byProgram[program] {
		if d.ID == id {
			return d, true
		}
	}
	return Discipline{}, false
}

// Section looks up one section of a discipline.
func (c *Catalog) Section(program, disciplineID, sectionID string) (Section, bool) {
	d, ok := c.Discipline(program, disciplineID)
	if !ok {
		return Section{}, false
	}
	for _, t := range d.Turnos {
		if t.ID == sectionID {
			return t, true
		}
	}
	return Section{}, false
}

// DisciplineIDs returns every discipline id across all programs, uppercased
// and deduplicated. The text matcher uses this set to spot discipline tokens.
func (c *Catalog) DisciplineIDs() []string {
	seen := map[string]struct{}{}
	for _, list := range c.byProgram {
		for _, d := range list {
			id := strings.ToUpper(strings.TrimSpace(d.ID))
			if id != "" {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
