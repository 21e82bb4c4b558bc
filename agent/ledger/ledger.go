// Package ledger stores student finance records for the financeiro agent.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// Payment is one entry in a student's payment history.
type Payment struct {
	Data  string  `json:"data"`
	Valor float64 `json:"valor"`
	Tipo  string  `json:"tipo"`
}

// Record is one student's finance state. A negative Saldo is debt unless the
// student is fee-exempt.
type Record struct {
	EstudanteID         int       `json:"estudante_id"`
	Nome                string    `json:"nome,omitempty"`
	Saldo               float64   `json:"saldo"`
	IsentoTaxas         bool      `json:"isento_taxas"`
	HistoricoPagamentos []Payment `json:"historico_pagamentos,omitempty"`
}

// DebtInfo is the derived debt view of a record.
type DebtInfo struct {
	TemDivida   bool
	ValorDivida float64
	Saldo       float64
	IsentoTaxas bool
}

// Debt computes the debt view of a record.
func (r *Record) Debt() DebtInfo {
	temDivida := r.Saldo < 0 && !r.IsentoTaxas
	valor := 0.0
	if r.Saldo < 0 {
		valor = math.Abs(r.Saldo)
	}
	return DebtInfo{
		TemDivida:   temDivida,
		ValorDivida: valor,
		Saldo:       r.Saldo,
		IsentoTaxas: r.IsentoTaxas,
	}
}

var ErrRecordNotFound = errors.New("finance record not found")

// Store is the finance record persistence contract.
type Store interface {
	Get(ctx context.Context, estudanteID int) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// FileStore keeps all records in one flat JSON document, loaded at startup and
// rewritten whole on save.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[int]*Record
}

// NewFileStore loads the document at path. A missing file starts empty.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, records: make(map[int]*Record)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read ledger document: %w", err)
	}

	var records []*Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode ledger document: %w", err)
	}
	for _, rec := range records {
		if rec != nil && rec.EstudanteID != 0 {
			s.records[rec.EstudanteID] = rec
		}
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, estudanteID int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[estudanteID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	cp.HistoricoPagamentos = append([]Payment(nil), rec.HistoricoPagamentos...)
	return &cp, nil
}

func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.EstudanteID == 0 {
		return errors.New("record needs a student id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.HistoricoPagamentos = append([]Payment(nil), rec.HistoricoPagamentos...)
	s.records[rec.EstudanteID] = &cp
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].EstudanteID < records[j].EstudanteID
	})

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger document: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("write ledger document: %w", err)
	}
	return nil
}
