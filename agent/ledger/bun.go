package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the bun-backed store.
type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

type bunRecord struct {
	bun.BaseModel `bun:"table:financeiro,alias:f"`

	EstudanteID int     `bun:"estudante_id,pk"`
	Nome        string  `bun:"nome"`
	Saldo       float64 `bun:"saldo"`
	IsentoTaxas bool    `bun:"isento_taxas"`
	Historico   string  `bun:"historico_pagamentos"`
}

// BunStore persists finance records in Postgres through bun. The payment
// history rides along as a JSON column; the ledger has no query surface that
// needs it relational.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(cfg PostgresConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &BunStore{db: db}, nil
}

// Init creates the backing table if it does not exist.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*bunRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

func (s *BunStore) Get(ctx context.Context, estudanteID int) (*Record, error) {
	row := new(bunRecord)
	err := s.db.NewSelect().
		Model(row).
		Where("estudante_id = ?", estudanteID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("select ledger record: %w", err)
	}

	rec := &Record{
		EstudanteID: row.EstudanteID,
		Nome:        row.Nome,
		Saldo:       row.Saldo,
		IsentoTaxas: row.IsentoTaxas,
	}
	if strings.TrimSpace(row.Historico) != "" {
		if err := json.Unmarshal([]byte(row.Historico), &rec.HistoricoPagamentos); err != nil {
			return nil, fmt.Errorf("decode payment history: %w", err)
		}
	}
	return rec, nil
}

func (s *BunStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.EstudanteID == 0 {
		return errors.New("record needs a student id")
	}

	historico, err := json.Marshal(rec.HistoricoPagamentos)
	if err != nil {
		return fmt.Errorf("encode payment history: %w", err)
	}

	row := &bunRecord{
		EstudanteID: rec.EstudanteID,
		Nome:        rec.Nome,
		Saldo:       rec.Saldo,
		IsentoTaxas: rec.IsentoTaxas,
		Historico:   string(historico),
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (estudante_id) DO UPDATE").
		Set("nome = EXCLUDED.nome").
		Set("saldo = EXCLUDED.saldo").
		Set("isento_taxas = EXCLUDED.isento_taxas").
		Set("historico_pagamentos = EXCLUDED.historico_pagamentos").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert ledger record: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *BunStore) Close() error {
	return s.db.Close()
}
