package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	assistantx "github.com/mRafaelSilva/Projeto-ASM/agent/agents/assistant"
	financeirox "github.com/mRafaelSilva/Projeto-ASM/agent/agents/financeiro"
	horariosx "github.com/mRafaelSilva/Projeto-ASM/agent/agents/horarios"
	catalogx "github.com/mRafaelSilva/Projeto-ASM/agent/catalog"
	ledgerx "github.com/mRafaelSilva/Projeto-ASM/agent/ledger"
	nlux "github.com/mRafaelSilva/Projeto-ASM/agent/nlu"
	schedulex "github.com/mRafaelSilva/Projeto-ASM/agent/schedule"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
	busx "github.com/mRafaelSilva/Projeto-ASM/pkg/bus"
	configx "github.com/mRafaelSilva/Projeto-ASM/pkg/config"
	_ "github.com/mRafaelSilva/Projeto-ASM/pkg/logger/autoload"
	openrouterx "github.com/mRafaelSilva/Projeto-ASM/pkg/openrouter"
)

type AppConfig struct {
	CatalogPath string `envconfig:"CATALOG_PATH" split_words:"true" default:"data/horarios.json"`

	LedgerBackend string `envconfig:"LEDGER_BACKEND" split_words:"true" default:"file"`
	LedgerPath    string `envconfig:"LEDGER_PATH" split_words:"true" default:"data/financeiro.json"`

	SessionBackend string `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
	BusBackend     string `envconfig:"BUS_BACKEND" split_words:"true" default:"memory"`
	NLUBackend     string `envconfig:"NLU_BACKEND" split_words:"true" default:"regex"`

	AssistantAddress  string `envconfig:"ASSISTANT_ADDRESS" split_words:"true" default:"assistente"`
	HorariosAddress   string `envconfig:"HORARIOS_ADDRESS" split_words:"true" default:"horarios"`
	FinanceiroAddress string `envconfig:"FINANCEIRO_ADDRESS" split_words:"true" default:"financeiro"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	appCfg := configx.MustNew[AppConfig]("SECRETARIA")

	cat, err := catalogx.Load(appCfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", appCfg.CatalogPath).Msg("load catalog")
	}
	engine := schedulex.NewEngine(cat)

	ledger := newLedger(appCfg)
	defer closeIfCloser(ledger)

	store := newSessionStore(appCfg)

	bus := newBus(appCfg)
	defer closeIfCloser(bus)

	extractor := newExtractor(ctx, appCfg, cat)

	assistant, err := assistantx.New(store, extractor, bus, assistantx.Config{
		Address:           appCfg.AssistantAddress,
		HorariosAddress:   appCfg.HorariosAddress,
		FinanceiroAddress: appCfg.FinanceiroAddress,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("build assistant")
	}

	horarios, err := horariosx.New(cat, engine, bus, horariosx.Config{
		Address: appCfg.HorariosAddress,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("build horarios")
	}

	financeiro, err := financeirox.New(ledger, bus, financeirox.Config{
		Address: appCfg.FinanceiroAddress,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("build financeiro")
	}

	runners := []interface {
		Run(context.Context) error
		Address() string
	}{assistant, horarios, financeiro}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("address", r.Address()).Msg("agent stopped")
				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
}

func newLedger(cfg *AppConfig) ledgerx.Store {
	switch cfg.LedgerBackend {
	case "postgres":
		pgCfg := configx.MustNew[ledgerx.PostgresConfig]("POSTGRES")
		store, err := ledgerx.NewBunStore(*pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres ledger")
		}
		if err := store.Init(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("init postgres ledger")
		}
		return store
	default:
		store, err := ledgerx.NewFileStore(cfg.LedgerPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("open file ledger")
		}
		return store
	}
}

func newSessionStore(cfg *AppConfig) statex.Store {
	switch cfg.SessionBackend {
	case "upstash":
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open upstash session store")
		}
		return store
	default:
		return statex.NewMemoryStore()
	}
}

func newBus(cfg *AppConfig) busx.Bus {
	switch cfg.BusBackend {
	case "nats":
		natsCfg := configx.MustNew[busx.NATSConfig]("NATS")
		b, err := busx.NewNATSBus(*natsCfg, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats bus")
		}
		return b
	default:
		return busx.NewMemoryBus()
	}
}

func newExtractor(ctx context.Context, cfg *AppConfig, cat *catalogx.Catalog) nlux.Extractor {
	if cfg.NLUBackend != "llm" {
		return nlux.NewRegexExtractor(cat.DisciplineIDs())
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	chatModel, err := openRouterCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build openrouter model")
	}
	extractor, err := nlux.NewLLMExtractor(ctx, chatModel)
	if err != nil {
		log.Fatal().Err(err).Msg("compile llm extractor")
	}
	return extractor
}

func closeIfCloser(v any) {
	switch c := v.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	case interface{ Close() }:
		c.Close()
	}
}
