package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
)

// NATSConfig configures the NATS-backed bus.
type NATSConfig struct {
	URL           string        `envconfig:"URL" split_words:"true" default:"nats://localhost:4222"`
	SubjectPrefix string        `envconfig:"SUBJECT_PREFIX" split_words:"true" default:"secretaria.agentes"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
	ReconnectWait time.Duration `envconfig:"RECONNECT_WAIT" split_words:"true" default:"2s"`
}

// NATSBus maps each agent address to a NATS subject and carries envelopes as
// JSON. Envelopes that fail to decode are logged and dropped, never answered.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
	logger zerolog.Logger
}

func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	nc, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSBus{
		nc:     nc,
		prefix: strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), "."),
		logger: logger.With().Str("component", "nats_bus").Logger(),
	}, nil
}

func (b *NATSBus) subject(addr string) string {
	addr = strings.ReplaceAll(addr, "/", "_")
	if b.prefix == "" {
		return addr
	}
	return b.prefix + "." + addr
}

func (b *NATSBus) Publish(ctx context.Context, env contractx.Envelope) error {
	if env.To == "" {
		return fmt.Errorf("%w: envelope has no recipient", contractx.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject(env.To), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", env.To, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(addr string) (<-chan contractx.Envelope, func(), error) {
	if addr == "" {
		return nil, nil, fmt.Errorf("%w: address is empty", contractx.ErrValidation)
	}

	out := make(chan contractx.Envelope, memoryBusBuffer)
	sub, err := b.nc.Subscribe(b.subject(addr), func(msg *nats.Msg) {
		var env contractx.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.logger.Warn().Err(err).Str("addr", addr).Msg("dropping malformed envelope")
			return
		}
		select {
		case out <- env:
		default:
			b.logger.Warn().Str("addr", addr).Msg("subscriber buffer full, dropping envelope")
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", addr, err)
	}

	unsubscribe := func() {
		_ = sub.Unsubscribe()
		close(out)
	}
	return out, unsubscribe, nil
}

// Close drains and closes the underlying connection.
func (b *NATSBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
