// Package events publishes tournament lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"neural-garden/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const (
	StreamName    = "TOURNAMENTS"
	SubjectPrefix = "tournaments"
)

type Type string

const (
	TournamentCreated   Type = "created"
	ParticipantEntered  Type = "entered"
	WinnerRecorded      Type = "winner"
	TournamentCompleted Type = "completed"
)

type Event struct {
	Type         Type      `json:"type"`
	TournamentID string    `json:"tournamentId"`
	Mode         string    `json:"mode,omitempty"`
	Address      string    `json:"address,omitempty"`
	Rank         int       `json:"rank,omitempty"`
	PrizeWei     string    `json:"prizeWei,omitempty"`
	TxHash       string    `json:"txHash,omitempty"`
	Status       string    `json:"status,omitempty"`
	At           time.Time `json:"at"`
}

func (e Event) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Type, e.TournamentID)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger zerolog.Logger
}

// Connect dials NATS and makes sure the tournament stream exists. When JetStream
// is unavailable events fall back to core publish.
func Connect(url string, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("neural-garden"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &NATSPublisher{nc: nc, logger: logger}

	js, err := nc.JetStream()
	if err != nil {
		logger.Warn().Err(err).Msg("jetstream unavailable, using core publish")
		return p, nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		logger.Warn().Err(err).Msg("failed to add stream, using core publish")
		return p, nil
	}
	p.js = js
	return p, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if p.js != nil {
		if _, err := p.js.Publish(ev.Subject(), data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	}
	if err := p.nc.Publish(ev.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

func Provide(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		logger.Info().Msg("NATS_URL not set, tournament events are disabled")
		return Noop{}, nil
	}

	p, err := Connect(cfg.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})

	logger.Info().Str("url", cfg.NATSURL).Bool("jetstream", p.js != nil).Msg("tournament events enabled")
	return p, nil
}
