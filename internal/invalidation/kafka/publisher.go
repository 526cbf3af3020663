package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/invalidation"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
	"github.com/mohammed-shakir/osm-tile-cache/internal/replication"
)

// CellMapper attaches H3 cells to published events.
type CellMapper interface {
	Resolution() int
	CellsForTiles(tiles []mercator.Tile) ([]string, error)
}

type PublisherOptions struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Cells    CellMapper
}

// Publisher fans the tiles invalidated by each replication cycle out to Kafka.
type Publisher struct {
	log   *slog.Logger
	topic string
	prod  sarama.SyncProducer
	cells CellMapper
	chunk int
	pub   *prometheus.CounterVec
	now   func() time.Time
}

var _ replication.Notifier = (*Publisher)(nil)

func NewPublisher(cfg InvalidationConfig, opts PublisherOptions) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("invalidation publisher: create sync producer: %w", err)
	}
	return NewPublisherWithProducer(prod, cfg.Topic, cfg.MaxTilesPerMessage, opts), nil
}

func NewPublisherWithProducer(prod sarama.SyncProducer, topic string, chunk int, opts PublisherOptions) *Publisher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if chunk <= 0 {
		chunk = 1000
	}
	return &Publisher{
		log:   opts.Logger,
		topic: topic,
		prod:  prod,
		cells: opts.Cells,
		chunk: chunk,
		pub:   newPublishCounter(opts.Register),
		now:   time.Now,
	}
}

// Notify publishes one event per chunk of tiles, keyed by sequence number so all
// chunks of a cycle land on the same partition in order.
func (p *Publisher) Notify(ctx context.Context, b replication.Batch) error {
	if len(b.Tiles) == 0 {
		return nil
	}
	op := invalidation.OpDelete
	if b.Mode == replication.ModeRefresh {
		op = invalidation.OpRefresh
	}

	var msgs []*sarama.ProducerMessage
	for start := 0; start < len(b.Tiles); start += p.chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		part := b.Tiles[start:min(start+p.chunk, len(b.Tiles))]
		ev := invalidation.Event{
			Version: 1,
			Op:      op,
			Seq:     b.Sequence,
			Tiles:   make([]string, len(part)),
			TS:      p.now().UTC(),
		}
		for i, t := range part {
			ev.Tiles[i] = keys.TileKey(t)
		}
		if p.cells != nil {
			cells, err := p.cells.CellsForTiles(part)
			if err != nil {
				p.log.Warn("h3 cells for invalidation failed", "seq", b.Sequence, "err", err)
			} else {
				ev.H3Res, ev.H3Cells = p.cells.Resolution(), cells
			}
		}
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal invalidation event: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(b.Sequence, 10)),
			Value: sarama.ByteEncoder(body),
		})
	}

	if err := p.prod.SendMessages(msgs); err != nil {
		p.pub.WithLabelValues("error").Add(float64(len(msgs)))
		return fmt.Errorf("publish %d invalidation events: %w", len(msgs), err)
	}
	p.pub.WithLabelValues("ok").Add(float64(len(msgs)))
	p.log.Debug("invalidation published", "seq", b.Sequence, "tiles", len(b.Tiles), "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("invalidation publisher: close producer: %w", err)
	}
	return nil
}
