package kafka

import (
	"os"
	"strings"
	"time"
)

type Driver string

const (
	DriverNone  Driver = "none"
	DriverKafka Driver = "kafka"
)

type InvalidationConfig struct {
	Enabled bool
	Driver  Driver

	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool

	// MaxTilesPerMessage splits large diffs over several events.
	MaxTilesPerMessage int
	// DedupeSize bounds the per-tile sequence memory of the consumer.
	DedupeSize int
}

func (c InvalidationConfig) Active() bool {
	return c.Enabled && c.Driver == DriverKafka
}

func FromEnv() InvalidationConfig {
	enabled := strings.ToLower(os.Getenv("INVALIDATION_ENABLED")) == "true"
	driver := Driver(strings.TrimSpace(os.Getenv("INVALIDATION_DRIVER")))
	if driver == "" {
		driver = DriverNone
	}
	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if topic == "" {
		topic = "tile-invalidation"
	}
	group := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if group == "" {
		group = "tile-invalidator"
	}
	client := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID"))
	if client == "" {
		client = "osm-tile-cache"
	}

	return InvalidationConfig{
		Enabled:            enabled,
		Driver:             driver,
		Brokers:            split(brokers),
		Topic:              topic,
		GroupID:            group,
		ClientID:           client,
		SessionTimeout:     30 * time.Second,
		Heartbeat:          3 * time.Second,
		RebalanceTimeout:   30 * time.Second,
		InitialOldest:      true,
		MaxTilesPerMessage: 1000,
		DedupeSize:         1 << 16,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
