package kafka

import (
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack

	// TLS settings
	TLSEnabled bool
	TLSCert    string
	TLSKey     string
	TLSCA      string

	// SASL settings
	SASLEnabled   bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "donation-default-group",
		ClientID:      "donation-client",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1, // All replicas

		TLSEnabled:  false,
		SASLEnabled: false,
	}
}

// Topics contains all donation platform Kafka topic names
var Topics = struct {
	StockEvents       string
	ReservationEvents string
	RequestEvents     string
	MatchEvents       string
	AlertEvents       string
}{
	StockEvents:       "donation.stock.events",
	ReservationEvents: "donation.reservations.events",
	RequestEvents:     "donation.requests.events",
	MatchEvents:       "donation.matches.events",
	AlertEvents:       "donation.alerts.events",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for donation topics
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		{Name: Topics.StockEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 60 * 60 * 1000},
		{Name: Topics.ReservationEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 60 * 60 * 1000},
		{Name: Topics.RequestEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 30 * 24 * 60 * 60 * 1000},
		{Name: Topics.MatchEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 30 * 24 * 60 * 60 * 1000},
		{Name: Topics.AlertEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 90 * 24 * 60 * 60 * 1000}, // 90 days for audit
	}
}

// TopicForEventType returns the topic a donation event type belongs on.
func TopicForEventType(eventType string) string {
	switch {
	case hasPrefix(eventType, "donation.stock."):
		return Topics.StockEvents
	case hasPrefix(eventType, "donation.reservation."):
		return Topics.ReservationEvents
	case hasPrefix(eventType, "donation.request."):
		return Topics.RequestEvents
	case hasPrefix(eventType, "donation.match."):
		return Topics.MatchEvents
	case hasPrefix(eventType, "donation.alert."):
		return Topics.AlertEvents
	default:
		return Topics.StockEvents
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
