// Package events holds the broker-less EventPublisher used when no Kafka
// brokers are configured.
package events

import "github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"

type NopPublisher struct{}

func (NopPublisher) Publish(topic string, event any) error { return nil }

var _ interfaces.EventPublisher = NopPublisher{}
