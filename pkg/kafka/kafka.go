package kafka

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/fuegoaustral/ticketera-sub000/config"
	"github.com/fuegoaustral/ticketera-sub000/pkg/applogger"
)

func NewProducer() *kafka.Producer {
	c := config.Get()

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  c.Kafka.BootstrapServers,
		"client.id":          c.Kafka.ClientID,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		applogger.GetLogrus().WithError(err).Fatal("failed to create kafka producer")
	}

	return p
}
