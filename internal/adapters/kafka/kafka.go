package kafka

import (
	"github.com/IBM/sarama"
)

const clientID = "task-notify"

func newConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	return config
}

// InitKafkaProducer returns a producer that hashes on the message key, so one user's
// events stay ordered on a single partition.
func InitKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := newConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return producer, nil
}

// InitKafkaConsumerGroup starts from the newest offset: missed notifications are not replayed.
func InitKafkaConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	config := newConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return group, nil
}
