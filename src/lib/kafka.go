package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func GetKafkaProducerConfig() kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"client.id":         "spsProducer",
		"acks":              "all",
	}
}

func GetKafkaConsumerConfig(groupId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"group.id":          groupId,
		"auto.offset.reset": "smallest",
	}
}

// KafkaConsumer subscribes to the given topics and feeds each message body to
// handler on a background goroutine until a broker error stops the loop.
func KafkaConsumer(groupId string, topics []string, handler func(value []byte)) {
	log.Println("Initializing kafka Consumer...")
	cfg := GetKafkaConsumerConfig(groupId)
	cfg["retry.backoff.ms"] = 100
	master, err := kafka.NewConsumer(&cfg)
	if err != nil {
		log.Printf("Error on master: %s\n", err.Error())
		return
	}
	err = master.SubscribeTopics(topics, nil)
	if err != nil {
		log.Printf("Error on consumer: %s\n", err.Error())
		return
	}
	go func() {
		log.Println("[BACKGROUND]: waiting for messages...")
		run := true
		for run == true {
			ev := master.Poll(100)
			switch e := ev.(type) {
			case *kafka.Message:
				handler(e.Value)
			case kafka.Error:
				fmt.Fprintf(os.Stderr, "%% Error: %v\n", e)
				run = false
			default:
			}
		}
		master.Close()
	}()
}

func KafkaProduceMessage(clientId string, topic string, payload map[string]any) error {
	cfg := GetKafkaProducerConfig()
	cfg["client.id"] = clientId
	p, err := kafka.NewProducer(&cfg)
	if err != nil {
		log.Printf("Error creating producer: %s\n", err.Error())
		return err
	}

	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error serializing payload: %s\n", err.Error())
		return err
	}

	err = p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)
	if err != nil {
		log.Printf("Error producing message to [%s]: %s\n", topic, err.Error())
		return err
	}
	return nil
}

func KafkaCreateTopics(topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
	})
	if err != nil {
		log.Printf("Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:         topic,
			NumPartitions: 10,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}
