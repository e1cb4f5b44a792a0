package events

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaClient guarda a lista de brokers e fabrica writers/readers
type KafkaClient struct {
	Brokers []string
}

func NewKafkaClient(brokersCSV string) *KafkaClient {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &KafkaClient{Brokers: brokers}
}

func (c *KafkaClient) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *KafkaClient) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func (c *KafkaClient) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publica eventos no tópico usando o id do pedido como chave,
// preservando a ordem por pedido
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Key()),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID())},
			{Key: "event_type", Value: []byte(evt.EventType())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.EventType(), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer entrega mensagens a um único handler. Cada handler usa seu
// próprio consumer group, então falhas de um não travam o outro
type KafkaConsumer struct {
	reader       messageReader
	handler      Handler
	timeout      time.Duration
	retryBackoff time.Duration
}

func NewKafkaConsumer(reader *kafka.Reader, handler Handler, timeout time.Duration) *KafkaConsumer {
	return &KafkaConsumer{
		reader:       reader,
		handler:      handler,
		timeout:      timeout,
		retryBackoff: 2 * time.Second,
	}
}

// Run consome até o contexto ser cancelado. O offset é confirmado mesmo se o
// handler falhar; novas tentativas ficam a cargo do próprio handler
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("❌ [KAFKA] handler=%s read error: %v", c.handler.Name(), err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryBackoff):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("❌ [KAFKA] handler=%s commit error: %v", c.handler.Name(), err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	evt, err := Decode(msg.Value)
	if err != nil {
		log.Printf("⚠️  [KAFKA] handler=%s offset=%d skipping undecodable message: %v", c.handler.Name(), msg.Offset, err)
		return
	}

	if err := Dispatch(ctx, c.handler, evt, c.timeout); err != nil {
		log.Printf("❌ [EVENT] handler=%s type=%s event=%s key=%s | Error=%v",
			c.handler.Name(), evt.EventType(), evt.EventID(), evt.Key(), err)
	}
}
