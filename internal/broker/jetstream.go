package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/paychat/internal/model"
)

// JetStream is the NATS JetStream bus. Every instance reads the stream with
// its own ordered consumer so each one sees every message once, in order.
type JetStream struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	log    *slog.Logger
}

// NewJetStream creates or updates the MESSAGES stream on conn.
func NewJetStream(ctx context.Context, conn *nats.Conn, log *slog.Logger) (*JetStream, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream instance: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectGlobalRoom},
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStream{conn: conn, js: js, stream: stream, log: log}, nil
}

func (j *JetStream) Publish(ctx context.Context, msg model.ChatMessage) error {
	p, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	// The delivery key doubles as the JetStream dedupe key, so a retried
	// publish of the same stored message lands once.
	_, err = j.js.Publish(ctx,
		SubjectGlobalRoom,
		p,
		jetstream.WithMsgID(msg.DeliveryKey()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", SubjectGlobalRoom, err)
	}

	return nil
}

func (j *JetStream) Subscribe(ctx context.Context, out chan<- model.ChatMessage) error {
	consumer, err := j.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SubjectGlobalRoom},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create ordered consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var payload model.ChatMessage
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			j.log.Error("could not decode payload", slog.Any("error", err))
			return
		}

		select {
		case out <- payload:
		case <-ctx.Done():
		}
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		j.log.Warn("consumer error", slog.Any("error", err))
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
	}()

	return nil
}

// Close drains the underlying NATS connection.
func (j *JetStream) Close() error {
	return j.conn.Drain()
}
