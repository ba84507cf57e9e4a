package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"vnnews-clustering/internal/app"
)

type RefitPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewRefitPublisher(conn *amqp.Connection, queueName string) *RefitPublisher {
	return &RefitPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *RefitPublisher) PublishRefit(ctx context.Context, req app.RefitRequest) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal refit payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    req.RequestedAt,
		},
	); err != nil {
		return fmt.Errorf("publish refit failed: %w", err)
	}
	return nil
}
