package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"vnnews-clustering/internal/app"
	"vnnews-clustering/internal/platform/rabbitmq"
)

// RefitWorker consumes refit requests and rebuilds the clustering model, one
// request at a time.
type RefitWorker struct {
	conn      *amqp.Connection
	refresher app.Refresher
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRefitWorker(conn *amqp.Connection, refresher app.Refresher, queueName string, logger *slog.Logger) *RefitWorker {
	return &RefitWorker{
		conn:      conn,
		refresher: refresher,
		queueName: queueName,
		logger:    logger.With("component", "refit_worker"),
	}
}

func (w *RefitWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("refit failed", "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *RefitWorker) handle(ctx context.Context, body []byte) error {
	var req app.RefitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode refit request failed: %w", err)
	}
	w.logger.Info("refit requested", "by", req.RequestedBy, "at", req.RequestedAt)
	generation, err := w.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("refit done", "generation", generation)
	return nil
}

func (w *RefitWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
