package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/ornate/go-jewelry-api/internal/model"
	"github.com/ornate/go-jewelry-api/internal/notification"
	"github.com/ornate/go-jewelry-api/internal/repository"
	"github.com/ornate/go-jewelry-api/internal/service"
)

const (
	dlxExchange    = "order.confirmations.dlx"
	dlqQueueName   = "order.confirmations.dlq"
	idempotencyTTL = 24 * time.Hour
)

// ConfirmationWorker consumes committed orders off the queue and sends
// the confirmation email. Keeping the mail call here means the HTTP
// response never waits on a third-party mail server.
type ConfirmationWorker struct {
	channel     *amqp.Channel
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	sender      notification.Sender
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewConfirmationWorker(
	ch *amqp.Channel,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	sender notification.Sender,
	redisClient *redis.Client,
	log *slog.Logger,
) *ConfirmationWorker {
	return &ConfirmationWorker{
		channel:     ch,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		sender:      sender,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares the confirmation queue and its DLX/DLQ.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, service.ConfirmationQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(service.ConfirmationQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": service.ConfirmationQueue,
	}); err != nil {
		return fmt.Errorf("declare confirmation queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *ConfirmationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(service.ConfirmationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("confirmation worker started")
	return nil
}

func (w *ConfirmationWorker) Stop() { close(w.done) }

func (w *ConfirmationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var cm model.ConfirmationMessage
	if err := json.Unmarshal(msg.Body, &cm); err != nil {
		w.log.Error("unmarshal confirmation message", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", cm.OrderID, "user_id", cm.UserID)

	idempotencyKey := "confirmation_sent:" + cm.OrderID.String()
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("confirmation already sent, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.sendConfirmation(ctx, cm); err != nil {
		log.Error("send confirmation failed", "error", err)
		_ = msg.Nack(false, false) // to DLQ
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("confirmation sent")
}

func (w *ConfirmationWorker) sendConfirmation(ctx context.Context, cm model.ConfirmationMessage) error {
	order, err := w.orderRepo.GetByID(ctx, cm.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", cm.OrderID)
	}

	user, err := w.userRepo.GetByID(ctx, cm.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", cm.UserID)
	}

	return w.sender.SendOrderConfirmation(user.Email, user.FirstName, order)
}
