package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"discussion_syncer/internal/domain"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// DiscussionMessage announces a discussion committed by a sync.
type DiscussionMessage struct {
	Action     string          `json:"action"` // "create" or "update"
	Discussion DiscussionEvent `json:"discussion"`
	Timestamp  time.Time       `json:"timestamp"`
}

type DiscussionEvent struct {
	ID            int64       `json:"id"`
	Type          string      `json:"type"`
	Owner         domain.Ref  `json:"owner"`
	Author        *domain.Ref `json:"author,omitempty"`
	Title         string      `json:"title"`
	Date          *time.Time  `json:"date,omitempty"`
	CommentsCount int         `json:"comments_count"`
	LikesCount    int         `json:"likes_count"`
	VotesCount    int         `json:"votes_count"`
}

func newMessage(d *domain.Discussion, isNew bool, now time.Time) DiscussionMessage {
	action := "update"
	if isNew {
		action = "create"
	}

	event := DiscussionEvent{
		ID:            d.ID,
		Type:          string(d.Type),
		Owner:         d.Owner,
		Title:         d.Title,
		CommentsCount: d.CommentsCount,
		LikesCount:    d.LikesCount,
		VotesCount:    d.VotesCount,
	}
	if !d.Author.IsZero() {
		author := d.Author
		event.Author = &author
	}
	if !d.Date.IsZero() {
		date := d.Date
		event.Date = &date
	}

	return DiscussionMessage{
		Action:     action,
		Discussion: event,
		Timestamp:  now.UTC(),
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, d *domain.Discussion, isNew bool) error {
	msg := newMessage(d, isNew, time.Now())

	body, err := jsonAPI.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published discussion",
		"discussion_id", d.ID,
		"action", msg.Action,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
