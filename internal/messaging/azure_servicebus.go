package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/admissions/services/pipeline/config"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DraftRequest is the queue payload asking the worker to generate an
// offer letter draft for an application.
type DraftRequest struct {
	ApplicationID uuid.UUID  `json:"application_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	ProgramID     uuid.UUID  `json:"program_id"`
	RequestedAt   time.Time  `json:"requested_at"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
}

// MessageHandler processes a single received message
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error

// Publisher sends draft generation requests to the queue
type Publisher interface {
	SendDraftRequest(ctx context.Context, req DraftRequest) error
	Close() error
}

// AzureServiceBus wraps the queue client for both sending and receiving
type AzureServiceBus struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	tracer    tracing.Tracer
}

// NewAzureServiceBus creates a new Azure Service Bus client
func NewAzureServiceBus(cfg config.AzureConfig, tracer tracing.Tracer) (*AzureServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &AzureServiceBus{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		tracer:    tracer,
	}, nil
}

// SendDraftRequest enqueues a draft generation request
func (s *AzureServiceBus) SendDraftRequest(ctx context.Context, req DraftRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal draft request")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"type": "offer_letter_draft_request",
			"time": time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to send draft request")
	}

	log.Info().
		Str("application_id", req.ApplicationID.String()).
		Str("queue", s.queueName).
		Msg("Draft request enqueued")

	return nil
}

// ProcessMessages receives messages from the queue and dispatches them to
// the handler until the context is cancelled. Handler failures abandon the
// message so the queue redelivers it.
func (s *AzureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, message := range messages {
			txn := s.tracer.StartTransaction("process-queue-message")

			if err := handler(ctx, message, txn); err != nil {
				s.tracer.RecordError(txn, err)
				log.Error().
					Err(err).
					Str("message_id", message.MessageID).
					Msg("Failed to process message, abandoning for redelivery")

				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).Msg("Failed to abandon message")
				}
			} else {
				if completeErr := receiver.CompleteMessage(ctx, message, nil); completeErr != nil {
					log.Error().Err(completeErr).Str("message_id", message.MessageID).Msg("Failed to complete message")
				}
			}

			s.tracer.EndTransaction(txn)
		}
	}
}

// ExtractDraftRequest decodes a draft request from a queue message
func ExtractDraftRequest(message *azservicebus.ReceivedMessage) (*DraftRequest, error) {
	var req DraftRequest
	if err := json.Unmarshal(message.Body, &req); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal draft request")
	}
	if req.ApplicationID == uuid.Nil {
		return nil, errors.New("draft request missing application id")
	}
	return &req, nil
}

// Close closes the Service Bus client
func (s *AzureServiceBus) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	if s.client != nil {
		return s.client.Close(context.Background())
	}

	return nil
}
