package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"lms/internal/api/v1/dto"
	"lms/internal/model"
	"lms/internal/repository"

	"github.com/rs/zerolog"
)

var ErrInvalidPush = errors.New("push message has no message id")

// DLQService stores Pub/Sub messages that exhausted their deliveries, such as
// submission or certificate events no subscriber could handle.
type DLQService interface {
	ProcessAndSave(ctx context.Context, req *dto.PubSubPushRequest) error
}

type dlqService struct {
	repo   repository.DLQRepository
	logger zerolog.Logger
}

func NewDLQService(repo repository.DLQRepository, logger zerolog.Logger) DLQService {
	return &dlqService{repo: repo, logger: logger.With().Str("service", "DLQService").Logger()}
}

func (s *dlqService) ProcessAndSave(ctx context.Context, req *dto.PubSubPushRequest) error {
	if req.Message.MessageID == "" {
		return ErrInvalidPush
	}
	payload, err := base64.StdEncoding.DecodeString(req.Message.Data)
	if err != nil {
		// keep the raw data so nothing is lost
		payload = []byte(req.Message.Data)
	}

	var attributes *string
	if len(req.Message.Attributes) > 0 {
		if b, err := json.Marshal(req.Message.Attributes); err == nil {
			str := string(b)
			attributes = &str
		}
	}

	msg := &model.DeadLetterMessage{
		SubscriptionName: req.Subscription,
		MessageID:        req.Message.MessageID,
		Payload:          string(payload),
		Attributes:       attributes,
		Status:           "unprocessed",
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to store dead-lettered message")
		return err
	}
	s.logger.Warn().Str("message_id", msg.MessageID).Str("subscription", msg.SubscriptionName).Msg("Dead-lettered message stored")
	return nil
}
