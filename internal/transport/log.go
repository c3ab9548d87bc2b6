// Package transport holds the outbound email senders: AWS SES for real
// delivery and a log sender for local runs.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// LogSender accepts every message and logs it instead of delivering.
type LogSender struct{}

// Send logs msg and returns a synthetic message id.
func (LogSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.Email == "" {
		return nil, fmt.Errorf("message has no recipient")
	}
	id := "log-" + uuid.New().String()
	logger.Info("email (log transport)",
		"email", msg.Email, "campaign_id", msg.CampaignID, "subject", msg.Subject, "message_id", id)
	return &domain.SendResult{MessageID: id, Transport: "log", SentAt: time.Now().UTC()}, nil
}
