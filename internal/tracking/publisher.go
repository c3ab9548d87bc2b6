package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type EventType string

const (
	EventOpen        EventType = "opened"
	EventClick       EventType = "clicked"
	EventUnsubscribe EventType = "unsubscribed"
)

// Event is the message body exchanged over the tracking queue.
type Event struct {
	EventType  EventType `json:"event_type"`
	CampaignID string    `json:"campaign_id,omitempty"`
	ContactID  string    `json:"contact_id"`
	LinkURL    string    `json:"link_url,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// sqsAPI is the subset of the SQS client used by the publisher and consumer.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher sends tracking events to SQS. It satisfies Recorder, so the
// HTTP handlers can write to the queue instead of the database.
type Publisher struct {
	client   sqsAPI
	queueURL string
	now      func() time.Time
}

func NewPublisher(client *sqs.Client, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, now: time.Now}
}

// Publish sends one event. Callers run it off the request path.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = p.now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", evt.EventType, err)
	}
	return nil
}

func (p *Publisher) RecordOpen(ctx context.Context, campaignID, contactID string) error {
	return p.Publish(ctx, Event{EventType: EventOpen, CampaignID: campaignID, ContactID: contactID})
}

func (p *Publisher) RecordClick(ctx context.Context, campaignID, contactID, url string) error {
	return p.Publish(ctx, Event{EventType: EventClick, CampaignID: campaignID, ContactID: contactID, LinkURL: url})
}
