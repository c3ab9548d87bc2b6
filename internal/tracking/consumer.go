package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Suppressor applies an unsubscribe received from the queue.
type Suppressor interface {
	Suppress(ctx context.Context, contactID string, channel domain.Channel, reason string, source domain.SuppressionSource) error
}

// Consumer drains the tracking queue and applies events to the recipient
// counters. A message is deleted only after it was applied.
type Consumer struct {
	client     sqsAPI
	queueURL   string
	recorder   Recorder
	suppressor Suppressor
	backoff    time.Duration
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewConsumer(client *sqs.Client, queueURL string, recorder Recorder, suppressor Suppressor) *Consumer {
	return newConsumer(client, queueURL, recorder, suppressor)
}

func newConsumer(client sqsAPI, queueURL string, recorder Recorder, suppressor Suppressor) *Consumer {
	return &Consumer{
		client:     client,
		queueURL:   queueURL,
		recorder:   recorder,
		suppressor: suppressor,
		backoff:    5 * time.Second,
		done:       make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	logger.Info("SQS tracking consumer started", "queue", c.queueURL)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
}

// Stop ends polling and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("SQS receive", "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		c.handleBatch(ctx, out.Messages)
	}
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []types.Message) {
	for _, msg := range msgs {
		var evt Event
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
			logger.Warn("SQS bad tracking message", "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		if err := c.apply(ctx, evt); err != nil {
			// Left on the queue; redelivered after the visibility timeout.
			logger.Error("SQS apply tracking event", "event_type", string(evt.EventType), "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
}

func (c *Consumer) apply(ctx context.Context, evt Event) error {
	switch evt.EventType {
	case EventOpen:
		return c.recorder.RecordOpen(ctx, evt.CampaignID, evt.ContactID)
	case EventClick:
		return c.recorder.RecordClick(ctx, evt.CampaignID, evt.ContactID, evt.LinkURL)
	case EventUnsubscribe:
		if c.suppressor == nil {
			return nil
		}
		return c.suppressor.Suppress(ctx, evt.ContactID, domain.ChannelEmail, "unsubscribe link", domain.SourceUnsubscribe)
	default:
		logger.Warn("unknown tracking event type", "event_type", string(evt.EventType))
		return nil
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("SQS delete", "error", err)
	}
}
