package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
)

// Consumer drains the tracking queue into the engagement tracker.
type Consumer struct {
	sqsClient SQSAPI
	queueURL  string
	recorder  Recorder
	done      chan struct{}
}

func NewConsumer(sqsClient SQSAPI, queueURL string, recorder Recorder) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		recorder:  recorder,
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[tracking.Consumer] started (queue=%s)", c.queueURL)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := c.receiveOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[tracking.Consumer] receive error: %v", err)
			time.Sleep(5 * time.Second)
		}
	}
}

// receiveOnce handles one long-poll batch. Messages that fail with a
// transient error stay on the queue for redelivery.
func (c *Consumer) receiveOnce(ctx context.Context) error {
	out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		var evt TrackingEvent
		if msg.Body == nil || json.Unmarshal([]byte(*msg.Body), &evt) != nil {
			log.Printf("[tracking.Consumer] dropping malformed message")
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.processEvent(ctx, evt); err != nil {
			log.Printf("[tracking.Consumer] %s campaign=%s recipient=%s: %v", evt.Kind, evt.CampaignID, evt.RecipientID, err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		log.Printf("[tracking.Consumer] delete message: %v", err)
	}
}

// processEvent returns nil for events that can never succeed so they are
// removed from the queue.
func (c *Consumer) processEvent(ctx context.Context, evt TrackingEvent) error {
	recorded, err := c.recorder.RecordObserved(ctx, evt.CampaignID, evt.RecipientID, evt.Kind, evt.Timestamp, evt.Client())
	switch {
	case errors.Is(err, engagement.ErrUnknownTarget),
		errors.Is(err, engagement.ErrInvalidCampaignState),
		errors.Is(err, engagement.ErrInvalidKind),
		errors.Is(err, campaign.ErrNotFound):
		log.Printf("[tracking.Consumer] discarding %s campaign=%s recipient=%s: %v", evt.Kind, evt.CampaignID, evt.RecipientID, err)
		return nil
	case err != nil:
		return err
	}
	if len(recorded) > 0 {
		log.Printf("[tracking.Consumer] recorded %v campaign=%s recipient=%s", recorded, evt.CampaignID, evt.RecipientID)
	}
	return nil
}
