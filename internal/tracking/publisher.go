package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/phishsim/internal/domain"
)

// TrackingEvent is one recipient interaction captured at the edge.
type TrackingEvent struct {
	Kind        domain.EventKind `json:"kind"`
	CampaignID  string           `json:"campaign_id"`
	RecipientID string           `json:"recipient_id"`
	IPAddress   string           `json:"ip_address"`
	UserAgent   string           `json:"user_agent"`
	DeviceType  string           `json:"device_type,omitempty"`
	OS          string           `json:"os,omitempty"`
	Browser     string           `json:"browser,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Sink accepts tracking events. Publish must not block the HTTP response
// on downstream failures.
type Sink interface {
	Publish(ctx context.Context, evt TrackingEvent)
}

// Recorder is the engagement tracker as seen by the tracking edge.
type Recorder interface {
	RecordObserved(ctx context.Context, campaignID, recipientID string, kind domain.EventKind, ts time.Time, client domain.ClientInfo) ([]domain.EventKind, error)
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher forwards events to an SQS queue drained by Consumer.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, evt TrackingEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[tracking.Publisher] marshal event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			log.Printf("[tracking.Publisher] publish %s for campaign %s: %v", evt.Kind, evt.CampaignID, err)
		}
	}()
}

// DirectSink records events in-process without a queue.
type DirectSink struct {
	recorder Recorder
}

func NewDirectSink(r Recorder) *DirectSink {
	return &DirectSink{recorder: r}
}

func (d *DirectSink) Publish(ctx context.Context, evt TrackingEvent) {
	if _, err := d.recorder.RecordObserved(context.WithoutCancel(ctx), evt.CampaignID, evt.RecipientID, evt.Kind, evt.Timestamp, evt.Client()); err != nil {
		log.Printf("[tracking.DirectSink] record %s campaign=%s recipient=%s: %v",
			evt.Kind, evt.CampaignID, evt.RecipientID, err)
	}
}
