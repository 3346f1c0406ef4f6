// Package queue provides the SQS producer that hands forecast sync requests
// to the forecast-sync worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"surfmaster/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SyncTrigger enqueues SyncRequestMessages on the sync queue.
type SyncTrigger struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewSyncTrigger creates a SyncTrigger for queueURL.
func NewSyncTrigger(client SQSSender, queueURL string, logger *slog.Logger) *SyncTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncTrigger{
		client:   client,
		queueURL: queueURL,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// RequestSync enqueues a sync for spotIDs (all spots when empty) and returns
// the message as sent. The request id is generated here; the trace id is the
// caller's request id when present.
func (t *SyncTrigger) RequestSync(ctx context.Context, spotIDs []int64, force bool) (*types.SyncRequestMessage, error) {
	msg := types.SyncRequestMessage{
		RequestID:   "sync_" + uuid.New().String(),
		SpotIDs:     spotIDs,
		Force:       force,
		RequestedAt: t.clock.Now(),
		TraceID:     types.GetRequestID(ctx),
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to marshal SyncRequestMessage: %w", err)
	}

	_, err = t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"force": {
				DataType:    aws.String("String"),
				StringValue: aws.String(strconv.FormatBool(force)),
			},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue forecast sync", err)
	}

	t.logger.InfoContext(ctx, "forecast sync message sent",
		"queue_url", t.queueURL,
		"request_id", msg.RequestID,
		"trace_id", msg.TraceID,
		"spot_ids", spotIDs,
		"force", force,
	)
	return &msg, nil
}

// ParseSyncRequest decodes an SQS message body.
func ParseSyncRequest(body string) (types.SyncRequestMessage, error) {
	var msg types.SyncRequestMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, fmt.Errorf("queue: malformed sync request: %w", err)
	}
	return msg, nil
}
