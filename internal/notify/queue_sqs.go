package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// maxSQSWait is the SQS long-poll ceiling.
const maxSQSWait = 20 * time.Second

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue carries tasks through an AWS (or LocalStack) SQS queue. Messages
// are deleted as soon as they are received, so a task is handled at most
// once.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
}

// NewSQSQueue creates a queue wrapper around the provided SQS client.
func NewSQSQueue(client *sqs.Client, queueURL string) *SQSQueue {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	return newSQSQueue(client, queueURL)
}

func newSQSQueue(client sqsAPI, queueURL string) *SQSQueue {
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSQueue{client: client, queueURL: queueURL}
}

// Enqueue sends the task as a JSON message body.
func (q *SQSQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("notify: send SQS message: %w", err)
	}
	return nil
}

// Dequeue long-polls for a single message for up to wait, capped at 20s.
func (q *SQSQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	if wait > maxSQSWait {
		wait = maxSQSWait
	}
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("notify: receive SQS message: %w", err)
	}
	if len(output.Messages) == 0 {
		return nil, nil
	}

	msg := output.Messages[0]
	if handle := aws.ToString(msg.ReceiptHandle); handle != "" {
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: aws.String(handle),
		}); err != nil {
			return nil, fmt.Errorf("notify: delete SQS message: %w", err)
		}
	}

	var task Task
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &task); err != nil {
		return nil, fmt.Errorf("notify: decode task: %w", err)
	}
	return &task, nil
}

var _ Queue = (*SQSQueue)(nil)
