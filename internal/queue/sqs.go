package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	// SQS caps visibility timeouts at 12 hours.
	maxVisibility  = 12 * time.Hour
	sqsBatchMax    = 10
	requeueRounds  = 10
	releaseSeconds = 1
)

// SQSAPI is the subset of the SQS client used by SQSBroker.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSOptions configures an SQSBroker.
type SQSOptions struct {
	Region        string
	Endpoint      string
	QueueURL      string // FIFO queue
	DeadLetterURL string // FIFO queue
	Slots         int
	PollTimeout   time.Duration
}

// NewSQSClient builds an SQS client. A non-empty endpoint points it at a
// local emulator with static credentials.
func NewSQSClient(ctx context.Context, log *slog.Logger, opts SQSOptions) (*sqs.Client, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	var clientOpts []func(*sqs.Options)
	if opts.Endpoint != "" {
		log.Info("using custom sqs endpoint", slog.String("endpoint", opts.Endpoint))
		configOpts = append(configOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, clientOpts...), nil
}

// SQSBroker runs tasks through an SQS FIFO queue. The message group is the
// task key, so SQS itself never hands out two tasks of one conversation at
// once. Retry delays are visibility timeouts and the attempt number is the
// receive count.
type SQSBroker struct {
	client      SQSAPI
	queueURL    string
	deadURL     string
	slots       int
	pollTimeout time.Duration
	logger      *slog.Logger
}

func NewSQSBroker(log *slog.Logger, client SQSAPI, opts SQSOptions) *SQSBroker {
	if log == nil {
		log = slog.Default()
	}
	if opts.Slots < 1 {
		opts.Slots = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	return &SQSBroker{
		client:      client,
		queueURL:    opts.QueueURL,
		deadURL:     opts.DeadLetterURL,
		slots:       opts.Slots,
		pollTimeout: opts.PollTimeout,
		logger:      log.With(slog.String("component", "sqs_broker")),
	}
}

func (b *SQSBroker) Slots() int { return b.slots }

func (b *SQSBroker) Publish(ctx context.Context, task Task) error {
	return b.send(ctx, b.queueURL, task)
}

func (b *SQSBroker) send(ctx context.Context, url string, task Task) error {
	raw, err := encodeTask(task)
	if err != nil {
		return err
	}
	// a fresh dedup id per send keeps requeued and dead-lettered copies distinct
	dedup := task.ID + "-" + strconv.Itoa(task.Attempt) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(url),
		MessageBody:            aws.String(raw),
		MessageGroupId:         aws.String(task.Key),
		MessageDeduplicationId: aws.String(dedup),
	})
	if err != nil {
		return fmt.Errorf("send task %s: %w", task.ID, err)
	}
	return nil
}

func (b *SQSBroker) Consume(ctx context.Context, slot int) (*Delivery, error) {
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(b.queueURL),
		MaxNumberOfMessages:         1,
		WaitTimeSeconds:             int32(b.pollTimeout / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	msg := out.Messages[0]
	receipt := aws.ToString(msg.ReceiptHandle)
	task, err := decodeTask(aws.ToString(msg.Body))
	if err != nil {
		b.logger.Error("dropping undecodable message", slog.String("message_id", aws.ToString(msg.MessageId)), slog.Any("error", err))
		if _, derr := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{QueueUrl: aws.String(b.queueURL), ReceiptHandle: aws.String(receipt)}); derr != nil {
			b.logger.Warn("delete undecodable message failed", slog.Any("error", derr))
		}
		return nil, nil
	}
	if count, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil && count > task.Attempt {
		task.Attempt = count
	}
	return &Delivery{Task: task, Slot: slot, receipt: receipt}, nil
}

func (b *SQSBroker) Ack(ctx context.Context, d *Delivery) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(d.receipt),
	})
	if err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.ID, err)
	}
	return nil
}

// Retry hides the message for delay; SQS counts the next receive as a new attempt.
func (b *SQSBroker) Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error {
	if delay > maxVisibility {
		delay = maxVisibility
	}
	return b.changeVisibility(ctx, d, int32(delay/time.Second))
}

func (b *SQSBroker) Release(ctx context.Context, d *Delivery) error {
	return b.changeVisibility(ctx, d, releaseSeconds)
}

func (b *SQSBroker) changeVisibility(ctx context.Context, d *Delivery, seconds int32) error {
	_, err := b.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(b.queueURL),
		ReceiptHandle:     aws.String(d.receipt),
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return fmt.Errorf("change visibility of task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (b *SQSBroker) Bury(ctx context.Context, d *Delivery, cause error) error {
	task := d.Task
	if cause != nil {
		task.LastError = cause.Error()
	}
	if err := b.send(ctx, b.deadURL, task); err != nil {
		return err
	}
	return b.Ack(ctx, d)
}

// ListDead peeks at up to limit dead tasks without consuming them.
func (b *SQSBroker) ListDead(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 || limit > sqsBatchMax {
		limit = sqsBatchMax
	}
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.deadURL),
		MaxNumberOfMessages: int32(limit),
		VisibilityTimeout:   0,
	})
	if err != nil {
		return nil, fmt.Errorf("list dead tasks: %w", err)
	}
	tasks := make([]Task, 0, len(out.Messages))
	for _, msg := range out.Messages {
		task, err := decodeTask(aws.ToString(msg.Body))
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (b *SQSBroker) Requeue(ctx context.Context, id string) (Task, error) {
	for round := 0; round < requeueRounds; round++ {
		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(b.deadURL),
			MaxNumberOfMessages: sqsBatchMax,
			VisibilityTimeout:   30,
		})
		if err != nil {
			return Task{}, fmt.Errorf("scan dead tasks: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}
		for _, msg := range out.Messages {
			task, err := decodeTask(aws.ToString(msg.Body))
			if err != nil || task.ID != id {
				continue
			}
			task = resetAttempts(task)
			if err := b.Publish(ctx, task); err != nil {
				return Task{}, err
			}
			if _, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(b.deadURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				return Task{}, fmt.Errorf("remove dead task %s: %w", id, err)
			}
			return task, nil
		}
	}
	return Task{}, fmt.Errorf("dead task %s: %w", id, ErrEmpty)
}

// PromoteDue is a no-op: SQS resurfaces messages when their visibility ends.
func (b *SQSBroker) PromoteDue(context.Context, time.Time) (int, error) { return 0, nil }

// RecoverStranded is a no-op: unacknowledged messages reappear on their own.
func (b *SQSBroker) RecoverStranded(context.Context) (int, error) { return 0, nil }

func (b *SQSBroker) Depth(ctx context.Context) (Depth, error) {
	main, err := b.attributes(ctx, b.queueURL,
		types.QueueAttributeNameApproximateNumberOfMessages,
		types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
	)
	if err != nil {
		return Depth{}, err
	}
	dead, err := b.attributes(ctx, b.deadURL, types.QueueAttributeNameApproximateNumberOfMessages)
	if err != nil {
		return Depth{}, err
	}
	return Depth{
		Ready:      main[types.QueueAttributeNameApproximateNumberOfMessages],
		Processing: main[types.QueueAttributeNameApproximateNumberOfMessagesNotVisible],
		Delayed:    main[types.QueueAttributeNameApproximateNumberOfMessagesDelayed],
		Dead:       dead[types.QueueAttributeNameApproximateNumberOfMessages],
	}, nil
}

func (b *SQSBroker) attributes(ctx context.Context, url string, names ...types.QueueAttributeName) (map[types.QueueAttributeName]int64, error) {
	out, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: names,
	})
	if err != nil {
		return nil, fmt.Errorf("queue attributes: %w", err)
	}
	values := make(map[types.QueueAttributeName]int64, len(names))
	for _, name := range names {
		n, _ := strconv.ParseInt(out.Attributes[string(name)], 10, 64)
		values[name] = n
	}
	return values, nil
}
