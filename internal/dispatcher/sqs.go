package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"golang.org/x/sync/errgroup"

	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

type SQSConfig struct {
	URL               string
	Workers           int
	MaxAttempts       int
	WaitTimeSeconds   int64
	VisibilityTimeout int64
	// RetryDelay is how long a failed message stays invisible before redelivery.
	RetryDelay time.Duration
}

// SQSQueue delivers work through an SQS queue. A message is deleted only after
// its handler succeeds; failures become visible again and are retried until
// the receive count reaches MaxAttempts.
type SQSQueue struct {
	svc sqsiface.SQSAPI
	cfg SQSConfig
	log *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewSQSQueue(svc sqsiface.SQSAPI, cfg SQSConfig, log *logging.Logger) *SQSQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WaitTimeSeconds <= 0 || cfg.WaitTimeSeconds > 20 {
		cfg.WaitTimeSeconds = 20
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 120
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &SQSQueue{svc: svc, cfg: cfg, log: log, done: make(chan struct{})}
}

func (q *SQSQueue) Enqueue(ctx context.Context, w Work) error {
	if !w.IsValid() {
		return errors.New("invalid work: empty link")
	}
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding work: %w", err)
	}
	_, err = q.svc.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.URL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending work to sqs: %w", err)
	}
	return nil
}

func (q *SQSQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Run long-polls the queue and hands messages to the workers.
func (q *SQSQueue) Run(ctx context.Context, handler Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-q.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	messages := make(chan *sqs.Message, q.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(messages)
		return q.dispatch(gctx, messages)
	})
	for i := 1; i <= q.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			q.log.Debug("starting worker", "worker", id)
			for msg := range messages {
				q.process(context.WithoutCancel(gctx), id, msg, handler)
			}
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (q *SQSQueue) dispatch(ctx context.Context, out chan<- *sqs.Message) error {
	q.log.Info("starting dispatcher", "queue", q.cfg.URL)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := q.svc.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.cfg.URL),
			MaxNumberOfMessages: aws.Int64(10),
			VisibilityTimeout:   aws.Int64(q.cfg.VisibilityTimeout),
			WaitTimeSeconds:     aws.Int64(q.cfg.WaitTimeSeconds),
			AttributeNames:      []*string{aws.String(sqs.MessageSystemAttributeNameApproximateReceiveCount)},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Warn("error receiving message", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range result.Messages {
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (q *SQSQueue) process(ctx context.Context, id int, msg *sqs.Message, handler Handler) {
	var w Work
	if err := json.Unmarshal([]byte(aws.StringValue(msg.Body)), &w); err != nil || !w.IsValid() {
		q.log.Error("dropping malformed message", "worker", id, "message_id", aws.StringValue(msg.MessageId), "error", err)
		q.delete(ctx, msg)
		return
	}
	w.Attempt = receiveCount(msg)

	if err := handler(ctx, w); err != nil {
		if w.Attempt >= q.cfg.MaxAttempts {
			q.log.Error("work failed, giving up", "worker", id, "link", w.Link, "attempt", w.Attempt, "error", err)
			q.delete(ctx, msg)
			return
		}
		q.log.Warn("work failed, message will be redelivered", "worker", id, "link", w.Link, "attempt", w.Attempt, "error", err)
		_, verr := q.svc.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(q.cfg.URL),
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: aws.Int64(int64(q.cfg.RetryDelay / time.Second)),
		})
		if verr != nil {
			q.log.Warn("error putting message back to the queue", "error", verr)
		}
		return
	}
	q.delete(ctx, msg)
}

func (q *SQSQueue) delete(ctx context.Context, msg *sqs.Message) {
	_, err := q.svc.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.URL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		q.log.Warn("error deleting message", "message_id", aws.StringValue(msg.MessageId), "error", err)
	}
}

func receiveCount(msg *sqs.Message) int {
	if v, ok := msg.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]; ok {
		if n, err := strconv.Atoi(aws.StringValue(v)); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
