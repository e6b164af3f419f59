package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSQS struct {
	mu         sync.Mutex
	batches    [][]types.Message
	receiveErr error
	deleted    []string
	delayed    map[string]int32
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if f.receiveErr != nil {
		err := f.receiveErr
		f.receiveErr = nil
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: batch}, nil
	}
	f.mu.Unlock()

	// Long poll with nothing to deliver.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return &sqs.ReceiveMessageOutput{}, nil
	}
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed[aws.ToString(params.ReceiptHandle)] = params.VisibilityTimeout
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) settled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted) + len(f.delayed)
}

type outcome struct {
	retry bool
	delay int32
	err   error
}

type scriptedProcessor struct {
	outcomes map[string]outcome
}

func (p *scriptedProcessor) Process(_ context.Context, msg types.Message) (bool, int32, error) {
	o := p.outcomes[aws.ToString(msg.Body)]
	return o.retry, o.delay, o.err
}

func message(id string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(id),
	}
}

func TestWorkerSettlesEachMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakeSQS{
		batches:    [][]types.Message{{message("ok"), message("retry")}, {message("bad")}},
		receiveErr: errors.New("throttled"),
		delayed:    map[string]int32{},
	}
	proc := &scriptedProcessor{outcomes: map[string]outcome{
		"ok":    {},
		"retry": {retry: true, delay: 40, err: errors.New("smtp timeout")},
		"bad":   {err: errors.New("malformed")},
	}}

	w := NewWorker(client, "queue-url", proc)
	w.Concurrency = 2
	w.ErrorPause = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return client.settled() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"rh-ok", "rh-bad"}, client.deleted)
	assert.Equal(t, map[string]int32{"rh-retry": 40}, client.delayed)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, int32(20), Backoff(1))
	assert.Equal(t, int32(80), Backoff(3))
	assert.Equal(t, int32(2560), Backoff(8))
	assert.Equal(t, int32(3600), Backoff(9))
	assert.Equal(t, int32(3600), Backoff(40))
}
