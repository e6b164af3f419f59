package sqsadapter

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSProducerSendsToReceiptQueue(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSProducer(client, "payroll-url", "receipt-url")

	require.NoError(t, p.PublishReceipt(context.Background(), map[string]string{"employeeId": "emp-1"}))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "receipt-url", aws.ToString(client.inputs[0].QueueUrl))
	assert.JSONEq(t, `{"employeeId":"emp-1"}`, aws.ToString(client.inputs[0].MessageBody))
	assert.NotNil(t, client.inputs[0].MessageAttributes)
}
