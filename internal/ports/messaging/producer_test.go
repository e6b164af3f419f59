package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	destination string
	body        []byte
}

type fakeSender struct {
	messages []sent
	err      error
}

func (f *fakeSender) SendMessage(_ context.Context, destination string, body []byte) error {
	f.messages = append(f.messages, sent{destination, body})
	return f.err
}

func TestProducerRoutesToQueues(t *testing.T) {
	sender := &fakeSender{}
	p := NewProducer(sender, "payroll-url", "receipt-url")
	event := PunchRecordedEvent{PunchID: 7, EmployeeID: "emp-1", PunchType: "ENTRY", PunchedAt: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)}

	require.NoError(t, p.PublishPayroll(context.Background(), event))
	require.NoError(t, p.PublishReceipt(context.Background(), event))

	require.Len(t, sender.messages, 2)
	assert.Equal(t, "payroll-url", sender.messages[0].destination)
	assert.Equal(t, "receipt-url", sender.messages[1].destination)

	var decoded PunchRecordedEvent
	require.NoError(t, json.Unmarshal(sender.messages[0].body, &decoded))
	assert.Equal(t, event, decoded)
}

func TestProducerWrapsSendError(t *testing.T) {
	boom := errors.New("throttled")
	p := NewProducer(&fakeSender{err: boom}, "payroll-url", "receipt-url")

	err := p.PublishPayroll(context.Background(), PunchRecordedEvent{})

	assert.ErrorIs(t, err, boom)
}
