package core

import (
	"context"
	"io"
)

type fakeProducer struct {
	payroll []any
	receipt []any
	err     error
}

func (p *fakeProducer) PublishPayroll(_ context.Context, body interface{}) error {
	p.payroll = append(p.payroll, body)
	return p.err
}

func (p *fakeProducer) PublishReceipt(_ context.Context, body interface{}) error {
	p.receipt = append(p.receipt, body)
	return p.err
}

type fakeEvidence struct {
	stored map[string][]byte
	urlErr error
}

func newFakeEvidence() *fakeEvidence {
	return &fakeEvidence{stored: map[string][]byte{}}
}

func (e *fakeEvidence) Put(_ context.Context, employeeID, _ string, body io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	ref := "selfies/" + employeeID + "/" + string(rune('a'+len(e.stored)))
	e.stored[ref] = b
	return ref, nil
}

func (e *fakeEvidence) URL(_ context.Context, ref string) (string, error) {
	if e.urlErr != nil {
		return "", e.urlErr
	}
	return "https://evidence.test/" + ref, nil
}

func ptr(v float64) *float64 { return &v }
