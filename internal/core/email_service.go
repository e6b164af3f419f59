package core

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ponto.service/internal/core/model"
	"ponto.service/pkg/telemetry"
)

type EmailService interface {
	SendPunchReceipt(ctx context.Context, employee model.Employee, punch model.Punch) error
}

// SESClient is the part of the SES client used to send receipts.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailService struct {
	client SESClient
	sender string
	loc    *time.Location
}

func NewSESEmailService(client SESClient, sender string, loc *time.Location) *SESEmailService {
	if loc == nil {
		loc = time.UTC
	}
	return &SESEmailService{client: client, sender: sender, loc: loc}
}

func (s *SESEmailService) SendPunchReceipt(ctx context.Context, employee model.Employee, punch model.Punch) error {
	tracer := otel.Tracer("ses-email-service")
	ctx, span := tracer.Start(ctx, "send_email", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// Enrich span with employeeId if available in context
	if empID := telemetry.GetEmployeeIDFromContext(ctx); empID != "" {
		span.SetAttributes(attribute.String("app.employeeId", empID))
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{employee.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Comprovante de registro de ponto " + punch.Protocol),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(ReceiptBody(employee, punch, s.loc)),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	return err
}

// ReceiptBody renders the plain-text receipt for a punch.
func ReceiptBody(employee model.Employee, punch model.Punch, loc *time.Location) string {
	return fmt.Sprintf("Olá, %s.\n\nRegistramos seu ponto:\n\nTipo: %s\nData/hora: %s\nProtocolo: %s\n\nGuarde este protocolo para consultar seus registros do mês.",
		employee.Name, punch.Type, punch.Timestamp.In(loc).Format("02/01/2006 15:04:05"), punch.Protocol)
}
