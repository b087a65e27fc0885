package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_Send(t *testing.T) {
	api := &fakeSES{}
	m := &sesMailer{client: api, fromAddress: "hello@studio.example", fromName: "Studio", logger: slog.Default()}

	require.NoError(t, m.Send(context.Background(), "alice@example.com", "Hi", "<p>hi</p>", ""))
	require.Equal(t, "Studio <hello@studio.example>", aws.ToString(api.input.Source))
	require.Equal(t, []string{"alice@example.com"}, api.input.Destination.ToAddresses)
	require.Equal(t, "<p>hi</p>", aws.ToString(api.input.Message.Body.Html.Data))
	require.Nil(t, api.input.Message.Body.Text)

	api.err = errors.New("throttled")
	require.Error(t, m.Send(context.Background(), "alice@example.com", "Hi", "", "hi"))
}

func TestNewMailer_Providers(t *testing.T) {
	ctx := context.Background()

	m, err := NewMailer(ctx, MailerConfig{}, slog.Default())
	require.NoError(t, err)
	require.IsType(t, &noopMailer{}, m)

	m, err = NewMailer(ctx, MailerConfig{Provider: "carrier-pigeon"}, slog.Default())
	require.NoError(t, err)
	require.IsType(t, &noopMailer{}, m)

	m, err = NewMailer(ctx, MailerConfig{
		Provider:    "ses",
		FromAddress: "hello@studio.example",
		SES:         SESConfig{Region: "eu-west-1", AccessKeyID: "AKIA", SecretAccessKey: "secret"},
	}, slog.Default())
	require.NoError(t, err)
	require.IsType(t, &sesMailer{}, m)
}
