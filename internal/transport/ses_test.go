package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		CampaignID:  "camp-1",
		ContactID:   "c-1",
		Email:       "ana@example.com",
		FromName:    "Clinic",
		FromEmail:   "news@clinic.example",
		Subject:     "Hello Ana",
		HTMLContent: "<p>Hi</p>",
		TextContent: "Hi",
		Tags:        map[string]string{"campaign_id": "camp-1"},
		Headers: map[string]string{
			"List-Unsubscribe":      "<https://t.example.com/campaigns/unsubscribe/tok>",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	s := &SESSender{client: fake, configSet: "marketing"}

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-123", res.MessageID)
	assert.Equal(t, "ses", res.Transport)

	require.NotNil(t, fake.in)
	assert.Equal(t, []string{"ana@example.com"}, fake.in.Destination.ToAddresses)
	assert.Equal(t, `"Clinic" <news@clinic.example>`, aws.ToString(fake.in.FromEmailAddress))
	assert.Equal(t, "marketing", aws.ToString(fake.in.ConfigurationSetName))
	require.Len(t, fake.in.EmailTags, 1)
	assert.Equal(t, "campaign_id", aws.ToString(fake.in.EmailTags[0].Name))

	simple := fake.in.Content.Simple
	require.NotNil(t, simple)
	assert.Nil(t, fake.in.Content.Raw)
	assert.Equal(t, "Hello Ana", aws.ToString(simple.Subject.Data))
	assert.Equal(t, "<p>Hi</p>", aws.ToString(simple.Body.Html.Data))
	assert.Equal(t, "Hi", aws.ToString(simple.Body.Text.Data))
	require.Len(t, simple.Headers, 2)
	assert.Equal(t, "List-Unsubscribe", aws.ToString(simple.Headers[0].Name))
	assert.Equal(t, "<https://t.example.com/campaigns/unsubscribe/tok>", aws.ToString(simple.Headers[0].Value))
	assert.Equal(t, "List-Unsubscribe-Post", aws.ToString(simple.Headers[1].Name))
	assert.Equal(t, "List-Unsubscribe=One-Click", aws.ToString(simple.Headers[1].Value))
}

func TestSESSender_OptionalParts(t *testing.T) {
	fake := &fakeSES{}
	s := &SESSender{client: fake}

	msg := testMessage()
	msg.TextContent = ""
	msg.ReplyTo = "desk@clinic.example"
	_, err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, fake.in.Content.Simple.Body.Text)
	assert.NotNil(t, fake.in.Content.Simple.Body.Html)
	assert.Equal(t, []string{"desk@clinic.example"}, fake.in.ReplyToAddresses)
	assert.Nil(t, fake.in.ConfigurationSetName)

	msg.FromEmail = ""
	fake.in = nil
	_, err = s.Send(context.Background(), msg)
	assert.Error(t, err)
	assert.Nil(t, fake.in)
}

func TestSESSender_SendError(t *testing.T) {
	s := &SESSender{client: &fakeSES{err: errors.New("throttled")}}
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "throttled")
}

func TestLogSender(t *testing.T) {
	res, err := LogSender{}.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "log-"))
}
