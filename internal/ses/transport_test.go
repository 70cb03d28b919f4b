package ses

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jellyjelly/campaign-engine/internal/delivery"
)

type fakeAPI struct {
	sendIn    *sesv2.SendEmailInput
	sendErr   error
	listPages []*sesv2.ListSuppressedDestinationsOutput
	listCalls int
	putIn     *sesv2.PutSuppressedDestinationInput
	deleteErr error
	deleteIn  *sesv2.DeleteSuppressedDestinationInput
}

func (f *fakeAPI) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.sendIn = in
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func (f *fakeAPI) ListSuppressedDestinations(_ context.Context, _ *sesv2.ListSuppressedDestinationsInput, _ ...func(*sesv2.Options)) (*sesv2.ListSuppressedDestinationsOutput, error) {
	out := f.listPages[f.listCalls]
	f.listCalls++
	return out, nil
}

func (f *fakeAPI) PutSuppressedDestination(_ context.Context, in *sesv2.PutSuppressedDestinationInput, _ ...func(*sesv2.Options)) (*sesv2.PutSuppressedDestinationOutput, error) {
	f.putIn = in
	return &sesv2.PutSuppressedDestinationOutput{}, nil
}

func (f *fakeAPI) DeleteSuppressedDestination(_ context.Context, in *sesv2.DeleteSuppressedDestinationInput, _ ...func(*sesv2.Options)) (*sesv2.DeleteSuppressedDestinationOutput, error) {
	f.deleteIn = in
	return &sesv2.DeleteSuppressedDestinationOutput{}, f.deleteErr
}

func testTransport(f *fakeAPI) *Transport {
	return &Transport{client: f, fromName: "Campaigns", fromEmail: "campaigns@mail.example.com"}
}

func TestSendBuildsInput(t *testing.T) {
	f := &fakeAPI{}
	tr := testTransport(f)

	res := tr.Send(context.Background(), delivery.Message{
		To:      "user@example.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
		Tags:    []string{"campaign", "campaign-c1"},
		Headers: map[string]string{"List-Unsubscribe": "<https://example.com/u>"},
	})

	if !res.Success || res.ID != "msg-1" {
		t.Fatalf("result = %+v", res)
	}
	in := f.sendIn
	if got := aws.ToString(in.FromEmailAddress); got != "Campaigns <campaigns@mail.example.com>" {
		t.Errorf("from = %q", got)
	}
	if in.Destination.ToAddresses[0] != "user@example.com" {
		t.Errorf("to = %v", in.Destination.ToAddresses)
	}
	if got := aws.ToString(in.Content.Simple.Subject.Data); got != "Hello" {
		t.Errorf("subject = %q", got)
	}
	if len(in.EmailTags) != 2 || aws.ToString(in.EmailTags[0].Name) != "campaign" {
		t.Errorf("tags = %v", in.EmailTags)
	}
	if len(in.ReplyToAddresses) != 1 || in.ReplyToAddresses[0] != "support@mail.example.com" {
		t.Errorf("reply-to = %v", in.ReplyToAddresses)
	}
	if len(in.Content.Simple.Headers) != 1 || aws.ToString(in.Content.Simple.Headers[0].Name) != "List-Unsubscribe" {
		t.Errorf("headers = %v", in.Content.Simple.Headers)
	}
}

func TestSendError(t *testing.T) {
	f := &fakeAPI{sendErr: &types.MessageRejected{Message: aws.String("rejected")}}
	res := testTransport(f).Send(context.Background(), delivery.Message{To: "u@example.com"})
	if res.Success || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSuppressedEmailsPagination(t *testing.T) {
	f := &fakeAPI{listPages: []*sesv2.ListSuppressedDestinationsOutput{
		{
			SuppressedDestinationSummaries: []types.SuppressedDestinationSummary{
				{EmailAddress: aws.String("Bounce@Example.com"), Reason: types.SuppressionListReasonBounce},
			},
			NextToken: aws.String("page2"),
		},
		{
			SuppressedDestinationSummaries: []types.SuppressedDestinationSummary{
				{EmailAddress: aws.String("complaint@example.com"), Reason: types.SuppressionListReasonComplaint},
			},
		},
	}}

	suppressed, err := testTransport(f).SuppressedEmails(context.Background())
	if err != nil {
		t.Fatalf("SuppressedEmails: %v", err)
	}
	if f.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", f.listCalls)
	}
	if !suppressed["bounce@example.com"] || !suppressed["complaint@example.com"] {
		t.Errorf("suppressed = %v", suppressed)
	}
}

func TestAddUnsubscribeUsesComplaintReason(t *testing.T) {
	f := &fakeAPI{}
	if err := testTransport(f).AddUnsubscribe(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("AddUnsubscribe: %v", err)
	}
	if aws.ToString(f.putIn.EmailAddress) != "user@example.com" {
		t.Errorf("address = %q", aws.ToString(f.putIn.EmailAddress))
	}
	if f.putIn.Reason != types.SuppressionListReasonComplaint {
		t.Errorf("reason = %v", f.putIn.Reason)
	}
}

func TestRemoveUnsubscribeNotFoundIsSuccess(t *testing.T) {
	f := &fakeAPI{deleteErr: &types.NotFoundException{Message: aws.String("no such destination")}}
	if err := testTransport(f).RemoveUnsubscribe(context.Background(), "ghost@example.com"); err != nil {
		t.Errorf("not-found should be success, got %v", err)
	}
}
