// Package ses implements the email transport and suppression store on
// top of Amazon SES v2. It is the alternate provider; selection happens
// at startup from configuration.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// api is the subset of the SES v2 client the transport uses.
type api interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	ListSuppressedDestinations(ctx context.Context, in *sesv2.ListSuppressedDestinationsInput, opts ...func(*sesv2.Options)) (*sesv2.ListSuppressedDestinationsOutput, error)
	PutSuppressedDestination(ctx context.Context, in *sesv2.PutSuppressedDestinationInput, opts ...func(*sesv2.Options)) (*sesv2.PutSuppressedDestinationOutput, error)
	DeleteSuppressedDestination(ctx context.Context, in *sesv2.DeleteSuppressedDestinationInput, opts ...func(*sesv2.Options)) (*sesv2.DeleteSuppressedDestinationOutput, error)
}

// Transport sends campaign mail through SES and manages the account
// suppression list. It satisfies delivery.Transport and
// delivery.SuppressionStore.
type Transport struct {
	client    api
	fromName  string
	fromEmail string
}

// NewTransport builds an SES transport. Static credentials from the
// config are used when present, otherwise the default AWS credential
// chain applies.
func NewTransport(ctx context.Context, cfg config.SESConfig) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Campaigns"
	}
	return &Transport{
		client:    sesv2.NewFromConfig(awsCfg),
		fromName:  fromName,
		fromEmail: cfg.FromEmail,
	}, nil
}

// Send submits one message via the SES v2 SendEmail API.
func (t *Transport) Send(ctx context.Context, msg delivery.Message) delivery.SendResult {
	content := &types.EmailContent{
		Simple: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body:    &types.Body{Html: &types.Content{Data: aws.String(msg.HTML)}},
			Headers: headersFor(msg),
		},
	}
	if msg.Text != "" {
		content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text)}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", t.fromName, t.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          content,
		EmailTags:        tagsFor(msg.Tags),
		ReplyToAddresses: []string{replyTo(t.fromEmail)},
	}

	out, err := t.client.SendEmail(ctx, in)
	if err != nil {
		return delivery.SendResult{Error: err.Error()}
	}
	return delivery.SendResult{Success: true, ID: aws.ToString(out.MessageId)}
}

func headersFor(msg delivery.Message) []types.MessageHeader {
	if len(msg.Headers) == 0 {
		return nil
	}
	headers := make([]types.MessageHeader, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, types.MessageHeader{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}
	return headers
}

// tagsFor converts flat analytics tags to SES message tags. SES tag
// names are restricted to [A-Za-z0-9_-], which our tag vocabulary
// already satisfies.
func tagsFor(tags []string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.MessageTag, 0, len(tags))
	for _, tag := range tags {
		out = append(out, types.MessageTag{
			Name:  aws.String(tag),
			Value: aws.String("1"),
		})
	}
	return out
}

func replyTo(fromEmail string) string {
	if at := strings.Index(fromEmail, "@"); at >= 0 {
		return "support" + fromEmail[at:]
	}
	return fromEmail
}

// SuppressedEmails returns every address on the account suppression
// list, lowercased. SES paginates with an opaque token.
func (t *Transport) SuppressedEmails(ctx context.Context) (map[string]bool, error) {
	suppressed := make(map[string]bool)
	var nextToken *string
	for {
		out, err := t.client.ListSuppressedDestinations(ctx, &sesv2.ListSuppressedDestinationsInput{
			NextToken: nextToken,
			PageSize:  aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("listing suppressed destinations: %w", err)
		}
		for _, s := range out.SuppressedDestinationSummaries {
			suppressed[strings.ToLower(aws.ToString(s.EmailAddress))] = true
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	log.Printf("[SES] suppression list has %d addresses", len(suppressed))
	return suppressed, nil
}

// Suppressions lists entries of one type. The SES account suppression
// list records only bounce and complaint reasons; unsubscribes written
// through AddUnsubscribe land under the complaint reason, so both kinds
// map to it here.
func (t *Transport) Suppressions(ctx context.Context, kind domain.SuppressionType) ([]domain.SuppressionEntry, error) {
	var reason types.SuppressionListReason
	switch kind {
	case domain.SuppressionBounce:
		reason = types.SuppressionListReasonBounce
	case domain.SuppressionComplaint, domain.SuppressionUnsubscribe:
		reason = types.SuppressionListReasonComplaint
	default:
		return nil, fmt.Errorf("unknown suppression type %q", kind)
	}

	var entries []domain.SuppressionEntry
	var nextToken *string
	for {
		out, err := t.client.ListSuppressedDestinations(ctx, &sesv2.ListSuppressedDestinationsInput{
			Reasons:   []types.SuppressionListReason{reason},
			NextToken: nextToken,
			PageSize:  aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("listing suppressed destinations: %w", err)
		}
		for _, s := range out.SuppressedDestinationSummaries {
			e := domain.SuppressionEntry{
				Address: aws.ToString(s.EmailAddress),
				Type:    kind,
			}
			if s.LastUpdateTime != nil {
				e.CreatedAt = s.LastUpdateTime.UTC().Format("Mon, 02 Jan 2006 15:04:05 MST")
			}
			entries = append(entries, e)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return entries, nil
}

// AddUnsubscribe places an address on the account suppression list.
func (t *Transport) AddUnsubscribe(ctx context.Context, email string) error {
	_, err := t.client.PutSuppressedDestination(ctx, &sesv2.PutSuppressedDestinationInput{
		EmailAddress: aws.String(email),
		Reason:       types.SuppressionListReasonComplaint,
	})
	if err != nil {
		return fmt.Errorf("suppressing destination: %w", err)
	}
	return nil
}

// RemoveUnsubscribe deletes an address from the account suppression
// list. A not-found error is treated as success.
func (t *Transport) RemoveUnsubscribe(ctx context.Context, email string) error {
	_, err := t.client.DeleteSuppressedDestination(ctx, &sesv2.DeleteSuppressedDestinationInput{
		EmailAddress: aws.String(email),
	})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("removing suppressed destination: %w", err)
	}
	return nil
}
