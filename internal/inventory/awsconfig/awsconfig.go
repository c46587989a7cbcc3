// Package awsconfig answers inventory queries with AWS Config advanced
// queries. A subscription maps to an AWS account id; queries may reference it
// through the {subscriptionId} placeholder.
package awsconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/wafscan/wafscan/internal/checks"
)

const (
	defaultHTTPTimeout = 60 * time.Second

	// SubscriptionPlaceholder is replaced with the subscription id before a
	// query is sent.
	SubscriptionPlaceholder = "{subscriptionId}"

	maxPages = 100
)

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// ValidateAccountID reports whether id is a 12-digit AWS account id. Only
// validated ids are substituted into query expressions.
func ValidateAccountID(id string) error {
	if !accountIDPattern.MatchString(strings.TrimSpace(id)) {
		return fmt.Errorf("subscription %q is not a 12-digit AWS account id", id)
	}
	return nil
}

// Options configure the AWS Config source.
type Options struct {
	Region string
	// Aggregator switches to aggregate queries across accounts.
	Aggregator      string
	AuthType        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type configAPI interface {
	SelectResourceConfig(context.Context, *configservice.SelectResourceConfigInput, ...func(*configservice.Options)) (*configservice.SelectResourceConfigOutput, error)
	SelectAggregateResourceConfig(context.Context, *configservice.SelectAggregateResourceConfigInput, ...func(*configservice.Options)) (*configservice.SelectAggregateResourceConfigOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Source implements inventory.Source.
type Source struct {
	region     string
	aggregator string

	config configAPI
	sts    stsAPI
}

func New(ctx context.Context, opts Options) (*Source, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		return nil, errors.New("aws region is required")
	}

	authType := strings.ToLower(strings.TrimSpace(opts.AuthType))
	switch authType {
	case "", "default_chain":
		authType = "default_chain"
	case "access_key":
		if strings.TrimSpace(opts.AccessKeyID) == "" || strings.TrimSpace(opts.SecretAccessKey) == "" {
			return nil, errors.New("aws access key id and secret access key are required")
		}
	default:
		return nil, fmt.Errorf("unsupported aws credential auth type %q", opts.AuthType)
	}

	// The scan executor owns retries, so the SDK makes a single attempt.
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}),
		config.WithRetryMaxAttempts(1),
	}
	if authType == "access_key" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(opts.AccessKeyID),
			strings.TrimSpace(opts.SecretAccessKey),
			strings.TrimSpace(opts.SessionToken),
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts)
}

func NewWithConfig(cfg aws.Config, opts Options) (*Source, error) {
	return NewWithClients(opts, configservice.NewFromConfig(cfg), sts.NewFromConfig(cfg))
}

func NewWithClients(opts Options, cfgAPI configAPI, stsClient stsAPI) (*Source, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		return nil, errors.New("aws region is required")
	}
	if cfgAPI == nil {
		return nil, errors.New("aws config client is nil")
	}
	return &Source{
		region:     region,
		aggregator: strings.TrimSpace(opts.Aggregator),
		config:     cfgAPI,
		sts:        stsClient,
	}, nil
}

func (s *Source) Name() string { return "awsconfig" }

func (s *Source) Region() string { return s.region }

// Query runs query for subscriptionID and decodes every result document.
func (s *Source) Query(ctx context.Context, query, subscriptionID string) ([]checks.Row, error) {
	if err := ValidateAccountID(subscriptionID); err != nil {
		return nil, err
	}
	expr := strings.ReplaceAll(strings.TrimSpace(query), SubscriptionPlaceholder, strings.TrimSpace(subscriptionID))
	if expr == "" {
		return nil, errors.New("aws config query is empty")
	}

	var (
		rows      []checks.Row
		nextToken *string
	)
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("aws config query exceeded %d pages", maxPages)
		}

		docs, next, err := s.selectPage(ctx, expr, nextToken)
		if err != nil {
			return nil, classify(ctx, err)
		}
		for _, doc := range docs {
			var row checks.Row
			if err := json.Unmarshal([]byte(doc), &row); err != nil {
				return nil, fmt.Errorf("decode aws config result: %w", err)
			}
			rows = append(rows, row)
		}

		if aws.ToString(next) == "" {
			break
		}
		nextToken = next
	}
	if rows == nil {
		rows = []checks.Row{}
	}
	return rows, nil
}

func (s *Source) selectPage(ctx context.Context, expr string, token *string) ([]string, *string, error) {
	if s.aggregator != "" {
		out, err := s.config.SelectAggregateResourceConfig(ctx, &configservice.SelectAggregateResourceConfigInput{
			ConfigurationAggregatorName: aws.String(s.aggregator),
			Expression:                  aws.String(expr),
			NextToken:                   token,
		})
		if err != nil {
			return nil, nil, err
		}
		return out.Results, out.NextToken, nil
	}

	out, err := s.config.SelectResourceConfig(ctx, &configservice.SelectResourceConfigInput{
		Expression: aws.String(expr),
		NextToken:  token,
	})
	if err != nil {
		return nil, nil, err
	}
	return out.Results, out.NextToken, nil
}

// CallerIdentity returns the ARN of the principal the source runs as.
func (s *Source) CallerIdentity(ctx context.Context) (string, error) {
	if s.sts == nil {
		return "", errors.New("aws sts client is not configured")
	}
	out, err := s.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", classify(ctx, err)
	}
	if arn := aws.ToString(out.Arn); arn != "" {
		return arn, nil
	}
	return aws.ToString(out.Account), nil
}

var (
	throttlingCodes = map[string]struct{}{
		"ThrottlingException":          {},
		"Throttling":                   {},
		"TooManyRequestsException":     {},
		"RequestLimitExceeded":         {},
		"ServiceUnavailableException":  {},
		"InternalServerErrorException": {},
	}
	permissionCodes = map[string]struct{}{
		"AccessDeniedException":       {},
		"AccessDenied":                {},
		"UnauthorizedException":       {},
		"UnrecognizedClientException": {},
		"ExpiredTokenException":       {},
		"InvalidClientTokenId":        {},
	}
)

// classify maps SDK failures onto the executor's retry vocabulary.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := throttlingCodes[code]; ok {
			return checks.Transient(err)
		}
		if _, ok := permissionCodes[code]; ok {
			return checks.Permission(err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return checks.Transient(err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusTooManyRequests || status >= 500:
			return checks.Transient(err)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return checks.Permission(err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil {
		return checks.Transient(err)
	}
	return err
}
