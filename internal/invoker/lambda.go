package invoker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lambda-invoker/pkg/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
)

// LambdaInvoker is the subset of the Lambda client used here.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

type LambdaConfig struct {
	FunctionName string
	// Endpoint overrides the service URL, e.g. a local runtime emulator.
	// Requests are then signed with anonymous credentials.
	Endpoint string
	Region   string
	Timeout  time.Duration
	Encoder  Encoder
}

func (c *LambdaConfig) Validate() error {
	if c.FunctionName == "" {
		return errors.New("functionName cannot be empty")
	}
	if c.Region == "" {
		return errors.New("region cannot be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than zero")
	}
	return nil
}

// LambdaForwarder invokes the function synchronously through the Lambda API.
type LambdaForwarder struct {
	client       LambdaInvoker
	functionName string
	timeout      time.Duration
	encode       Encoder
}

func NewLambdaForwarder(ctx context.Context, cfg LambdaConfig) (*LambdaForwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lambda forwarder config: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newLambdaForwarderWithClient(client, cfg), nil
}

func newLambdaForwarderWithClient(client LambdaInvoker, cfg LambdaConfig) *LambdaForwarder {
	if cfg.Encoder == nil {
		cfg.Encoder = RawPayload
	}
	return &LambdaForwarder{
		client:       client,
		functionName: cfg.FunctionName,
		timeout:      cfg.Timeout,
		encode:       cfg.Encoder,
	}
}

// Forward makes one RequestResponse invocation. A function error or an API
// error carrying a status code counts as an answer and yields Rejected.
func (f *LambdaForwarder) Forward(ctx context.Context, msg *models.Message) Result {
	started := time.Now()

	payload, err := f.encode(msg)
	if err != nil {
		return transportFailed(err, started)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := f.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(f.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return classifyInvokeError(err, started)
	}

	status := int(out.StatusCode)
	if status == 0 {
		status = http.StatusOK
	}
	if out.FunctionError != nil {
		res := resultFor(status, string(out.Payload), started)
		res.Outcome = Rejected
		res.Err = fmt.Errorf("function error: %s", aws.ToString(out.FunctionError))
		return res
	}
	return resultFor(status, string(out.Payload), started)
}

func classifyInvokeError(err error, started time.Time) Result {
	var withStatus interface{ HTTPStatusCode() int }
	if !errors.As(err, &withStatus) || withStatus.HTTPStatusCode() == 0 {
		return transportFailed(err, started)
	}

	body := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		body = fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	res := resultFor(withStatus.HTTPStatusCode(), body, started)
	res.Err = err
	return res
}
