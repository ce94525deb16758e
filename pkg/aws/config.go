package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS config. When AWS_ENDPOINT (or one of
// the service specific AWS_SQS_ENDPOINT / AWS_DYNAMODB_ENDPOINT variables) is
// set every client targets that URL, which is how LocalStack is used locally.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if endpoint := Endpoint(); endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cfg, nil
}

// Endpoint returns the configured endpoint override, if any.
func Endpoint() string {
	for _, key := range []string{"AWS_SQS_ENDPOINT", "AWS_DYNAMODB_ENDPOINT", "AWS_ENDPOINT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
