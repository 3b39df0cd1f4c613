package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/costwatch/costwatch/internal/types"
)

// NewTargetConfig builds an aws.Config scoped to one target account. An empty
// credential pair falls back to the default credential chain of the running
// environment, which is the single-account mode.
func NewTargetConfig(ctx context.Context, region string, creds types.AccountCredentials) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if !creds.IsZero() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("❌ Failed to load AWS config: %v", err)
	}

	if region != "" {
		cfg.Region = region
	}

	return cfg, nil
}
