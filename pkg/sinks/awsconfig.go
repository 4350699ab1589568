package sinks

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves the AWS config for a sink. When key refs are set the
// named environment variables supply static credentials, otherwise the
// default chain applies.
func loadAWSConfig(ctx context.Context, region, accessKeyRef, secretKeyRef string) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(region),
	}

	if accessKeyRef != "" && secretKeyRef != "" {
		accessKey := os.Getenv(accessKeyRef)
		secretKey := os.Getenv(secretKeyRef)
		if accessKey == "" || secretKey == "" {
			return aws.Config{}, fmt.Errorf("aws credential env vars %s/%s are not set", accessKeyRef, secretKeyRef)
		}
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
