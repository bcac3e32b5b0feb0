// Package mainconfig builds the AWS clients shared by the binaries.
package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
)

// LoadAWSConfig resolves region and credentials. Static keys win over the
// default chain when both are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// NewSQSClient points at AWS_ENDPOINT_OVERRIDE (LocalStack) when set.
func NewSQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	endpoint := endpointOverride(cfg)
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// NewSESClient points at AWS_ENDPOINT_OVERRIDE (LocalStack) when set.
func NewSESClient(awsCfg aws.Config, cfg *appconfig.Config) *sesv2.Client {
	endpoint := endpointOverride(cfg)
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

func endpointOverride(cfg *appconfig.Config) *string {
	if e := strings.TrimSpace(cfg.AWSEndpointOverride); e != "" {
		return aws.String(e)
	}
	return nil
}
