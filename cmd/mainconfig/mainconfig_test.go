package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{AWSRegion: "us-west-2", AWSAccessKeyID: "AKID", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if awsCfg.Region != "us-west-2" {
		t.Fatalf("expected region us-west-2, got %q", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKID" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}
}

func TestEndpointOverride(t *testing.T) {
	if endpointOverride(&appconfig.Config{}) != nil {
		t.Fatal("expected no override")
	}
	cfg := &appconfig.Config{AWSEndpointOverride: " http://localhost:4566 "}
	if got := aws.ToString(endpointOverride(cfg)); got != "http://localhost:4566" {
		t.Fatalf("unexpected endpoint %q", got)
	}

	awsCfg := aws.Config{Region: "us-east-1"}
	if NewSQSClient(awsCfg, cfg) == nil || NewSESClient(awsCfg, cfg) == nil {
		t.Fatal("expected clients")
	}
}
