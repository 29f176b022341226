package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LocalEndpoint(t *testing.T) {
	ctx := context.Background()
	client, cfg, err := New(ctx, Options{Endpoint: "http://localhost:8000"})
	require.NoError(t, err)

	assert.Equal(t, DefaultRegion, cfg.Region)
	creds, err := cfg.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", creds.AccessKeyID)
	assert.Equal(t, "http://localhost:8000", aws.ToString(client.Options().BaseEndpoint))
}

func TestLoadConfig_Region(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), Options{Region: "eu-north-1", Endpoint: "http://localhost:8000"})
	require.NoError(t, err)
	assert.Equal(t, "eu-north-1", cfg.Region)
}
