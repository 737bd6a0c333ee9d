package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer(t *testing.T) {
	running := false
	s := &healthServer{running: func() bool { return running }}

	resp, err := s.Check(context.Background(), &healthPb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthPb.HealthCheckResponse_NOT_SERVING, resp.Status)

	running = true
	resp, err = s.Check(context.Background(), &healthPb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthPb.HealthCheckResponse_SERVING, resp.Status)

	assert.Error(t, s.Watch(&healthPb.HealthCheckRequest{}, nil))
}
