package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-translator/internal/types"
)

func TestNewChatClientRequiresAPIKey(t *testing.T) {
	_, err := NewChatClient(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want types.ErrorCode
	}{
		{"timeout", "context deadline exceeded", types.ErrNetwork},
		{"canceled", "context canceled", types.ErrNetwork},
		{"rate limit", "Rate limit reached for gpt-4o", types.ErrAPIRateLimit},
		{"http 429", "request failed with status code: 429", types.ErrAPIRateLimit},
		{"server error", "request failed with status code: 503", types.ErrTransientCollaborator},
		{"bad gateway", "502 Bad Gateway", types.ErrTransientCollaborator},
		{"dns", "dial tcp: lookup api.example.com: no such host", types.ErrNetwork},
		{"refused", "connection refused", types.ErrNetwork},
		{"auth", "status 401 Unauthorized", types.ErrAPICall},
		{"other", "invalid request body", types.ErrAPICall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyAPIError(errors.New(tc.msg))
			assert.Equal(t, tc.want, types.CodeOf(got))
		})
	}
}

func TestClassifiedErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := classifyAPIError(cause)
	assert.ErrorIs(t, err, cause)
}

func TestTransientClassesAreRetryable(t *testing.T) {
	assert.True(t, types.IsTransient(classifyAPIError(errors.New("rate limit exceeded"))))
	assert.True(t, types.IsTransient(classifyAPIError(errors.New("status code: 503"))))
	assert.True(t, types.IsTransient(classifyAPIError(errors.New("connection refused"))))
	assert.False(t, types.IsTransient(classifyAPIError(errors.New("unauthorized"))))
}
