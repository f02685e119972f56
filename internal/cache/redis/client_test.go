package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadKey(t *testing.T) {
	assert.Equal(t, "dasos:payload:2022-23:2S:10II_105000005", payloadKey("2022-23", "2S", "10II_105000005"))
	assert.Equal(t, "dasos:payload:2022-23", payloadKey("2022-23", "", ""))
}

// TestRoundTrip needs a live server; set DASOS_TEST_REDIS_HOST to run it.
func TestRoundTrip(t *testing.T) {
	host := os.Getenv("DASOS_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("DASOS_TEST_REDIS_HOST not set")
	}

	c, err := NewClient(host, 6379, "", 15, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, _ = c.Invalidate(ctx, "1999-00")

	_, found, err := c.Get(ctx, "1999-00", "1S", "P_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "1999-00", "1S", "P_1", []byte(`{"profesores":[]}`)))
	data, found, err := c.Get(ctx, "1999-00", "1S", "P_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"profesores":[]}`, string(data))

	n, err := c.Invalidate(ctx, "1999-00")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
