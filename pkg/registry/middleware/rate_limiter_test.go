package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripperBacksOffOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	limiters := &RateLimiters{RPS: 100, Burst: 10}
	client := &http.Client{Transport: limiters.RoundTripper(http.DefaultTransport, "registry")}

	for i := 0; i < 3; i++ {
		res, err := client.Get(server.URL)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	}
	assert.Equal(t, 50.0, limiters.Limit("registry"))
	assert.Equal(t, 100.0, limiters.Limit("other"))
}

func TestRecover(t *testing.T) {
	limiters := &RateLimiters{RPS: 10, Burst: 1}
	limiters.Recover("unseen")
	assert.Equal(t, 10.0, limiters.Limit("unseen"))

	for i := 0; i < 10; i++ {
		limiters.backOff("registry")
	}
	assert.Equal(t, minLimit, limiters.Limit("registry"))

	limiters.Recover("registry")
	assert.InDelta(t, minLimit*recoverBy, limiters.Limit("registry"), 0.0001)

	for i := 0; i < 20; i++ {
		limiters.Recover("registry")
	}
	assert.Equal(t, 10.0, limiters.Limit("registry"))
}
