package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decred/minotari/internal/config"
)

// TestSignMatchesKnownVector checks the signature header against minotari
// spec §8 scenario 6: secret "s", timestamp 1700000000, body {"x":1}. The
// expected digest is HMAC-SHA256("s", `1700000000.{"x":1}`), computed
// independently of Sign.
func TestSignMatchesKnownVector(t *testing.T) {
	got := Sign([]byte("s"), 1700000000, []byte(`{"x":1}`))
	require.Regexp(t, `^t=1700000000,v1=[0-9a-f]{64}$`, got)
	require.Equal(t, "t=1700000000,v1=d8c7ce5a24e86860a24bbfcd104b0b48bb4473cd91b2548c6cac9ce437e0a80d", got)

	// Signing is deterministic: same inputs, same signature.
	again := Sign([]byte("s"), 1700000000, []byte(`{"x":1}`))
	require.Equal(t, got, again)

	// A different secret must produce a different signature.
	other := Sign([]byte("different"), 1700000000, []byte(`{"x":1}`))
	require.NotEqual(t, got, other)
}

func TestBackoffForGrowsExponentiallyAndCaps(t *testing.T) {
	d1 := backoffFor(1)
	require.InDelta(t, float64(config.WebhookBaseBackoffSeconds)*time.Second.Seconds(), d1.Seconds(), float64(config.WebhookBaseBackoffSeconds)*0.1)

	d2 := backoffFor(2)
	require.InDelta(t, float64(config.WebhookBaseBackoffSeconds*4)*time.Second.Seconds(), d2.Seconds(), float64(config.WebhookBaseBackoffSeconds*4)*0.1)

	// A very large attempt count must be capped, not overflow.
	dMax := backoffFor(50)
	require.LessOrEqual(t, dMax, config.WebhookMaxBackoff+config.WebhookMaxBackoff/10)
}
