package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_0123456789abcdef"

func TestWebhookVerifier(t *testing.T) {
	verifier := NewWebhookVerifier(testWebhookSecret)

	t.Run("SignVerifyRoundTrip", func(t *testing.T) {
		body := []byte(`{"event_id":"evt_1","event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc","amount":"100.00"}`)

		sig, err := verifier.Sign(body)
		require.NoError(t, err)
		require.NotEmpty(t, sig)

		assert.NoError(t, verifier.Verify(body, sig))
	})

	t.Run("KeyOrderIndependent", func(t *testing.T) {
		bodyA := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc","meta":{"b":2,"a":1}}`)
		bodyB := []byte(`{"meta":{"a":1,"b":2},"order_id":"ref_abc","event":"ORDER.PAYMENT.RECEIVED"}`)

		sigA, err := verifier.Sign(bodyA)
		require.NoError(t, err)
		sigB, err := verifier.Sign(bodyB)
		require.NoError(t, err)

		assert.Equal(t, sigA, sigB)
		assert.NoError(t, verifier.Verify(bodyB, sigA))
	})

	t.Run("SignatureFieldExcluded", func(t *testing.T) {
		unsigned := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc"}`)
		sig, err := verifier.Sign(unsigned)
		require.NoError(t, err)

		// A delivery that embeds its own signature verifies against the
		// same digest, since the field is stripped before hashing.
		embedded := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc","signature":"` + sig + `"}`)
		assert.NoError(t, verifier.Verify(embedded, sig))
	})

	t.Run("TamperedPayloadRejected", func(t *testing.T) {
		body := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc"}`)
		sig, err := verifier.Sign(body)
		require.NoError(t, err)

		tampered := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_xyz"}`)
		assert.Error(t, verifier.Verify(tampered, sig))
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		body := []byte(`{"event":"ORDER.PAYMENT.RECEIVED","order_id":"ref_abc"}`)
		sig, err := NewWebhookVerifier("whsec_other").Sign(body)
		require.NoError(t, err)

		assert.Error(t, verifier.Verify(body, sig))
	})

	t.Run("MissingSignature", func(t *testing.T) {
		assert.Error(t, verifier.Verify([]byte(`{"event":"x"}`), ""))
	})

	t.Run("MalformedSignature", func(t *testing.T) {
		assert.Error(t, verifier.Verify([]byte(`{"event":"x"}`), "not-hex!"))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		sig, err := verifier.Sign([]byte(`{"event":"x"}`))
		require.NoError(t, err)
		assert.Error(t, verifier.Verify([]byte(`{"event":`), sig))
	})
}

func TestCanonicalPayload(t *testing.T) {
	t.Run("SortsNestedKeys", func(t *testing.T) {
		canonical, err := CanonicalPayload([]byte(`{"b":{"y":2,"x":1},"a":true}`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":true,"b":{"x":1,"y":2}}`, string(canonical))
	})

	t.Run("StripsTopLevelSignature", func(t *testing.T) {
		canonical, err := CanonicalPayload([]byte(`{"a":1,"signature":"deadbeef"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(canonical))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		_, err := CanonicalPayload([]byte(`not json`))
		assert.Error(t, err)
	})
}
