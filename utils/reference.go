package utils

import (
	"crypto/rand"
	"fmt"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewDepositReference generates a client-visible order reference of the
// form DEP-<unix millis>-<random5>. The random suffix guards against two
// orders created in the same millisecond.
func NewDepositReference() string {
	return fmt.Sprintf("%s-%d-%s", DepositReferencePrefix, UTCNow().UnixMilli(), randomSuffix(5))
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, v := range b {
		out[i] = referenceAlphabet[int(v)%len(referenceAlphabet)]
	}
	return string(out)
}
