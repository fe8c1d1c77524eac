package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("sk-secret-one")
	b := Fingerprint("sk-secret-two")

	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint("sk-secret-one"))
	assert.NotContains(t, a, "sk-")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, Debug, ParseLogLevel("debug"))
	assert.Equal(t, Warning, ParseLogLevel("WARN"))
	assert.Equal(t, Error, ParseLogLevel("error"))
	assert.Equal(t, Info, ParseLogLevel("bogus"))
}
