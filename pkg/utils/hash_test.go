package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStable(t *testing.T) {
	assert.Equal(t, Fingerprint("weather in boston"), Fingerprint("weather in boston"))
	assert.NotEqual(t, Fingerprint("weather in boston"), Fingerprint("weather in berlin"))
	assert.Len(t, Fingerprint(""), 32)
}

func TestFingerprintKnownValue(t *testing.T) {
	// md5("abc")
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Fingerprint("abc"))
}
