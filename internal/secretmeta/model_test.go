package secretmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	region := Region{APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"}
	a := Fingerprint("token-a", region)
	b := Fingerprint("token-a", region)
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersByToken(t *testing.T) {
	region := Region{APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"}
	a := Fingerprint("token-a", region)
	b := Fingerprint("token-b", region)
	assert.NotEqual(t, a, b)
}

func TestFingerprintDiffersByRegion(t *testing.T) {
	a := Fingerprint("token", Region{APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"})
	b := Fingerprint("token", Region{APIURL: "https://api.bitwarden.eu", IdentityURL: "https://identity.bitwarden.eu"})
	assert.NotEqual(t, a, b)
}

func TestFingerprintIsHexSHA256(t *testing.T) {
	fp := Fingerprint("token", Region{APIURL: "a", IdentityURL: "b"})
	assert.Len(t, string(fp), 64)
}
