package traffic

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
)

// Algo selects the identity digest variant.
type Algo int

const (
	// AlgoStrong is the long digest exposed for identification and audit
	// logging.
	AlgoStrong Algo = iota
	// AlgoCompact is the short digest used exclusively as the rate table key,
	// to bound the table's on-disk size.
	AlgoCompact
)

// Digest returns the hex-encoded keyed digest of a raw client address under
// secret. AlgoStrong is HMAC-SHA512, AlgoCompact is HMAC-SHA256. An empty
// address still yields a deterministic digest; there are no error conditions.
func Digest(rawAddr string, algo Algo, secret []byte) string {
	var mac hash.Hash
	switch algo {
	case AlgoCompact:
		mac = hmac.New(sha256.New, secret)
	default:
		mac = hmac.New(sha512.New, secret)
	}
	mac.Write([]byte(rawAddr))
	return hex.EncodeToString(mac.Sum(nil))
}
