package handshake

import (
	"github.com/paidmesh/paidmesh/internal/errs"
)

// failureType classifies a handshake error into the "error_type" label
// values internal/metrics.HandshakesFailed expects: timeout,
// chain_mismatch, unauthorized, malformed.
func failureType(err error) string {
	switch errs.CodeOf(err) {
	case errs.CodeTimeout:
		return "timeout"
	case errs.CodeChainMismatch:
		return "chain_mismatch"
	case errs.CodeUnauthorized:
		return "unauthorized"
	default:
		if _, ok := err.(*RejectedError); ok {
			return "chain_mismatch"
		}
		return "malformed"
	}
}
