package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey represents a unique identifier for a cached AWS response.
type CacheKey struct {
	// Service is the AWS service name (e.g., "ssm")
	Service string

	// Operation is the API operation (e.g., "GetParameters")
	Operation string

	// Region is the region the request was signed for
	Region string

	// Payload is the serialized JSON request body
	Payload []byte
}

// String generates a deterministic cache key string.
// Format: aws:service:operation:region:sha256(payload)
//
// Example:
//
//	aws:athena:ListQueryExecutions:eu-west-1:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a
func (k CacheKey) String() string {
	parts := []string{"aws"}

	for _, part := range []string{k.Service, k.Operation, k.Region} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	parts = append(parts, PayloadDigest(k.Payload))

	return strings.Join(parts, ":")
}

// PayloadDigest returns the hex SHA-256 of a request body.
// An empty body hashes like "{}" since both are sent as "{}".
func PayloadDigest(payload []byte) string {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
