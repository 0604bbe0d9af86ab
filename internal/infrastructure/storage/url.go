package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7/pkg/policy"
)

// publicURL joins base, bucket and key with single slashes.
func publicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}

// publicReadPolicy renders a read-only bucket policy for every object under prefix.
func publicReadPolicy(bucket, prefix string) (string, error) {
	if p := strings.Trim(prefix, "/"); p != "" {
		prefix = p + "/"
	} else {
		prefix = ""
	}

	doc, err := json.Marshal(policy.BucketAccessPolicy{
		Version:    "2012-10-17",
		Statements: policy.SetPolicy(nil, policy.BucketPolicyReadOnly, bucket, prefix),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode bucket policy: %w", err)
	}
	return string(doc), nil
}
