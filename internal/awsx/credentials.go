package awsx

import (
	"encoding/json"
	"fmt"
)

// DefaultRegion is the home region used for identity checks, region discovery
// and as the fallback region hint on stored credentials.
const DefaultRegion = "us-east-1"

// StaticCredentials is the decrypted form of a stored access key pair.
// Never persisted in plaintext and never logged.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Stored blobs exist in two historical naming conventions for the same
// semantic fields. Both must be accepted when parsing.
type storedCredentials struct {
	AccessKeyIDSnake     string `json:"access_key_id"`
	AccessKeyIDCamel     string `json:"accessKeyId"`
	SecretAccessKeySnake string `json:"secret_access_key"`
	SecretAccessKeyCamel string `json:"secretAccessKey"`
	Region               string `json:"region"`
}

// ParseStaticCredentials decodes a decrypted credential blob, checking the
// snake_case key names first and falling back to camelCase. Missing either
// semantic field under both conventions is an error.
func ParseStaticCredentials(data []byte) (StaticCredentials, error) {
	var stored storedCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return StaticCredentials{}, fmt.Errorf("parsing credential blob: %w", err)
	}

	accessKey := stored.AccessKeyIDSnake
	if accessKey == "" {
		accessKey = stored.AccessKeyIDCamel
	}
	secretKey := stored.SecretAccessKeySnake
	if secretKey == "" {
		secretKey = stored.SecretAccessKeyCamel
	}

	if accessKey == "" || secretKey == "" {
		return StaticCredentials{}, fmt.Errorf("credential blob missing access key or secret")
	}

	region := stored.Region
	if region == "" {
		region = DefaultRegion
	}

	return StaticCredentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          region,
	}, nil
}

// MarshalStoredCredentials serializes credentials for encryption, using the
// camelCase convention for new writes.
func MarshalStoredCredentials(c StaticCredentials) ([]byte, error) {
	return json.Marshal(map[string]string{
		"accessKeyId":     c.AccessKeyID,
		"secretAccessKey": c.SecretAccessKey,
		"region":          c.Region,
	})
}
