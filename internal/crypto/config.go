package crypto

import "fmt"

// ProviderProperties holds the provider-integration fields carried by
// Organization, CourseFamily and Course rows (spec.md §3): a GitLab base URL,
// a group/namespace path, and an access token. Only Token is encrypted at
// rest; URL and GroupPath are not sensitive.
type ProviderProperties struct {
	URL       string
	GroupPath string
	Token     string
}

// EncryptProviderProperties encrypts the Token field in-place and returns the
// modified value. If key is nil, props is returned unchanged (no-op), which
// is how the store behaves when no encryption key is configured.
func EncryptProviderProperties(props ProviderProperties, key []byte) (ProviderProperties, error) {
	if key == nil || props.Token == "" {
		return props, nil
	}

	enc, err := Encrypt(props.Token, key)
	if err != nil {
		return props, fmt.Errorf("encrypt provider token: %w", err)
	}
	props.Token = enc

	return props, nil
}

// DecryptProviderProperties decrypts the Token field in-place and returns the
// modified value. If key is nil, props is returned unchanged. A Token without
// the "enc:" prefix is treated as legacy plaintext and passed through.
func DecryptProviderProperties(props ProviderProperties, key []byte) (ProviderProperties, error) {
	if key == nil || props.Token == "" {
		return props, nil
	}

	dec, err := Decrypt(props.Token, key)
	if err != nil {
		return props, fmt.Errorf("decrypt provider token: %w", err)
	}
	props.Token = dec

	return props, nil
}
