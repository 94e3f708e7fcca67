package service

import "fmt"

// allowedKeyChars is a precomputed lookup for O(1) validation of
// clientID/resource values. ':' is deliberately excluded: it's the
// separator used to compose the storage key "<clientId>:<resource>"
// (spec.md §3), so a component containing it would make the key
// ambiguous across clients/resources.
var allowedKeyChars [128]bool

func init() {
	for _, c := range "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-.@+" {
		allowedKeyChars[c] = true
	}
}

// validateKeyPart validates a clientID or resource value: non-empty, at
// most 128 bytes, and restricted to a safe character set that can't
// collide with the ':' key separator.
func validateKeyPart(value, label string) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: %s must not be empty", ErrValidation, label)
	}
	if len(value) > 128 {
		return fmt.Errorf("%w: %s exceeds 128 bytes", ErrValidation, label)
	}
	for i, r := range value {
		if r >= 128 || !allowedKeyChars[r] {
			return fmt.Errorf("%w: %s contains invalid character %q at position %d", ErrValidation, label, r, i)
		}
	}
	return nil
}

// composeKey builds the storage key, per spec.md §3's BucketKey format.
func composeKey(clientID, resource string) string {
	return clientID + ":" + resource
}
