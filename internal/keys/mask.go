package keys

import "strings"

const maskVisible = 4

// Mask redacts a key for display, keeping only its first and last four characters.
func Mask(key string) string {
	if len(key) <= 2*maskVisible {
		return "****"
	}
	return key[:maskVisible] + strings.Repeat("*", 4) + key[len(key)-maskVisible:]
}
