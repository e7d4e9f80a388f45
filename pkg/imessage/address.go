package imessage

import (
	"strings"
)

// IsEmail reports whether the address is an e-mail handle. E-mail handles are
// always iMessage: there is no SMS route to an e-mail address.
func IsEmail(address string) bool {
	return strings.Contains(address, "@")
}

// NormalizeAddress canonicalizes a raw recipient address so it can be used as
// a natural de-duplication key. E-mails are lowercased; phone numbers are
// stripped to digits plus an optional leading "+". The result is stable
// across formatting variants like "(555) 123-4567" vs "555-123-4567".
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if IsEmail(address) {
		return strings.ToLower(address)
	}
	return normalizePhone(address)
}

// normalizePhone strips everything except digits and a leading "+".
// Short codes (e.g. "242733") are preserved as-is rather than getting a
// country prefix bolted on.
func normalizePhone(address string) string {
	var b strings.Builder
	b.Grow(len(address))
	for i, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeAddresses normalizes a participant list, dropping entries that
// normalize to empty and removing duplicates while preserving order.
func NormalizeAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		n := NormalizeAddress(addr)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// IsPhone reports whether the normalized form of the address looks like a
// dialable number (digits with an optional leading "+").
func IsPhone(address string) bool {
	n := NormalizeAddress(address)
	if n == "" || IsEmail(n) {
		return false
	}
	digits := strings.TrimPrefix(n, "+")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
