// Package qrtoken extracts the opaque check-in token from a scanned QR
// payload. The same physical code is printed three ways: as a deep link
// (app installed), as a plain web URL (browser fallback), and sometimes as
// the bare token for manual entry. One function normalizes all of them.
package qrtoken

import (
	"strings"
)

const checkinSegment = "/checkin/"

// Extract returns the token carried by raw. It is total: any input maps to
// some token, and malformed payloads are left for the backend to reject.
//
// Rules, in order:
//  1. "<scheme>://checkin/TOKEN"  -> TOKEN
//  2. anything containing "/checkin/" -> everything after its first occurrence
//  3. otherwise raw itself, verbatim
func Extract(scheme, raw string) string {
	if scheme != "" {
		prefix := scheme + "://checkin/"
		if strings.HasPrefix(raw, prefix) {
			return raw[len(prefix):]
		}
	}

	if idx := strings.Index(raw, checkinSegment); idx >= 0 {
		return raw[idx+len(checkinSegment):]
	}

	return raw
}
