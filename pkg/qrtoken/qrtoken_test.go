package qrtoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		raw    string
		want   string
	}{
		{
			name:   "deep link",
			scheme: "volunteerapp",
			raw:    "volunteerapp://checkin/T123",
			want:   "T123",
		},
		{
			name:   "web url fallback",
			scheme: "volunteerapp",
			raw:    "https://h/x/checkin/T123",
			want:   "T123",
		},
		{
			name:   "bare token",
			scheme: "volunteerapp",
			raw:    "T123",
			want:   "T123",
		},
		{
			name:   "web url with query-ish token passes through after first segment",
			scheme: "volunteerapp",
			raw:    "https://example.org/app/checkin/abc/def",
			want:   "abc/def",
		},
		{
			name:   "first checkin segment wins",
			scheme: "volunteerapp",
			raw:    "https://h/checkin/a/checkin/b",
			want:   "a/checkin/b",
		},
		{
			name:   "foreign scheme falls through to substring rule",
			scheme: "volunteerapp",
			raw:    "otherapp://checkin/T9",
			want:   "T9",
		},
		{
			name:   "empty input stays empty",
			scheme: "volunteerapp",
			raw:    "",
			want:   "",
		},
		{
			name:   "no scheme configured still handles urls",
			scheme: "",
			raw:    "https://h/checkin/T5",
			want:   "T5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.scheme, tt.raw))
		})
	}
}

// The three printed forms of one physical code must yield the same token.
func TestExtractEquivalence(t *testing.T) {
	deepLink := Extract("volunteerapp", "volunteerapp://checkin/T123")
	webURL := Extract("volunteerapp", "https://h/x/checkin/T123")
	bare := Extract("volunteerapp", "T123")

	assert.Equal(t, "T123", deepLink)
	assert.Equal(t, deepLink, webURL)
	assert.Equal(t, webURL, bare)
}
