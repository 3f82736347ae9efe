package storage

import (
	"errors"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		ref         string
		bucket, key string
		ok          bool
	}{
		{"s3://docs/in/deck.pptx", "docs", "in/deck.pptx", true},
		{"s3://docs/report.pdf#page=3", "docs", "report.pdf", true},
		{"s3://docs/", "", "", false},
		{"s3:///key", "", "", false},
		{"s3://bucket-only", "", "", false},
		{"https://example.com/a.pdf", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseURL(tt.ref)
		if tt.ok != (err == nil) {
			t.Errorf("ParseURL(%q) err = %v", tt.ref, err)
			continue
		}
		if !tt.ok {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("ParseURL(%q) err = %v, want ErrInvalidURL", tt.ref, err)
			}
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseURL(%q) = %s, %s", tt.ref, bucket, key)
		}
	}
}
