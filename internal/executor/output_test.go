package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCappedBuffer(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		writes        []string
		wantPrefix    string
		wantTruncated bool
	}{
		{
			name:       "under the limit",
			limit:      16,
			writes:     []string{"hello ", "world"},
			wantPrefix: "hello world",
		},
		{
			name:       "exactly the limit",
			limit:      5,
			writes:     []string{"hello"},
			wantPrefix: "hello",
		},
		{
			name:          "single write over the limit",
			limit:         4,
			writes:        []string{"hello"},
			wantPrefix:    "hell",
			wantTruncated: true,
		},
		{
			name:          "later writes dropped",
			limit:         5,
			writes:        []string{"hello", " again"},
			wantPrefix:    "hello",
			wantTruncated: true,
		},
		{
			name:       "no limit",
			limit:      0,
			writes:     []string{strings.Repeat("x", 10000)},
			wantPrefix: strings.Repeat("x", 10000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewCappedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n, "writes always report full length")
			}

			assert.Equal(t, tt.wantTruncated, b.Truncated())
			assert.True(t, strings.HasPrefix(b.String(), tt.wantPrefix))
			if tt.wantTruncated {
				assert.Contains(t, b.String(), "[output truncated")
			} else {
				assert.Equal(t, tt.wantPrefix, b.String())
			}
		})
	}
}

func TestCappedBufferMarkerIsHumanReadable(t *testing.T) {
	b := NewCappedBuffer(64 * 1024)
	_, _ = b.Write(make([]byte, 70*1024))
	assert.Contains(t, b.String(), "exceeded 64 KiB")
}
