package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionLag(t *testing.T) {
	tests := []struct {
		name      string
		latest    int64
		committed int64
		want      int64
	}{
		{name: "caught up", latest: 10, committed: 10, want: 0},
		{name: "behind", latest: 10, committed: 4, want: 6},
		{name: "never committed", latest: 7, committed: -1, want: 7},
		{name: "empty partition", latest: -1, committed: -1, want: 0},
		{name: "committed ahead after truncation", latest: 3, committed: 5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, partitionLag(tt.latest, tt.committed))
		})
	}
}
