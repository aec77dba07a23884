package install

import (
	"fmt"
	"testing"

	"github.com/goliatone/go-crm-install/core"
)

func makeLocations(n int) []core.LocationSummary {
	out := make([]core.LocationSummary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.LocationSummary{ID: fmt.Sprintf("loc_%d", i)})
	}
	return out
}

func TestChunkLocationsPartitionsExactly(t *testing.T) {
	cases := []struct {
		total      int
		size       int
		wantChunks int
		wantLast   int
	}{
		{total: 0, size: 100, wantChunks: 0},
		{total: 1, size: 100, wantChunks: 1, wantLast: 1},
		{total: 100, size: 100, wantChunks: 1, wantLast: 100},
		{total: 101, size: 100, wantChunks: 2, wantLast: 1},
		{total: 250, size: 100, wantChunks: 3, wantLast: 50},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_by_%d", tc.total, tc.size), func(t *testing.T) {
			chunks := chunkLocations(makeLocations(tc.total), tc.size)
			if len(chunks) != tc.wantChunks {
				t.Fatalf("expected %d chunks, got %d", tc.wantChunks, len(chunks))
			}
			seen := 0
			for i, chunk := range chunks {
				if len(chunk) > tc.size {
					t.Fatalf("chunk %d exceeds size: %d", i, len(chunk))
				}
				for _, location := range chunk {
					if location.ID != fmt.Sprintf("loc_%d", seen) {
						t.Fatalf("order broken at element %d: %s", seen, location.ID)
					}
					seen++
				}
			}
			if seen != tc.total {
				t.Fatalf("expected every element exactly once, saw %d of %d", seen, tc.total)
			}
			if tc.wantChunks > 0 && len(chunks[len(chunks)-1]) != tc.wantLast {
				t.Fatalf("expected last chunk size %d, got %d", tc.wantLast, len(chunks[len(chunks)-1]))
			}
		})
	}
}
