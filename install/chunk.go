package install

import "github.com/goliatone/go-crm-install/core"

// chunkLocations partitions the listing into batches of at most size. Every
// element lands in exactly one batch, in listing order.
func chunkLocations(locations []core.LocationSummary, size int) [][]core.LocationSummary {
	if size < 1 {
		size = 1
	}
	if len(locations) == 0 {
		return [][]core.LocationSummary{}
	}
	chunks := make([][]core.LocationSummary, 0, (len(locations)+size-1)/size)
	for start := 0; start < len(locations); start += size {
		end := start + size
		if end > len(locations) {
			end = len(locations)
		}
		chunks = append(chunks, locations[start:end])
	}
	return chunks
}
