package settlement

import "context"

// Directory resolves which garden owns a provider. The garden receives the
// indexer share of an entry's fees.
type Directory interface {
	GardenFor(ctx context.Context, providerID string) (string, bool)
}

// StaticDirectory maps provider ids to garden ids.
type StaticDirectory map[string]string

// GardenFor implements Directory.
func (d StaticDirectory) GardenFor(_ context.Context, providerID string) (string, bool) {
	garden, ok := d[providerID]
	return garden, ok && garden != ""
}
