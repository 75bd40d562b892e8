package handler

import "strings"

// Features is the set of http-wasm features a guest asked for with
// "enable_features". Only the bits are meaningful.
type Features uint64

const (
	// FeatureBufferRequest keeps a copy of the request body once the guest
	// read it, so the next handler receives the same bytes.
	FeatureBufferRequest Features = 1 << iota

	// FeatureBufferResponse holds the response of the next handler in memory
	// until handle_response returned, so the guest can read it and replace
	// its status or body.
	FeatureBufferResponse

	// FeatureTrailers exposes request and response trailers. Hosts built on
	// fetch requests never enable it.
	FeatureTrailers
)

// featureNames is ordered by bit.
var featureNames = [...]struct {
	f    Features
	name string
}{
	{FeatureBufferRequest, "buffer-request"},
	{FeatureBufferResponse, "buffer-response"},
	{FeatureTrailers, "trailers"},
}

// WithEnabled returns f with feature added.
func (f Features) WithEnabled(feature Features) Features {
	return f | feature
}

// IsEnabled is true if any bit of feature is set in f.
func (f Features) IsEnabled(feature Features) bool {
	return f&feature != 0
}

// String joins the names of the known features in f with '|'. Unknown bits
// are left out.
func (f Features) String() string {
	names := make([]string, 0, len(featureNames))
	for _, n := range featureNames {
		if f.IsEnabled(n.f) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}
