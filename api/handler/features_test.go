package handler

import (
	"testing"
)

func TestFeatures_zero(t *testing.T) {
	if Features(0).WithEnabled(0).IsEnabled(0) {
		t.Error("zero is never a feature")
	}
}

func TestFeatures_enable(t *testing.T) {
	tests := []struct {
		name    string
		enabled Features
		feature Features
		want    bool
	}{
		{name: "unset", feature: FeatureBufferRequest},
		{name: "lowest bit", enabled: 1, feature: 1, want: true},
		{name: "highest bit", enabled: 1 << 63, feature: 1 << 63, want: true},
		{name: "other bit", enabled: FeatureBufferResponse, feature: FeatureBufferRequest},
		{name: "any of a group", enabled: FeatureTrailers, feature: FeatureBufferRequest | FeatureTrailers, want: true},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			f := Features(0).WithEnabled(tc.enabled)
			if want, have := tc.want, f.IsEnabled(tc.feature); want != have {
				t.Errorf("unexpected IsEnabled(%d), want: %v, have: %v", tc.feature, want, have)
			}
		})
	}
}

func TestFeatures_String(t *testing.T) {
	tests := []struct {
		name     string
		feature  Features
		expected string
	}{
		{name: "none", feature: 0, expected: ""},
		{name: "buffer-request", feature: FeatureBufferRequest, expected: "buffer-request"},
		{name: "buffer-response", feature: FeatureBufferResponse, expected: "buffer-response"},
		{name: "buffer-both", feature: FeatureBufferRequest | FeatureBufferResponse, expected: "buffer-request|buffer-response"},
		{name: "trailers", feature: FeatureTrailers, expected: "trailers"},
		{name: "all", feature: FeatureBufferRequest | FeatureBufferResponse | FeatureTrailers, expected: "buffer-request|buffer-response|trailers"},
		{name: "undefined", feature: 1 << 63, expected: ""},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if want, have := tc.expected, tc.feature.String(); want != have {
				t.Errorf("unexpected string, want: %q, have: %q", want, have)
			}
		})
	}
}
