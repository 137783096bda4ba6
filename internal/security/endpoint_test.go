package security

import (
	"strings"
	"testing"
)

// Hostname-resolution cases are deliberately absent: they would depend on
// live DNS. IP literals and blocked hostnames cover every branch short of
// the lookup.
func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string // substring, empty means the URL is accepted
	}{
		{"webhook endpoint", "https://203.0.113.10/hooks/warden", ""},
		{"siem bulk ingest", "http://198.51.100.7:9200/_bulk", ""},
		{"bad scheme", "ftp://203.0.113.10/drop", "scheme"},
		{"missing host", "https://", "host"},
		{"space in host", "http://bad url/", "invalid URL"},
		{"localhost blocked", "https://localhost:8080/hook", "not allowed"},
		{"gcp metadata blocked", "http://metadata.google.internal/computeMetadata/v1/", "not allowed"},
		{"loopback literal", "http://127.0.0.1:9000/hook", "loopback"},
		{"ipv6 loopback", "http://[::1]:8080/hook", "loopback"},
		{"private literal", "https://10.12.0.4/hook", "private"},
		{"aws metadata ip", "http://169.254.169.254/latest/meta-data/", "link-local"},
		{"unspecified", "http://0.0.0.0/hook", "unspecified"},
		{"multicast", "http://239.1.2.3/hook", "multicast"},
		{"cgnat literal", "http://100.100.100.200/metadata", "carrier-grade"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEndpointURL(tc.url)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateEndpointURL(%q) = %v, want nil", tc.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateEndpointURL(%q) = nil, want error containing %q", tc.url, tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ValidateEndpointURL(%q) = %v, want error containing %q", tc.url, err, tc.wantErr)
			}
		})
	}
}
