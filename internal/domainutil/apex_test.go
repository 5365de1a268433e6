package domainutil

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lowercase and trailing dot", input: " WWW.Example.COM. ", want: "www.example.com"},
		{name: "wildcard", input: "*.example.com", want: "*.example.com"},
		{name: "punycode", input: "xn--fiqs8s.example.com", want: "xn--fiqs8s.example.com"},
		{name: "empty", input: "  ", wantErr: true},
		{name: "single label", input: "localhost", wantErr: true},
		{name: "ipv4", input: "192.168.1.1", wantErr: true},
		{name: "ipv6", input: "[::1]", wantErr: true},
		{name: "port", input: "example.com:443", wantErr: true},
		{name: "underscore", input: "a_b.example.com", wantErr: true},
		{name: "leading hyphen", input: "-a.example.com", wantErr: true},
		{name: "empty label", input: "a..example.com", wantErr: true},
		{name: "inner wildcard", input: "a.*.example.com", wantErr: true},
		{name: "bare tld wildcard", input: "*.com", wantErr: true},
		{name: "long label", input: strings.Repeat("a", 64) + ".com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) expected error, got %q", tt.input, got)
				}
				if !errors.Is(err, ErrInvalidDomain) {
					t.Errorf("Normalize(%q) error %v is not ErrInvalidDomain", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeList(t *testing.T) {
	got, err := NormalizeList([]string{"Example.com", "www.example.com", "example.com.", "www.example.com"})
	if err != nil {
		t.Fatalf("NormalizeList() error: %v", err)
	}
	want := []string{"example.com", "www.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeList() = %v, want %v", got, want)
	}

	if _, err := NormalizeList(nil); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("NormalizeList(nil) error = %v, want ErrInvalidDomain", err)
	}
	if _, err := NormalizeList([]string{"example.com", "bad domain"}); err == nil {
		t.Error("NormalizeList() expected error for invalid member")
	}
}

func TestEffectiveApex(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"www.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"example.com", "example.com"},
		{"*.api.example.com", "example.com"},
	}

	for _, tt := range tests {
		got, err := EffectiveApex(tt.input)
		if err != nil {
			t.Fatalf("EffectiveApex(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("EffectiveApex(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestChallengeFQDN(t *testing.T) {
	if got := ChallengeFQDN("Example.com"); got != "_acme-challenge.example.com." {
		t.Errorf("ChallengeFQDN() = %q", got)
	}
	if got := ChallengeFQDN("*.example.com"); got != "_acme-challenge.example.com." {
		t.Errorf("ChallengeFQDN(wildcard) = %q", got)
	}
}

func TestZoneCandidates(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"_acme-challenge.example.com.", []string{"_acme-challenge.example.com", "example.com"}},
		{"_acme-challenge.www.example.co.uk", []string{"_acme-challenge.www.example.co.uk", "www.example.co.uk", "example.co.uk"}},
		// CNAME target outside the certificate's own domain
		{"example-com.Validation.Example.NET.", []string{"example-com.validation.example.net", "validation.example.net", "example.net"}},
		{"example.com", []string{"example.com"}},
	}

	for _, tt := range tests {
		got, err := ZoneCandidates(tt.input)
		if err != nil {
			t.Fatalf("ZoneCandidates(%q) error: %v", tt.input, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ZoneCandidates(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"", "com", "."} {
		if _, err := ZoneCandidates(bad); !errors.Is(err, ErrInvalidDomain) {
			t.Errorf("ZoneCandidates(%q) error = %v, want ErrInvalidDomain", bad, err)
		}
	}
}
