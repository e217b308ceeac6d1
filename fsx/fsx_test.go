package fsx

import (
	"testing"

	"github.com/Abraxas-365/wabridge/errx"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in       string
		expected Location
		wantErr  bool
	}{
		{in: "content.yaml", expected: Location{Path: "content.yaml"}},
		{in: "/etc/wabridge/content.json", expected: Location{Path: "/etc/wabridge/content.json"}},
		{in: "file:///srv/content.yaml", expected: Location{Path: "/srv/content.yaml"}},
		{in: "s3://assets/config/content.yaml", expected: Location{Scheme: "s3", Bucket: "assets", Path: "config/content.yaml"}},
		{in: "S3://assets/c.yaml", expected: Location{Scheme: "s3", Bucket: "assets", Path: "c.yaml"}},
		{in: "s3://assets", wantErr: true},
		{in: "s3:///key", wantErr: true},
		{in: "gs://bucket/key", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLocation(tt.in)
		if tt.wantErr {
			if !errx.IsCode(err, ErrInvalidLocation) {
				t.Errorf("%q: expected %s, got %v", tt.in, ErrInvalidLocation, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%q: expected %+v, got %+v", tt.in, tt.expected, got)
		}
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Scheme: "s3", Bucket: "assets", Path: "c.yaml"}
	if loc.String() != "s3://assets/c.yaml" {
		t.Errorf("expected s3://assets/c.yaml, got %s", loc.String())
	}
}
