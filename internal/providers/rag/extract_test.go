package rag

import (
	"errors"
	"strings"
	"testing"

	"github.com/sandevgo/kaidesk/internal/core"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     string
		contains []string
		wantErr  bool
	}{
		{
			name:     "plain text",
			filename: "hours.txt",
			data:     "Library opens at 8am.",
			want:     "Library opens at 8am.",
		},
		{
			name:     "bom stripped",
			filename: "bom.TXT",
			data:     "\xef\xbb\xbfHello",
			want:     "Hello",
		},
		{
			name:     "csv rows",
			filename: "fees.csv",
			data:     "programme,fee\n\"Computer Science, BSc\",1200\nLaw,1500\n",
			want:     "programme,fee\nComputer Science, BSc,1200\nLaw,1500",
		},
		{
			name:     "markdown",
			filename: "faq.md",
			data:     "# Parking\n\nPermits cost **RM50** per semester.",
			contains: []string{"Parking", "Permits cost", "RM50"},
		},
		{
			name:     "html",
			filename: "page.html",
			data:     "<html><body><h1>Hostel</h1><p>Check-in from 2pm.</p></body></html>",
			contains: []string{"Hostel", "Check-in from 2pm."},
		},
		{
			name:     "unsupported",
			filename: "scan.pdf",
			data:     "%PDF-1.7",
			wantErr:  true,
		},
		{
			name:     "no extension",
			filename: "README",
			data:     "text",
			wantErr:  true,
		},
		{
			name:     "empty text",
			filename: "blank.txt",
			data:     "  \n ",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.filename, []byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, core.ErrIngestion) {
					t.Fatalf("expected ErrIngestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
			for _, c := range tt.contains {
				if !strings.Contains(got, c) {
					t.Errorf("Extract() = %q, missing %q", got, c)
				}
			}
		})
	}
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "b.CSV", "c.md", "d.html"} {
		if !Supported(name) {
			t.Errorf("%s should be supported", name)
		}
	}
	for _, name := range []string{"a.pdf", "b.docx", "c"} {
		if Supported(name) {
			t.Errorf("%s should not be supported", name)
		}
	}
}
