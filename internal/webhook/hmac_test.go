package webhook

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte("source: warehouse\ntables:\n  - name: orders\n")
	signed := Sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{"prefixed", body, signed, secret, false},
		{"plain hex", body, strings.TrimPrefix(signed, "sha256="), secret, false},
		{"wrong signature", body, "sha256=" + strings.Repeat("0", 64), secret, true},
		{"tampered body", []byte("source: hacked\n"), signed, secret, true},
		{"wrong secret", body, signed, "wrong-secret", true},
		{"empty signature", body, "", secret, true},
		{"empty secret", body, signed, "", true},
		{"not hex", body, "sha256=zzzz", secret, true},
		{"truncated", body, signed[:20], secret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("verifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err.Error() != "webhook verification failed" {
				t.Errorf("error leaks detail: %q", err.Error())
			}
		})
	}
}

func TestSignFormat(t *testing.T) {
	sig := Sign([]byte("x"), "k")
	if !strings.HasPrefix(sig, "sha256=") || len(sig) != len("sha256=")+64 {
		t.Fatalf("unexpected signature %q", sig)
	}
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"512KB", 512 << 10, false},
		{"4mb", 4 << 20, false},
		{"1GB", 1 << 30, false},
		{"0", 0, true},
		{"-1MB", 0, true},
		{"lots", 0, true},
		{"99999999999GB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMaxBodySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMaxBodySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMaxBodySize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
