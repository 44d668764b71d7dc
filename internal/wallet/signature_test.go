package wallet

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"order.paid"}`)
	sig := Sign(body, "whsec")

	tests := []struct {
		name   string
		body   []byte
		sig    string
		secret string
		want   bool
	}{
		{"valid", body, sig, "whsec", true},
		{"uppercase hex", body, strings.ToUpper(sig), "whsec", true},
		{"wrong secret", body, sig, "other", false},
		{"tampered body", []byte(`{"event":"order.paid" }`), sig, "whsec", false},
		{"not hex", body, "zz" + sig[2:], "whsec", false},
		{"truncated", body, sig[:10], "whsec", false},
		{"empty signature", body, "", "whsec", false},
		{"empty secret", body, sig, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.body, tt.sig, tt.secret); got != tt.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}
