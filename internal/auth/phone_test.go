package auth

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plus-seven", "+7 910 123-45-67", "89101234567", false},
		{"already-eight", "89101234567", "89101234567", false},
		{"leading-seven-no-punctuation", "79101234567", "89101234567", false},
		{"ten-digits-rejected", "9101234567", "", true},
		{"twelve-digits-rejected", "789101234567", "", true},
		{"leading-nine-rejected", "99101234567", "", true},
		{"empty-rejected", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
