package obslog

import "testing"

func TestMaskUserID(t *testing.T) {
	cases := map[string]string{
		"111222333": "111***333",
		"abc":       "***",
		"":          "",
	}
	for in, want := range cases {
		if got := MaskUserID(in); got != want {
			t.Errorf("MaskUserID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	got := MaskPhone("89101234567")
	want := "8********67"
	if got != want {
		t.Errorf("MaskPhone() = %q, want %q", got, want)
	}
}

func TestMaskName(t *testing.T) {
	got := MaskName("Ivanov I.I.")
	want := "I****v I**."
	if got != want {
		t.Errorf("MaskName() = %q, want %q", got, want)
	}
}
