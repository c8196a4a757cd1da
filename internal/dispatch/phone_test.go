package dispatch

import "testing"

func TestNormalizePhone_Formatted(t *testing.T) {
	got := NormalizePhone("(11) 99999-8888")
	want := "5511999998888@s.whatsapp.net"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNormalizePhone_AlreadyPrefixed(t *testing.T) {
	got := NormalizePhone("5511999998888")
	want := "5511999998888@s.whatsapp.net"
	if got != want {
		t.Errorf("country code must not be duplicated: got %s", got)
	}
}

func TestNormalizePhone_ShortLocalNumber(t *testing.T) {
	got := NormalizePhone("999998888")
	want := "55999998888@s.whatsapp.net"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNormalizePhone_Empty(t *testing.T) {
	if got := NormalizePhone(""); got != "" {
		t.Errorf("empty input must yield empty output, got %q", got)
	}
}

func TestNormalizePhone_OnlyPunctuation(t *testing.T) {
	if got := NormalizePhone("() - "); got != "" {
		t.Errorf("input with no digits must yield empty output, got %q", got)
	}
}

func TestNormalizePhone_LongInternational(t *testing.T) {
	// 12+ digits not starting with 55: long enough to already be
	// international, so no prefix is added.
	got := NormalizePhone("491701234567")
	want := "491701234567@s.whatsapp.net"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNormalizePhone_SpacesAndDots(t *testing.T) {
	got := NormalizePhone("11 98888.7777")
	want := "5511988887777@s.whatsapp.net"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
