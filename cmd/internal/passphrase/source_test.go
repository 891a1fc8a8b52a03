package passphrase

import "testing"

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("OFFER_TEST_PASS", "s3cret")
	src := NewSource("OFFER_TEST_PASS")
	got, err := src.Get()
	if err != nil || got != "s3cret" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	t.Setenv("OFFER_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "s3cret" {
		t.Fatalf("expected cached value, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("OFFER_TEST_PASS", "   ")
	if _, err := NewSource("OFFER_TEST_PASS").Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
