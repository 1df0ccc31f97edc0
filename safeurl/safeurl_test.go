package safeurl

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Scheme(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/file", "file:///etc/passwd", "javascript:alert(1)"} {
		if err := Validate(raw); !errors.Is(err, ErrUnsafeScheme) {
			t.Errorf("Validate(%q) = %v, want ErrUnsafeScheme", raw, err)
		}
	}
}

func TestValidate_NoHost(t *testing.T) {
	if err := Validate("http://"); err == nil {
		t.Error("Validate: expected error for URL without host")
	}
}

func TestValidate_PrivateIP(t *testing.T) {
	private := []string{
		"http://127.0.0.1/admin",
		"http://10.1.2.3/",
		"http://172.16.0.1/",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
	}
	for _, raw := range private {
		if err := Validate(raw); !errors.Is(err, ErrPrivateAddress) {
			t.Errorf("Validate(%q) = %v, want ErrPrivateAddress", raw, err)
		}
	}
}

func TestValidate_PublicIP(t *testing.T) {
	if err := Validate("https://93.184.216.34/page"); err != nil {
		t.Errorf("Validate public IP: %v", err)
	}
}

func TestLimitedReadAll_UnderLimit(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("LimitedReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}
}

func TestLimitedReadAll_OverLimit(t *testing.T) {
	_, err := LimitedReadAll(strings.NewReader(strings.Repeat("x", 100)), 10)
	if err == nil {
		t.Fatal("LimitedReadAll: expected error past limit")
	}
}
