package service

import (
	"strings"
	"testing"
)

func TestNewTicketNumber(t *testing.T) {
	n := NewTicketNumber()
	if !strings.HasPrefix(n, "TKT-") {
		t.Errorf("number %q", n)
	}
	if len(n) != len("TKT-")+8 {
		t.Errorf("length of %q", n)
	}
	if n != strings.ToUpper(n) {
		t.Errorf("%q should be upper case", n)
	}
}

func TestNewTicketNumber_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := NewTicketNumber()
		if seen[n] {
			t.Fatalf("duplicate %q after %d draws", n, i)
		}
		seen[n] = true
	}
}
