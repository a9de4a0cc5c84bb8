package envutil

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("NF_TEST_INT", " 7 ")
	if got := Int("NF_TEST_INT", 1); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("NF_TEST_INT", "nope")
	if got := Int("NF_TEST_INT", 1); got != 1 {
		t.Fatalf("Int fallback: want=1 got=%d", got)
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{"on": true, "0": false, "": true, "maybe": true}
	for raw, want := range cases {
		t.Setenv("NF_TEST_BOOL", raw)
		if got := Bool("NF_TEST_BOOL", true); got != want {
			t.Fatalf("Bool(%q): want=%v got=%v", raw, want, got)
		}
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("NF_TEST_SECS", "30")
	if got := Seconds("NF_TEST_SECS", time.Minute); got != 30*time.Second {
		t.Fatalf("Seconds: got=%v", got)
	}
	t.Setenv("NF_TEST_SECS", "-1")
	if got := Seconds("NF_TEST_SECS", time.Minute); got != time.Minute {
		t.Fatalf("Seconds fallback: got=%v", got)
	}
}
