package ratelimit_test

import (
	"testing"
	"time"

	"tgrelay/internal/infra/ratelimit"
)

func TestAdmitAllowsUpToBurstThenDenies(t *testing.T) {
	t.Parallel()
	l := ratelimit.New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Admit(1) {
			t.Fatalf("Admit(1) call %d should be allowed within burst", i)
		}
	}
	if l.Admit(1) {
		t.Fatal("Admit(1) should deny once the burst is exhausted")
	}
}

func TestAdmitTracksBotsIndependently(t *testing.T) {
	t.Parallel()
	l := ratelimit.New(1, time.Minute)

	if !l.Admit(0) {
		t.Fatal("Admit(0) first call should be allowed")
	}
	if l.Admit(0) {
		t.Fatal("Admit(0) second call should be denied")
	}
	if !l.Admit(1) {
		t.Fatal("Admit(1) should be unaffected by bot 0's budget")
	}
}

func TestSetFloodWaitOverridesAdmission(t *testing.T) {
	t.Parallel()
	l := ratelimit.New(100, time.Minute)

	if !l.Admit(2) {
		t.Fatal("Admit(2) should be allowed before any flood wait")
	}
	l.SetFloodWait(2, 50*time.Millisecond)
	if l.Admit(2) {
		t.Fatal("Admit(2) should be denied immediately after SetFloodWait")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Admit(2) {
		t.Fatal("Admit(2) should be allowed again once the flood wait has elapsed")
	}
}
