package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"
)

func fp(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestFingerprintFilter_FirstAndSecondOccurrence(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.0001)

	if f.Seen(fp("a")) {
		t.Error("first occurrence reported as seen")
	}
	if !f.Seen(fp("a")) {
		t.Error("second occurrence not reported as seen")
	}
	if f.Seen(fp("b")) {
		t.Error("different fingerprint reported as seen")
	}
}

func TestFingerprintFilter_NonHexKeys(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.0001)

	if f.Seen("not-hex") {
		t.Error("first occurrence reported as seen")
	}
	if !f.Seen("not-hex") {
		t.Error("non-hex key not remembered")
	}
}

func TestFingerprintFilter_RotateKeepsPreviousHalf(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.0001)

	f.Seen(fp("old"))
	if n := f.Rotate(); n != 1 {
		t.Errorf("Rotate() = %d, want 1 added fingerprint", n)
	}

	if !f.Seen(fp("old")) {
		t.Error("fingerprint lost after one rotation")
	}
}

func TestFingerprintFilter_DoubleRotateExpires(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.0001)

	f.Seen(fp("old"))
	f.Rotate()
	f.Rotate()

	if f.Seen(fp("old")) {
		t.Error("fingerprint still visible after two rotations")
	}
}

func TestFingerprintFilter_ReplayIsCarriedForward(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.0001)

	f.Seen(fp("replayed"))
	f.Rotate()
	// Seen in previous, so it is copied into current.
	if !f.Seen(fp("replayed")) {
		t.Fatal("fingerprint lost after one rotation")
	}
	f.Rotate()

	if !f.Seen(fp("replayed")) {
		t.Error("replayed fingerprint expired although it was seen in the last half window")
	}
}

func TestFingerprintFilter_Stats(t *testing.T) {
	f := NewFingerprintFilter(15*time.Minute, 10000, 0.0001)

	for i := range 10 {
		f.Seen(fp(fmt.Sprint(i)))
	}
	f.Seen(fp("0"))

	s := f.Stats()
	if s.Added != 10 {
		t.Errorf("Added = %d, want 10", s.Added)
	}
	if s.EstimatedKeys < 8 || s.EstimatedKeys > 12 {
		t.Errorf("EstimatedKeys = %d, want about 10", s.EstimatedKeys)
	}

	f.Rotate()
	s = f.Stats()
	if s.Added != 0 || s.Rotations != 1 {
		t.Errorf("after rotate: %+v", s)
	}
	if f.Window() != 15*time.Minute {
		t.Errorf("Window() = %v", f.Window())
	}
}

func TestFingerprintFilter_ConcurrentAccess(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 100000, 0.0001)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 100 {
				f.Seen(fp(fmt.Sprintf("%d-%d", id, j)))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 10 {
			f.Rotate()
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
}

func TestFingerprintFilter_FalsePositiveRate(t *testing.T) {
	f := NewFingerprintFilter(10*time.Minute, 10000, 0.01)

	for i := range 5000 {
		f.Seen(fp(fmt.Sprintf("added-%d", i)))
	}

	falsePositives := 0
	for i := range 1000 {
		if f.Seen(fp(fmt.Sprintf("never-added-%d", i))) {
			falsePositives++
		}
	}

	// 1% configured; anything under 5% is acceptable variance.
	if rate := float64(falsePositives) / 1000; rate > 0.05 {
		t.Errorf("false positive rate %.2f%%, want about 1%%", rate*100)
	}
}
