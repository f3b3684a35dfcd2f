package bitmap_test

import (
	"testing"

	"github.com/axis-oc/axisos/util/bitmap"
)

func TestSetClearIsSet(t *testing.T) {
	bm := bitmap.NewBits(64)
	for _, pos := range []int{0, 7, 8, 31, 63} {
		if err := bm.Set(pos); err != nil {
			t.Fatalf("Set(%d) returned error: %v", pos, err)
		}
		set, err := bm.IsSet(pos)
		if err != nil {
			t.Fatalf("IsSet(%d) returned error: %v", pos, err)
		}
		if !set {
			t.Errorf("IsSet(%d) false after Set", pos)
		}
		if err := bm.Clear(pos); err != nil {
			t.Fatalf("Clear(%d) returned error: %v", pos, err)
		}
		set, _ = bm.IsSet(pos)
		if set {
			t.Errorf("IsSet(%d) true after Clear", pos)
		}
	}
	if err := bm.Set(64); err == nil {
		t.Errorf("Set(64) on 64-bit map did not return error")
	}
	if err := bm.Set(-1); err == nil {
		t.Errorf("Set(-1) did not return error")
	}
}

func TestFirstFree(t *testing.T) {
	bm := bitmap.NewBits(16)
	for i := 0; i < 5; i++ {
		_ = bm.Set(i)
	}
	tests := []struct {
		start, limit, expected int
	}{
		{0, 16, 5},
		{3, 16, 5},
		{7, 16, 7},
		{0, 5, -1},
		{15, 16, 15},
		{16, 16, -1},
	}
	for _, tt := range tests {
		if got := bm.FirstFree(tt.start, tt.limit); got != tt.expected {
			t.Errorf("FirstFree(%d, %d) = %d instead of expected %d", tt.start, tt.limit, got, tt.expected)
		}
	}
}

func TestFindFreeRun(t *testing.T) {
	// used: 0, 3, 4, 8; free runs: 1-2 (2), 5-7 (3), 9-15 (7)
	bm := bitmap.NewBits(16)
	for _, pos := range []int{0, 3, 4, 8} {
		_ = bm.Set(pos)
	}
	tests := []struct {
		start, limit, count, expected int
	}{
		{0, 16, 1, 1},
		{0, 16, 2, 1},
		{0, 16, 3, 5},
		{0, 16, 7, 9},
		{0, 16, 8, -1},
		{6, 16, 3, 9},
		{0, 8, 3, 5},
		{0, 7, 3, -1},
		{0, 16, 0, -1},
	}
	for _, tt := range tests {
		if got := bm.FindFreeRun(tt.start, tt.limit, tt.count); got != tt.expected {
			t.Errorf("FindFreeRun(%d, %d, %d) = %d instead of expected %d", tt.start, tt.limit, tt.count, got, tt.expected)
		}
	}
}

func TestRuns(t *testing.T) {
	bm := bitmap.NewBits(32)
	if err := bm.SetRun(10, 5); err != nil {
		t.Fatalf("SetRun returned error: %v", err)
	}
	for i := 10; i < 15; i++ {
		if set, _ := bm.IsSet(i); !set {
			t.Errorf("bit %d not set after SetRun", i)
		}
	}
	if free := bm.CountFree(32); free != 27 {
		t.Errorf("CountFree(32) = %d instead of expected %d", free, 27)
	}
	if err := bm.ClearRun(10, 5); err != nil {
		t.Fatalf("ClearRun returned error: %v", err)
	}
	if free := bm.CountFree(32); free != 32 {
		t.Errorf("CountFree(32) = %d instead of expected %d", free, 32)
	}
}

func TestRoundTrip(t *testing.T) {
	bm := bitmap.NewBits(24)
	_ = bm.Set(1)
	_ = bm.Set(13)
	out := bitmap.FromBytes(bm.ToBytes())
	for i := 0; i < 24; i++ {
		want := i == 1 || i == 13
		if got, _ := out.IsSet(i); got != want {
			t.Errorf("bit %d = %v instead of expected %v after round trip", i, got, want)
		}
	}
}
