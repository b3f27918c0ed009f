package ringbuf

import (
	"math/rand"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

func bar(i int) model.Candle {
	return model.Candle{Symbol: "TEST", TS: time.Unix(int64(i)*60, 0), Close: float64(i)}
}

func TestWindow_BasicPush(t *testing.T) {
	w := New[model.Candle](3)

	w.Push(bar(1))
	w.Push(bar(2))

	if w.Len() != 2 || w.Full() {
		t.Fatalf("expected len=2 not full, got len=%d full=%v", w.Len(), w.Full())
	}
	if w.At(0).Close != 2 || w.At(1).Close != 1 {
		t.Fatalf("expected newest-first [2 1], got [%v %v]", w.At(0).Close, w.At(1).Close)
	}
	if _, ok := w.Push(bar(3)); ok {
		t.Fatal("push into non-full window should not evict")
	}
	if !w.Full() {
		t.Fatal("expected full window")
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New[model.Candle](3)
	for i := 1; i <= 3; i++ {
		w.Push(bar(i))
	}

	evicted, ok := w.Push(bar(4))
	if !ok || evicted.Close != 1 {
		t.Fatalf("expected eviction of bar 1, got %v ok=%v", evicted.Close, ok)
	}
	got := w.Values()
	want := []float64{4, 3, 2}
	for i := range want {
		if got[i].Close != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i].Close)
		}
	}
	oldest, _ := w.Oldest()
	if oldest.Close != 2 {
		t.Errorf("expected oldest=2, got %v", oldest.Close)
	}
}

func TestWindow_Slice(t *testing.T) {
	w := New[int](5)
	for i := 1; i <= 7; i++ {
		w.Push(i)
	}
	// window now holds 7 6 5 4 3
	cases := []struct {
		from, to int
		want     []int
	}{
		{0, 4, []int{7, 6, 5, 4}},
		{1, 5, []int{6, 5, 4, 3}},
		{2, 2, nil},
		{3, 99, []int{4, 3}},
	}
	for _, tc := range cases {
		got := w.Slice(tc.from, tc.to)
		if len(got) != len(tc.want) {
			t.Fatalf("Slice(%d,%d) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("Slice(%d,%d) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		}
	}
}

func TestWindow_AtPanicsOutOfRange(t *testing.T) {
	w := New[int](2)
	w.Push(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	w.At(1)
}

func TestWindow_Reset(t *testing.T) {
	w := New[int](2)
	w.Push(1)
	w.Push(2)
	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("expected empty after reset, got %d", w.Len())
	}
	if _, ok := w.Newest(); ok {
		t.Fatal("Newest on empty window should return false")
	}
}

// Once count >= capacity, Len() == Cap() and index 0 is the last push.
func TestWindow_Invariant_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		capacity := 1 + rng.Intn(12)
		pushes := rng.Intn(40)
		w := New[int](capacity)
		for i := 0; i < pushes; i++ {
			v := rng.Int()
			w.Push(v)
			if w.At(0) != v {
				t.Fatalf("round %d: index 0 is not the newest push", round)
			}
			count := i + 1
			if count >= capacity && w.Len() != capacity {
				t.Fatalf("round %d: len=%d want %d", round, w.Len(), capacity)
			}
			if count < capacity && w.Len() != count {
				t.Fatalf("round %d: len=%d want %d", round, w.Len(), count)
			}
		}
	}
}
