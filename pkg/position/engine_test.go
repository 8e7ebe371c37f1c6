package position

import "testing"

func TestAppend(t *testing.T) {
	eng := NewEngine(1024)

	if got := eng.Append(nil); got != 1024 {
		t.Errorf("empty scope: got %d, want 1024", got)
	}
	if got := eng.Append([]int64{1024, 2048, 3072}); got != 4096 {
		t.Errorf("append after 3072: got %d, want 4096", got)
	}
	// unsorted input still appends after the greatest
	if got := eng.Append([]int64{3072, 1024, 2048}); got != 4096 {
		t.Errorf("append with unsorted input: got %d, want 4096", got)
	}
}

func TestInsertAt(t *testing.T) {
	eng := NewEngine(1024)
	siblings := []int64{1024, 2048, 3072}

	tests := []struct {
		name  string
		index int
		want  int64
	}{
		{"before first", 0, 0},
		{"between first and second", 1, 1536},
		{"between second and third", 2, 2560},
		{"after last", 3, 4096},
		{"index past the end clamps to append", 99, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := eng.InsertAt(siblings, tt.index)
			if !ok {
				t.Fatalf("unexpected degenerate gap at index %d", tt.index)
			}
			if got != tt.want {
				t.Errorf("InsertAt(%d) = %d, want %d", tt.index, got, tt.want)
			}
		})
	}
}

func TestInsertAtDegenerateGap(t *testing.T) {
	eng := NewEngine(1024)

	// neighbors differ by 1: no distinct midpoint exists
	if _, ok := eng.InsertAt([]int64{5, 6}, 1); ok {
		t.Error("expected degenerate gap between 5 and 6")
	}
	// equal neighbors are also degenerate
	if _, ok := eng.InsertAt([]int64{7, 7}, 1); ok {
		t.Error("expected degenerate gap between equal positions")
	}
	// edges never degenerate, even in a tight scope
	if _, ok := eng.InsertAt([]int64{5, 6}, 0); !ok {
		t.Error("insert before first should always succeed")
	}
	if _, ok := eng.InsertAt([]int64{5, 6}, 2); !ok {
		t.Error("insert after last should always succeed")
	}
}

func TestRebalance(t *testing.T) {
	eng := NewEngine(1024)

	got := eng.Rebalance(3)
	want := []int64{1024, 2048, 3072}
	if len(got) != len(want) {
		t.Fatalf("Rebalance(3) returned %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Rebalance(3)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPlaceAtRebalancesTightScope(t *testing.T) {
	eng := NewEngine(1024)

	// [5,6] leaves no room at index 1; the scope is rewritten to
	// [1024,2048] and the midpoint 1536 is used
	p := eng.PlaceAt([]int64{5, 6}, 1)
	if p.Rebalanced == nil {
		t.Fatal("expected a rebalance for a degenerate gap")
	}
	if p.Rebalanced[0] != 1024 || p.Rebalanced[1] != 2048 {
		t.Errorf("rebalanced positions = %v, want [1024 2048]", p.Rebalanced)
	}
	if p.Position != 1536 {
		t.Errorf("position after rebalance = %d, want 1536", p.Position)
	}
}

func TestPlaceAtWithoutRebalance(t *testing.T) {
	eng := NewEngine(1024)

	p := eng.PlaceAt([]int64{1024, 2048}, 1)
	if p.Rebalanced != nil {
		t.Error("no rebalance expected when the midpoint has room")
	}
	if p.Position != 1536 {
		t.Errorf("position = %d, want 1536", p.Position)
	}
}

// Repeated insertion at the front keeps producing strictly decreasing
// positions; relative order of earlier siblings is never disturbed.
func TestRepeatedFrontInsertion(t *testing.T) {
	eng := NewEngine(1024)

	siblings := []int64{1024}
	for i := 0; i < 50; i++ {
		p := eng.PlaceAt(siblings, 0)
		if p.Rebalanced != nil {
			siblings = p.Rebalanced
		}
		if len(siblings) > 0 && p.Position >= siblings[0] {
			t.Fatalf("iteration %d: new position %d not before %d", i, p.Position, siblings[0])
		}
		siblings = append([]int64{p.Position}, siblings...)
	}
	for i := 1; i < len(siblings); i++ {
		if siblings[i-1] >= siblings[i] {
			t.Fatalf("ordering violated at %d: %v", i, siblings)
		}
	}
}

func TestNewEngineDefaultsGap(t *testing.T) {
	if got := NewEngine(0).Gap(); got != DefaultGap {
		t.Errorf("gap = %d, want %d", got, DefaultGap)
	}
	if got := NewEngine(-5).Gap(); got != DefaultGap {
		t.Errorf("gap = %d, want %d", got, DefaultGap)
	}
	// a gap of 1 would make every interior slot degenerate forever
	if got := NewEngine(1).Gap(); got != DefaultGap {
		t.Errorf("gap = %d, want %d", got, DefaultGap)
	}
	if got := NewEngine(512).Gap(); got != 512 {
		t.Errorf("gap = %d, want 512", got)
	}
}

// Even at the minimum gap the post-rebalance retry always yields a position
// distinct from every sibling.
func TestPlaceAtMinimumGapNeverCollides(t *testing.T) {
	eng := NewEngine(2)

	siblings := []int64{1, 2, 3}
	for index := 0; index <= len(siblings); index++ {
		p := eng.PlaceAt(siblings, index)
		occupied := siblings
		if p.Rebalanced != nil {
			occupied = p.Rebalanced
		}
		for _, pos := range occupied {
			if p.Position == pos {
				t.Fatalf("index %d: position %d collides with %v", index, p.Position, occupied)
			}
		}
	}
}
