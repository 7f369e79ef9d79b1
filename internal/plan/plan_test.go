package plan

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		viewport int
		want     []int
	}{
		{"three exact tiles", 3000, 1000, []int{0, 1000, 2000}},
		{"ragged bottom", 2500, 1000, []int{0, 1000, 1500}},
		{"shorter than viewport", 600, 1000, []int{0}},
		{"exactly one viewport", 1000, 1000, []int{0}},
		{"one pixel over", 1001, 1000, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.total, tt.viewport)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(p.Positions, tt.want) {
				t.Fatalf("Positions = %v, want %v", p.Positions, tt.want)
			}
		})
	}
}

func TestBuild_Invalid(t *testing.T) {
	if _, err := Build(1000, 0); err == nil {
		t.Fatal("zero viewport accepted")
	}
	if _, err := Build(0, 1000); err == nil {
		t.Fatal("zero total accepted")
	}
}

// Coverage invariant: the union of [pos, pos+V) covers [0, total) with no
// gap and the last offset is exactly total-V.
func TestBuild_Coverage(t *testing.T) {
	for _, tc := range []struct{ total, viewport int }{
		{3000, 1000}, {2500, 1000}, {999, 1000}, {10737, 768}, {1001, 1000},
	} {
		p, err := Build(tc.total, tc.viewport)
		if err != nil {
			t.Fatal(err)
		}

		covered := 0
		for _, pos := range p.Positions {
			if pos > covered {
				t.Fatalf("total=%d V=%d: gap before offset %d (covered to %d)",
					tc.total, tc.viewport, pos, covered)
			}
			if end := pos + tc.viewport; end > covered {
				covered = end
			}
		}
		if covered < tc.total {
			t.Fatalf("total=%d V=%d: covered only to %d", tc.total, tc.viewport, covered)
		}

		last := p.Positions[len(p.Positions)-1]
		wantLast := tc.total - tc.viewport
		if wantLast < 0 {
			wantLast = 0
		}
		if last != wantLast {
			t.Fatalf("total=%d V=%d: last offset %d, want %d", tc.total, tc.viewport, last, wantLast)
		}
	}
}

func TestAdjust_PageGrew(t *testing.T) {
	p, _ := Build(3000, 1000)

	// Two tiles captured, then the page grew to 4500.
	adj := p.Adjust(2, 4500)
	want := []int{0, 1000, 2000, 3000, 3500}
	if !reflect.DeepEqual(adj.Positions, want) {
		t.Fatalf("Positions = %v, want %v", adj.Positions, want)
	}
	if adj.Total != 4500 {
		t.Fatalf("Total = %d, want 4500", adj.Total)
	}
}

func TestAdjust_NoChange(t *testing.T) {
	p, _ := Build(3000, 1000)
	adj := p.Adjust(1, 3000)
	if !reflect.DeepEqual(adj.Positions, p.Positions) {
		t.Fatalf("Positions changed without height change: %v", adj.Positions)
	}
}

func TestAdjust_PageShrank(t *testing.T) {
	p, _ := Build(5000, 1000)
	adj := p.Adjust(1, 2400)
	want := []int{0, 1000, 1400}
	if !reflect.DeepEqual(adj.Positions, want) {
		t.Fatalf("Positions = %v, want %v", adj.Positions, want)
	}
}

func TestFitScale(t *testing.T) {
	if s := FitScale(8000, 16384, 0.25); s != 1 {
		t.Fatalf("under ceiling: scale = %v, want 1", s)
	}
	if s := FitScale(32768, 16384, 0.25); s != 0.5 {
		t.Fatalf("double ceiling: scale = %v, want 0.5", s)
	}
	if s := FitScale(1_000_000, 16384, 0.25); s != 0.25 {
		t.Fatalf("absurd height: scale = %v, want clamp 0.25", s)
	}
}

// growingPager lazily grows the page the first time the bottom is visited.
type growingPager struct {
	total    int
	viewport int
	grown    bool
	pos      int
}

func (g *growingPager) Metrics(context.Context) (int, int, error) {
	if g.pos >= g.total-g.viewport && !g.grown {
		g.grown = true
		g.total += 1500
	}
	return g.total, g.viewport, nil
}

func (g *growingPager) ScrollTo(_ context.Context, y int) error {
	g.pos = y
	return nil
}

func TestStabilize_LazyContent(t *testing.T) {
	pg := &growingPager{total: 2000, viewport: 1000}

	total, viewport, err := Stabilize(context.Background(), pg, StabilizeConfig{
		Checks:   2,
		Interval: time.Millisecond,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3500 {
		t.Fatalf("total = %d, want 3500 after lazy growth", total)
	}
	if viewport != 1000 {
		t.Fatalf("viewport = %d, want 1000", viewport)
	}
	if pg.pos != 0 {
		t.Fatalf("scroll left at %d, want restored to 0", pg.pos)
	}
}
