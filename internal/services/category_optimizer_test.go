package services

import (
	"context"
	"errand-route-service/internal/adapters/distance"
	"errand-route-service/internal/domain"
	"fmt"
	"testing"
	"time"
)

// newCategoryOptimizer prices every pair with fallback estimates.
func newCategoryOptimizer(t *testing.T, cfg CategoryConfig) *CategoryOptimizer {
	t.Helper()
	client, _, _ := newTestClient(t, distance.NewMockProvider(nil), DefaultRouteClientConfig())
	builder := NewMatrixBuilder(client, DefaultMatrixBuilderConfig())
	return NewCategoryOptimizer(builder, NewTourOptimizer(nil, DefaultOptimizerConfig()), cfg)
}

func pt(id string, lat, lon float64) domain.Point {
	return domain.Point{ID: id, Name: id, Coordinates: domain.Coordinates{Lat: lat, Lon: lon}, DwellSeconds: 600}
}

func TestCategorySmallCaseEnumeratesAllCombinations(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	req := CategoryRequest{
		Home:    pt("home", 0, 0),
		Private: []domain.Point{pt("office", 0, 0.01)},
		Categories: map[string][]domain.Point{
			"bank": {pt("b1", 0.005, 0.005), pt("b2", 0.02, 0.02)},
			"post": {pt("p1", 0.01, 0), pt("p2", -0.01, -0.01)},
		},
		Mode: domain.TravelModeDriving,
	}

	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CombinationsEvaluated != 4 {
		t.Fatalf("combinations = %d, want 4", res.CombinationsEvaluated)
	}
	if len(res.ByTime) != 4 || len(res.ByDistance) != 4 {
		t.Fatalf("candidates = %d/%d, want 4/4", len(res.ByTime), len(res.ByDistance))
	}
	if res.IsFallback {
		t.Fatal("result marked as fallback route")
	}

	seen := map[string]bool{}
	for i, c := range res.ByDistance {
		if c.Rank != i+1 {
			t.Fatalf("rank[%d] = %d", i, c.Rank)
		}
		if i > 0 && c.TotalDistanceMeters < res.ByDistance[i-1].TotalDistanceMeters {
			t.Fatal("candidates not sorted by distance")
		}
		if len(c.Selection) != 2 || c.Selection["bank"].ID == "" || c.Selection["post"].ID == "" {
			t.Fatalf("selection = %+v, want one bank and one post office", c.Selection)
		}
		if len(c.VisitOrder) != 3 || len(c.Route) != 5 {
			t.Fatalf("visit order %v route len %d, want 3 stops", c.VisitOrder, len(c.Route))
		}
		for _, idx := range c.VisitOrder {
			if idx <= 0 {
				t.Fatalf("visit order %v includes home", c.VisitOrder)
			}
		}
		if seen[c.CombinationID] {
			t.Fatalf("combination %q ranked twice", c.CombinationID)
		}
		seen[c.CombinationID] = true
	}

	best := res.ByDistance[0]
	if best.Selection["bank"].ID != "b1" || best.Selection["post"].ID != "p1" {
		t.Fatalf("best selection = %s, want bank=b1|post=p1", best.CombinationID)
	}
	if best.CombinationID != "bank=b1|post=p1" {
		t.Fatalf("combination id = %q", best.CombinationID)
	}
}

func TestCategoryLargeCaseSamples(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	cats := map[string][]domain.Point{}
	for c, name := range []string{"bank", "grocery", "pharmacy"} {
		for i := 0; i < 5; i++ {
			lat := 0.01*float64(i+1) + 0.001*float64(c)
			cats[name] = append(cats[name], pt(fmt.Sprintf("%s-%d", name, i), lat, -lat))
		}
	}

	res, err := o.Optimize(context.Background(), CategoryRequest{
		Home:       pt("home", 0, 0),
		Categories: cats,
		Mode:       domain.TravelModeWalking,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CombinationsEvaluated == 0 || res.CombinationsEvaluated >= 125 {
		t.Fatalf("combinations = %d, want a sample of the 125", res.CombinationsEvaluated)
	}
	for i := 1; i < len(res.ByTime); i++ {
		if res.ByTime[i].TotalTravelSeconds < res.ByTime[i-1].TotalTravelSeconds {
			t.Fatal("candidates not sorted by time")
		}
	}
	// The closest branch of every category is always sampled.
	want := "bank=bank-0|grocery=grocery-0|pharmacy=pharmacy-0"
	if got := res.ByTime[0].CombinationID; got != want {
		t.Fatalf("best combination = %q, want %q", got, want)
	}
}

func TestCategoryShortBudgetStillEvaluatesFirstCombination(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	cats := map[string][]domain.Point{}
	for c, name := range []string{"bank", "grocery", "pharmacy", "post"} {
		for i := 0; i < 6; i++ {
			lat := 0.01*float64(i+1) + 0.001*float64(c)
			cats[name] = append(cats[name], pt(fmt.Sprintf("%s-%d", name, i), lat, lat))
		}
	}

	for _, budget := range []time.Duration{time.Nanosecond, 50 * time.Millisecond} {
		start := time.Now()
		res, err := o.Optimize(context.Background(), CategoryRequest{
			Home:       pt("home", 0, 0),
			Categories: cats,
			Mode:       domain.TravelModeDriving,
			Budget:     budget,
		})
		if err != nil {
			t.Fatalf("budget %v: unexpected error: %v", budget, err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Fatalf("budget %v: elapsed = %v, want Optimize to stop near its budget", budget, elapsed)
		}
		if res.IsFallback {
			t.Fatalf("budget %v: got degraded route, want an optimized combination", budget)
		}
		if res.CombinationsEvaluated < 1 || len(res.ByTime) == 0 || len(res.ByDistance) == 0 {
			t.Fatalf("budget %v: combinations = %d, candidates = %d/%d", budget,
				res.CombinationsEvaluated, len(res.ByTime), len(res.ByDistance))
		}
		if got := len(res.ByTime[0].Selection); got != 4 {
			t.Fatalf("budget %v: selection covers %d categories, want 4", budget, got)
		}
	}
}

func TestCategoryPrefilter(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())
	home := pt("home", 0, 0)

	var branches []domain.Point
	for i := 11; i >= 0; i-- {
		branches = append(branches, pt(fmt.Sprintf("near-%d", i), 0.001*float64(i+1), 0))
	}
	branches = append(branches, pt("far", 0.5, 0.5), pt("bad", 120, 0))

	out, warnings := o.prefilter(home, map[string][]domain.Point{
		"cafe":    branches,
		"remote":  {pt("r1", 1, 1)},
		"missing": nil,
	})

	cafe := out["cafe"]
	if len(cafe) != 8 {
		t.Fatalf("cafe branches = %d, want 8", len(cafe))
	}
	for i, p := range cafe {
		if p.ID != fmt.Sprintf("near-%d", i) {
			t.Fatalf("cafe[%d] = %s, want nearest first", i, p.ID)
		}
		if p.Category != "cafe" {
			t.Fatalf("category = %q, want cafe", p.Category)
		}
	}
	if len(out["remote"]) != 1 {
		t.Fatal("category without a branch in range should keep its nearest branch")
	}
	if len(out["missing"]) != 0 || len(warnings) != 2 {
		t.Fatalf("warnings = %v, want two", warnings)
	}
}

func TestCategoryPrefilterTrimsLargeProducts(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	cats := map[string][]domain.Point{}
	for _, name := range []string{"a", "b", "c"} {
		for i := 0; i < 8; i++ {
			cats[name] = append(cats[name], pt(fmt.Sprintf("%s%d", name, i), 0.001*float64(i+1), 0))
		}
	}

	out, _ := o.prefilter(pt("home", 0, 0), cats)
	for name, cands := range out {
		if len(cands) != 5 {
			t.Fatalf("%s branches = %d, want 5 after trimming 512 combinations", name, len(cands))
		}
	}
}

func TestCategoryDegradedRoute(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	res, err := o.Optimize(context.Background(), CategoryRequest{
		Home:       pt("home", 0, 0),
		Private:    []domain.Point{pt("office", 0, 0.01)},
		Categories: map[string][]domain.Point{"bank": nil},
		Mode:       domain.TravelModeDriving,
		Budget:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsFallback || res.Warning == "" {
		t.Fatalf("result = %+v, want fallback with warning", res)
	}
	if len(res.ByTime) != 1 || !res.ByTime[0].IsFallbackRoute {
		t.Fatalf("by time = %+v, want one fallback route", res.ByTime)
	}
	if got := len(res.ByTime[0].Route); got != 3 {
		t.Fatalf("route length = %d, want home, office, home", got)
	}
}

func TestCategoryRejectsEmptyRequest(t *testing.T) {
	o := newCategoryOptimizer(t, DefaultCategoryConfig())

	_, err := o.Optimize(context.Background(), CategoryRequest{Home: pt("home", 0, 0)})
	if !domain.IsInputError(err) {
		t.Fatalf("err = %v, want input error", err)
	}
}
