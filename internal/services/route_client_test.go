package services

import (
	"context"
	"errand-route-service/internal/adapters/cache"
	"errand-route-service/internal/adapters/distance"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/ratelimit"
	"errand-route-service/internal/ports"
	"errors"
	"testing"
	"time"
)

var (
	ptA = domain.Coordinates{Lat: 35.681236, Lon: 139.767125}
	ptB = domain.Coordinates{Lat: 35.658034, Lon: 139.701636}
)

func newTestClient(t *testing.T, p ports.RouteProvider, cfg RouteClientConfig) (*RouteClient, *cache.DistanceCache, *[]time.Duration) {
	t.Helper()

	limiter, err := ratelimit.NewSlidingWindow(1000, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cache.NewDistanceCache(cache.Options{})

	client, err := NewRouteClient(p, limiter, c, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return client, c, &slept
}

func transient() error {
	return &domain.ProviderError{Provider: "mock", Kind: domain.ProviderTransient, Err: errors.New("502")}
}

func TestRouteClientRetriesThenCaches(t *testing.T) {
	p := distance.NewMockProvider([]distance.MockPair{{From: ptA, To: ptB, Meters: 7000, Seconds: 900}})
	p.FailNext(transient())

	client, c, slept := newTestClient(t, p, DefaultRouteClientConfig())

	edge, err := client.Route(context.Background(), ptA, ptB, domain.TravelModeDriving, "jp", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edge.IsFallback || edge.DistanceMeters != 7000 {
		t.Fatalf("edge = %+v, want provider edge", edge)
	}
	if got := p.RouteCalls(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}
	if len(*slept) != 1 || (*slept)[0] != 200*time.Millisecond {
		t.Fatalf("backoffs = %v, want [200ms]", *slept)
	}

	// Reverse direction is served from the cache.
	if _, err := client.Route(context.Background(), ptB, ptA, domain.TravelModeDriving, "jp", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.RouteCalls(); got != 2 {
		t.Fatalf("provider calls = %d after cached lookup, want 2", got)
	}
	if st := c.Stats(); st.Hits != 1 {
		t.Fatalf("cache hits = %d, want 1", st.Hits)
	}
}

func TestRouteClientQuotaBackoff(t *testing.T) {
	p := distance.NewMockProvider([]distance.MockPair{{From: ptA, To: ptB, Meters: 1, Seconds: 1}})
	p.FailNext(
		&domain.ProviderError{Provider: "mock", Kind: domain.ProviderQuota, Err: errors.New("429")},
		transient(),
	)

	client, _, slept := newTestClient(t, p, DefaultRouteClientConfig())

	if _, err := client.Route(context.Background(), ptA, ptB, domain.TravelModeDriving, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []time.Duration{800 * time.Millisecond, 400 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("backoffs = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("backoff[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestRouteClientFallsBackWithoutCaching(t *testing.T) {
	p := distance.NewMockProvider(nil)
	client, c, slept := newTestClient(t, p, DefaultRouteClientConfig())

	edge, err := client.Route(context.Background(), ptA, ptB, domain.TravelModeDriving, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !edge.IsFallback {
		t.Fatal("expected fallback edge")
	}
	if got := p.RouteCalls(); got != 1 {
		t.Fatalf("permanent failure retried: %d calls", got)
	}
	if len(*slept) != 0 {
		t.Fatalf("unexpected backoffs %v", *slept)
	}
	if n := c.Len(); n != 0 {
		t.Fatalf("fallback edge cached, len = %d", n)
	}
}

func TestRouteClientExhaustsRetries(t *testing.T) {
	p := distance.NewMockProvider([]distance.MockPair{{From: ptA, To: ptB, Meters: 1, Seconds: 1}})
	p.FailNext(transient(), transient(), transient(), transient())

	cfg := DefaultRouteClientConfig()
	cfg.DisableFallback = true
	client, _, _ := newTestClient(t, p, cfg)

	_, err := client.Route(context.Background(), ptA, ptB, domain.TravelModeDriving, "", nil)
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if got := p.RouteCalls(); got != 4 {
		t.Fatalf("provider calls = %d, want 4", got)
	}
}

func TestRouteClientIdenticalPoints(t *testing.T) {
	p := distance.NewMockProvider(nil)
	client, _, _ := newTestClient(t, p, DefaultRouteClientConfig())

	edge, err := client.Route(context.Background(), ptA, ptA, domain.TravelModeWalking, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edge.DistanceMeters != 0 || edge.DurationSeconds != 0 || p.RouteCalls() != 0 {
		t.Fatalf("edge = %+v with %d calls, want zero edge and no calls", edge, p.RouteCalls())
	}
}

func TestRouteClientRejectsBadCoordinates(t *testing.T) {
	client, _, _ := newTestClient(t, distance.NewMockProvider(nil), DefaultRouteClientConfig())

	_, err := client.Route(context.Background(), domain.Coordinates{Lat: 91}, ptB, domain.TravelModeDriving, "", nil)
	if !domain.IsInputError(err) {
		t.Fatalf("err = %v, want InputError", err)
	}
}

func TestFallbackEstimate(t *testing.T) {
	client, _, _ := newTestClient(t, distance.NewMockProvider(nil), DefaultRouteClientConfig())

	home := domain.Coordinates{Lat: 0, Lon: 0}
	// 0.1 degrees of latitude is ~11.1km.
	far := domain.Coordinates{Lat: 0.1, Lon: 0}
	near := domain.Coordinates{Lat: 0.0001, Lon: 0}

	cases := []struct {
		name    string
		to      domain.Coordinates
		mode    domain.TravelMode
		minSecs int
		maxSecs int
	}{
		{"driving", far, domain.TravelModeDriving, 1330, 1340},
		{"walking", far, domain.TravelModeWalking, 9520, 9540},
		{"floor", near, domain.TravelModeDriving, 60, 60},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := client.Fallback(home, tc.to, tc.mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !e.IsFallback {
				t.Fatal("estimate not flagged")
			}
			if e.DurationSeconds < tc.minSecs || e.DurationSeconds > tc.maxSecs {
				t.Fatalf("duration = %d, want [%d, %d]", e.DurationSeconds, tc.minSecs, tc.maxSecs)
			}
		})
	}
}

func TestSearchCandidates(t *testing.T) {
	p := distance.NewMockProvider(nil)
	p.AddPlaces("bakery",
		ports.Place{ID: "b1", Name: "Bakery 1", Coordinates: ptA},
		ports.Place{Name: "Bakery 2", Coordinates: ptB},
	)
	client, _, _ := newTestClient(t, p, DefaultRouteClientConfig())

	got, err := client.SearchCandidates(context.Background(), "Bakery", &ptA, "", 10000, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d points, want 2", len(got))
	}
	if got[1].ID == "" {
		t.Fatal("missing generated id")
	}

	none, err := client.SearchCandidates(context.Background(), "nothing here", nil, "", 0, 8)
	if err != nil || len(none) != 0 {
		t.Fatalf("got %v, %v; want no points and no error", none, err)
	}
}
