package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tsarena/internal/adapters/http/swagger"
	"github.com/okian/tsarena/internal/config"
	"github.com/okian/tsarena/pkg/logger"
)

// fakeArena is a minimal benchmark API.
type fakeArena struct {
	mu     sync.Mutex
	keys   []string
	paths  []string
	status string
}

func (f *fakeArena) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.keys = append(f.keys, r.Header.Get("X-API-Key"))
	f.paths = append(f.paths, r.URL.Path)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/definitions":
		_, _ = w.Write([]byte(`[{"id":1,"name":"Daily energy"}]`))
	case "/api/v1/rounds/7":
		_, _ = w.Write([]byte(`{"round_id":7,"name":"R7","status":"` + status + `","frequency":"P1D"}`))
	case "/api/v1/rounds/7/leaderboard":
		_, _ = w.Write([]byte(`[{"model_name":"m1","series_id":1,"series_name":"s1","mase":0.9}]`))
	case "/api/v1/rounds/7/series":
		_, _ = w.Write([]byte(`[{"series_id":1,"name":"s1"}]`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
	}
}

func (f *fakeArena) seen() (keys, paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...), append([]string(nil), f.paths...)
}

func testConfig(baseURL string) *config.Config {
	cfg := config.New()
	cfg.UpstreamBaseURL = baseURL
	cfg.UpstreamAPIKey = "k3y"
	cfg.UpstreamTimeoutMS = 2000
	return cfg
}

func decode(resp *http.Response) map[string]interface{} {
	defer resp.Body.Close()
	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the wired application in front of a benchmark API", t, func() {
		arena := &fakeArena{status: "registration"}
		upstreamSrv := httptest.NewServer(arena)
		defer upstreamSrv.Close()

		ctx := context.Background()
		handler, svc, err := newHandler(ctx, testConfig(upstreamSrv.URL), logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(handler)
		defer srv.Close()

		convey.Convey("When a proxy route is requested", func() {
			resp, err := http.Get(srv.URL + "/api/v1/definitions")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			convey.Convey("Then it is forwarded with the API key", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				keys, paths := arena.seen()
				convey.So(paths, convey.ShouldResemble, []string{"/api/v1/definitions"})
				convey.So(keys, convey.ShouldResemble, []string{"k3y"})
			})
		})

		convey.Convey("When an unknown model is requested", func() {
			resp, err := http.Get(srv.URL + "/api/v1/models/99")
			convey.So(err, convey.ShouldBeNil)
			body := decode(resp)

			convey.Convey("Then the upstream status is propagated", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusNotFound)
				convey.So(body["error"], convey.ShouldEqual, "Failed to fetch model details")
			})
		})

		convey.Convey("When the view of a round in registration is requested", func() {
			resp, err := http.Get(srv.URL + "/api/v1/views/rounds/7")
			convey.So(err, convey.ShouldBeNil)
			body := decode(resp)

			convey.Convey("Then the leaderboard is a placeholder and no series are fetched", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				lb := body["leaderboard"].(map[string]interface{})["data"].(map[string]interface{})
				convey.So(lb["placeholder"], convey.ShouldNotBeEmpty)
				convey.So(lb["board"], convey.ShouldBeNil)
				_, paths := arena.seen()
				convey.So(paths, convey.ShouldNotContain, "/api/v1/rounds/7/series")
			})
		})

		convey.Convey("When the chart of a round in registration is requested", func() {
			resp, err := http.Get(srv.URL + "/api/v1/views/rounds/7/series/1/chart")
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()

			convey.Convey("Then it conflicts without fetching series data", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusConflict)
				_, paths := arena.seen()
				convey.So(paths, convey.ShouldResemble, []string{"/api/v1/rounds/7"})
			})
		})

		convey.Convey("When the docs and ops routes are requested", func() {
			for _, p := range []string{"/api-docs", "/openapi.yaml", "/healthz", "/metrics", "/stats"} {
				resp, err := http.Get(srv.URL + p)
				convey.So(err, convey.ShouldBeNil)
				resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestNewHandlerInvalidUpstream(t *testing.T) {
	convey.Convey("Given a config with an unusable upstream url", t, func() {
		cfg := testConfig("::not a url")

		convey.Convey("Then wiring fails", func() {
			_, _, err := newHandler(context.Background(), cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHandlerBrokenDocs(t *testing.T) {
	convey.Convey("Given an embedded OpenAPI document that does not parse", t, func() {
		orig := swagger.OpenAPI
		swagger.OpenAPI = []byte("openapi: [")
		defer func() { swagger.OpenAPI = orig }()

		convey.Convey("Then wiring fails before anything starts", func() {
			_, svc, err := newHandler(context.Background(), testConfig("http://127.0.0.1:1"), logger.Nop())
			convey.So(errors.Is(err, swagger.ErrServe), convey.ShouldBeTrue)
			convey.So(svc, convey.ShouldBeNil)
		})
	})
}

func TestWriteTimeout(t *testing.T) {
	convey.Convey("Given upstream and view deadlines", t, func() {
		cfg := config.New()
		cfg.UpstreamTimeoutMS = 30_000
		cfg.ViewTimeoutMS = 45_000

		convey.Convey("Then the server outlives the longest handler deadline", func() {
			convey.So(cfg.WriteTimeout(), convey.ShouldBeGreaterThan, cfg.ViewTimeout())
			convey.So(cfg.WriteTimeout(), convey.ShouldBeGreaterThan, cfg.UpstreamTimeout())
		})

		convey.Convey("Then a long upstream timeout still wins", func() {
			cfg.UpstreamTimeoutMS = 120_000
			convey.So(cfg.WriteTimeout(), convey.ShouldBeGreaterThan, cfg.UpstreamTimeout())
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Addr = "127.0.0.1:0"
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Nop()) }()

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then it shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("timeout", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then a system metrics update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updaters stop with their context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				convey.So("updater did not stop", convey.ShouldBeEmpty)
			}
		})
	})
}
