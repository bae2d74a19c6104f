package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "newsbridge-test/1.0",
		MaxBodyBytes: 1_000_000,
		MaxRetries:   1,
	}
}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MaxCategoryPages: 10,
		MaxCandidates:    50,
		PageCacheTTL:     time.Minute,
		RespectRobots:    false,
	}
}

func testWindow() config.Window {
	return config.Window{
		Start: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 8, 24, 0, 0, 0, 0, time.UTC),
	}
}

func TestCategoryScanner_Discover(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/category/news/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/news/2025/08/20/housing-policy/">Housing policy changes</a>
			<a href="/news/2025/08/19/visa-workshop/">Visa workshop announced</a>
			<a href="/news/2025/08/20/housing-policy/">Housing policy changes (again)</a>
			<a href="https://unrelated.example.com/news/2025/08/20/offsite/">Offsite</a>
			<a href="/about/">About us</a>
			<a href="mailto:tips@example.edu">Tips</a>
			<a rel="next" href="/category/news/page/2/">Next</a>
		</body></html>`)
	})
	mux.HandleFunc("/category/news/page/2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/news/2025/08/18/orientation/">Orientation schedule</a>
			<a href="/news/2025/07/01/old-story/">Old story</a>
		</body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	host := mustHost(t, server.URL)
	inst := config.InstitutionProfile{
		ID:            "test",
		Domains:       []string{host},
		CategoryPages: []string{server.URL + "/category/news/"},
		URLValidators: []string{`/news/\d{4}/\d{2}/\d{2}/`},
	}

	scanner := NewCategoryScanner(testLogger(), testHTTPConfig(), testDiscoveryConfig(), worker.NewFetchLimiter(100, 100))
	candidates, err := scanner.Discover(context.Background(), inst, testWindow())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	// Duplicate, offsite, non-matching and out-of-window links are dropped
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3: %+v", len(candidates), candidates)
	}
	for _, c := range candidates {
		if c.SourceKind != model.SourceCategoryScan {
			t.Errorf("source kind = %s, want %s", c.SourceKind, model.SourceCategoryScan)
		}
		if c.InstitutionID != "test" {
			t.Errorf("institution = %q, want test", c.InstitutionID)
		}
		if c.DateHint == nil {
			t.Errorf("candidate %s has no date hint", c.URL)
		}
	}
	if candidates[0].Title != "Housing policy changes" {
		t.Errorf("title = %q, want anchor text", candidates[0].Title)
	}
}

func TestCategoryScanner_PageCap(t *testing.T) {
	var pagesServed int
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		// Every page links to another, forever
		fmt.Fprintf(w, `<html><body><a rel="next" href="/page/%d/">Next</a></body></html>`, pagesServed)
	}))
	defer server.Close()

	disc := testDiscoveryConfig()
	disc.MaxCategoryPages = 3
	disc.PageCacheTTL = time.Nanosecond

	inst := config.InstitutionProfile{
		ID:            "test",
		Domains:       []string{mustHost(t, server.URL)},
		CategoryPages: []string{server.URL + "/page/0/"},
	}

	scanner := NewCategoryScanner(testLogger(), testHTTPConfig(), disc, worker.NewFetchLimiter(100, 100))
	if _, err := scanner.Discover(context.Background(), inst, testWindow()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if pagesServed > 3 {
		t.Errorf("served %d pages, cap was 3", pagesServed)
	}
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return parsed.Host
}
