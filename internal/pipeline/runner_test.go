package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/coordinator"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/source"
	"github.com/lqiu/newsbridge/internal/worker"
)

type scriptedSource struct {
	candidates []model.CandidateLink
}

func (s *scriptedSource) Discover(ctx context.Context, inst config.InstitutionProfile, window config.Window) ([]model.CandidateLink, error) {
	return s.candidates, nil
}

// scenarioProvider answers verify prompts per URL and write prompts
// with canned text.
func scenarioProvider(t *testing.T) *stubProvider {
	t.Helper()
	accept := `{"publication_date": "2025-08-20", "is_relevant": true, "content_type": "news_article", "confidence": 9, "reason": "major policy change"}`
	irrelevant := `{"publication_date": "2025-08-19", "is_relevant": false, "content_type": "news_article", "confidence": 2, "reason": "sports recap"}`

	return &stubProvider{fn: func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Answer with exactly this JSON object"):
			if strings.Contains(req.Prompt, "/accepted/") {
				return accept, nil
			}
			return irrelevant, nil
		case strings.Contains(req.Prompt, "news summary"):
			return words(120), nil
		default:
			return "中文内容。", nil
		}
	}}
}

func newScenarioRunner(t *testing.T, provider llm.Provider, candidates []model.CandidateLink) *Runner {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Concurrency.ItemWorkers = 2
	window := verifyTestWindow()
	fetchLimiter := worker.NewFetchLimiter(1000, 1000)
	ai := newAIClient(provider, testLimiter(), 2)
	log := testLogger()

	httpCfg := testExtractorHTTPConfig()
	return &Runner{
		cfg:        cfg,
		window:     window,
		discoverer: &scriptedSource{candidates: candidates},
		extractor:  NewExtractor(log, httpCfg, fetchLimiter),
		verifier:   NewVerifier(log, ai, testLLMConfig(), window),
		summarizer: NewSummarizer(log, ai, testLLMConfig(), cfg.Summary),
		localizer:  NewLocalizer(log, ai, testLLMConfig(), cfg.WellKnownNames),
		log:        log,
	}
}

func TestRunner_Run(t *testing.T) {
	noAISleep(t)
	noSleep(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/accepted/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/irrelevant/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	now := time.Now().UTC()
	candidates := []model.CandidateLink{
		{URL: server.URL + "/accepted/", InstitutionID: "nyu", DiscoveredAt: now},
		{URL: server.URL + "/irrelevant/", InstitutionID: "nyu", DiscoveredAt: now},
		{URL: server.URL + "/missing/", InstitutionID: "nyu", DiscoveredAt: now},
	}

	runner := newScenarioRunner(t, scenarioProvider(t), candidates)

	var mu sync.Mutex
	var transitions []model.Transition
	runner.OnTransition = func(tr model.Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	}

	outcome, err := runner.Run(context.Background(), testInstitution())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := model.Counters{Discovered: 3, Processed: 2, Rejected: 1, Failed: 1}
	if outcome.Counters != want {
		t.Errorf("counters = %+v, want %+v", outcome.Counters, want)
	}
	if len(outcome.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(outcome.Records))
	}

	byURL := make(map[string]*model.NewsItemRecord)
	for _, r := range outcome.Records {
		byURL[r.Candidate.URL] = r
	}

	acceptedRecord := byURL[server.URL+"/accepted/"]
	if acceptedRecord.State != model.StateRefined {
		t.Errorf("accepted record state = %s, want refined", acceptedRecord.State)
	}
	if acceptedRecord.Report == nil || acceptedRecord.Report.RefinedText == "" {
		t.Error("accepted record missing Chinese report")
	}
	if acceptedRecord.Summary == nil || acceptedRecord.Verification == nil {
		t.Error("accepted record missing intermediate stage outputs")
	}
	if acceptedRecord.ProcessedAt.IsZero() {
		t.Error("accepted record missing ProcessedAt")
	}

	rejectedRecord := byURL[server.URL+"/irrelevant/"]
	if rejectedRecord.State != model.StateRejected {
		t.Errorf("irrelevant record state = %s, want rejected", rejectedRecord.State)
	}
	if !strings.Contains(rejectedRecord.RejectionReason, "not relevant") {
		t.Errorf("rejection reason = %q", rejectedRecord.RejectionReason)
	}
	// Audit retention: the verification details survive rejection
	if rejectedRecord.Verification == nil {
		t.Error("rejected record lost its verification result")
	}

	failedRecord := byURL[server.URL+"/missing/"]
	if failedRecord.State != model.StateFailed {
		t.Errorf("missing record state = %s, want failed", failedRecord.State)
	}
	if failedRecord.FailureReason == "" {
		t.Error("failed record missing failure reason")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 {
		t.Fatal("no transitions emitted")
	}
	sawRefined := false
	for _, tr := range transitions {
		if tr.To == model.StateRefined && tr.URL == server.URL+"/accepted/" {
			sawRefined = true
		}
		if tr.At.IsZero() {
			t.Error("transition missing timestamp")
		}
	}
	if !sawRefined {
		t.Error("no transition to refined for the accepted record")
	}

	// Only the accepted record survives coordination
	coord := coordinator.New(testLogger(), config.DefaultConfig(), verifyTestWindow())
	ranked := coord.Merge(outcome.Records, 5)
	if len(ranked) != 1 {
		t.Fatalf("ranked %d records, want 1", len(ranked))
	}
	if ranked[0].Record.Candidate.URL != server.URL+"/accepted/" {
		t.Errorf("ranked record = %s", ranked[0].Record.Candidate.URL)
	}
}

func TestRunner_CancelledContextStopsIntake(t *testing.T) {
	noAISleep(t)
	noSleep(t)

	candidates := []model.CandidateLink{
		{URL: "https://x.edu/a", InstitutionID: "nyu"},
		{URL: "https://x.edu/b", InstitutionID: "nyu"},
	}
	runner := newScenarioRunner(t, scenarioProvider(t), candidates)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := runner.Run(ctx, testInstitution())
	if err != nil {
		t.Fatalf("Run returned error on cancel: %v", err)
	}
	// Discovery already happened; no item may have completed the
	// pipeline after cancellation.
	if outcome.Counters.Discovered != 2 {
		t.Errorf("discovered = %d, want 2", outcome.Counters.Discovered)
	}
	for _, r := range outcome.Records {
		if r.State == model.StateRefined {
			t.Errorf("record %s completed after cancellation", r.Candidate.URL)
		}
	}
}

var _ source.Source = (*scriptedSource)(nil)
