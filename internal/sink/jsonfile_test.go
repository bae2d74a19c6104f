package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
)

func testExport() *Export {
	window := config.Window{
		Start: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 8, 24, 0, 0, 0, 0, time.UTC),
	}
	record := &model.NewsItemRecord{
		Candidate: model.CandidateLink{URL: "https://a.edu/story", InstitutionID: "nyu"},
		Report:    &model.ChineseReport{Title: "标题", InitialTranslation: "译文", RefinedText: "正文"},
		State:     model.StateRanked,
	}
	return NewExport(window, model.Counters{Discovered: 5, Processed: 3, Exported: 1}, []model.RankedReport{
		{Record: record, RelevanceScore: 0.84, Rank: 1},
	})
}

func TestJSONFileSink_Write(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONFileSink(dir)

	path, err := sink.Write(context.Background(), testExport())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	wantName := "student_news_report_2025-08-18_to_2025-08-24.json"
	if filepath.Base(path) != wantName {
		t.Errorf("file name = %s, want %s", filepath.Base(path), wantName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Export
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if decoded.WindowStart != "2025-08-18" || decoded.WindowEnd != "2025-08-24" {
		t.Errorf("window = %s to %s", decoded.WindowStart, decoded.WindowEnd)
	}
	if len(decoded.Reports) != 1 {
		t.Fatalf("got %d reports", len(decoded.Reports))
	}
	// Both translation stages survive the round trip for audit
	report := decoded.Reports[0].Record.Report
	if report.InitialTranslation == "" || report.RefinedText == "" {
		t.Error("translation stages lost in export")
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestJSONFileSink_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	sink := NewJSONFileSink(dir)

	if _, err := sink.Write(context.Background(), testExport()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestJSONFileSink_OverwritesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONFileSink(dir)

	if _, err := sink.Write(context.Background(), testExport()); err != nil {
		t.Fatal(err)
	}

	second := testExport()
	second.Counters.Exported = 7
	path, err := sink.Write(context.Background(), second)
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	var decoded Export
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Counters.Exported != 7 {
		t.Errorf("exported = %d, want the rerun's value 7", decoded.Counters.Exported)
	}
}

func TestJSONFileSink_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONFileSink(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sink.Write(ctx, testExport()); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("destination touched despite cancellation: %v", entries)
	}
}
