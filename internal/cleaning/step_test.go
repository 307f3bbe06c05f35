package cleaning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/animus-cleaning/internal/dataset"
)

type stubStore struct {
	files      map[string]string
	fetchErr   error
	publishErr error
	fetched    []string
	published  []OutputArtifact
	payload    string
}

func (s *stubStore) Fetch(ctx context.Context, ref string) (string, error) {
	s.fetched = append(s.fetched, ref)
	if s.fetchErr != nil {
		return "", s.fetchErr
	}
	path, ok := s.files[ref]
	if !ok {
		return "", errors.New("not found")
	}
	return path, nil
}

func (s *stubStore) Publish(ctx context.Context, out OutputArtifact) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	raw, err := os.ReadFile(out.Path)
	if err != nil {
		return err
	}
	s.payload = string(raw)
	s.published = append(s.published, out)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleCSV = `id,name,price,last_review
1,a,5,2019-05-21
2,b,10,2019-07-01
3,c,350,
4,d,351,2018-11-19
`

func newTestStep(t *testing.T, content string) (*Step, *stubStore) {
	t.Helper()
	input := filepath.Join(t.TempDir(), "sample.csv")
	if err := os.WriteFile(input, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	store := &stubStore{files: map[string]string{"sample.csv:latest": input}}
	step, err := NewStep(store, discardLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStep() err=%v", err)
	}
	return step, store
}

func testParams() Params {
	return Params{
		InputArtifact:     "sample.csv:latest",
		OutputArtifact:    "clean_sample.csv",
		OutputType:        "clean_sample",
		OutputDescription: "Data with outliers and null values removed",
		MinPrice:          10,
		MaxPrice:          350,
	}
}

func TestRunFiltersAndPublishes(t *testing.T) {
	step, store := newTestStep(t, sampleCSV)
	if err := step.Run(context.Background(), testParams()); err != nil {
		t.Fatalf("Run() err=%v", err)
	}

	if len(store.published) != 1 {
		t.Fatalf("published %d artifacts, want 1", len(store.published))
	}
	out := store.published[0]
	if out.Name != "clean_sample.csv" || out.Type != "clean_sample" || out.Description != "Data with outliers and null values removed" {
		t.Fatalf("unexpected output artifact: %+v", out)
	}
	if filepath.Base(out.Path) != OutputFilename || out.Path != step.OutputPath() {
		t.Fatalf("output path=%q", out.Path)
	}

	want := "id,name,price,last_review\n2,b,10,2019-07-01\n3,c,350,\n"
	if store.payload != want {
		t.Fatalf("payload=%q, want %q", store.payload, want)
	}
}

func TestRunOutputPricesStayInRange(t *testing.T) {
	step, store := newTestStep(t, sampleCSV)
	p := testParams()
	p.MinPrice, p.MaxPrice = 6, 400
	if err := step.Run(context.Background(), p); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	table, err := dataset.ReadCSV(strings.NewReader(store.payload))
	if err != nil {
		t.Fatalf("ReadCSV() err=%v", err)
	}
	prices, err := table.Floats(PriceColumn)
	if err != nil {
		t.Fatalf("Floats() err=%v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("rows=%d, want 3", len(prices))
	}
	for _, v := range prices {
		if v < p.MinPrice || v > p.MaxPrice {
			t.Fatalf("price %v outside [%v, %v]", v, p.MinPrice, p.MaxPrice)
		}
	}
}

func TestRunInvertedRangePublishesHeaderOnly(t *testing.T) {
	step, store := newTestStep(t, sampleCSV)
	p := testParams()
	p.MinPrice, p.MaxPrice = 400, 10
	if err := step.Run(context.Background(), p); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if store.payload != "id,name,price,last_review\n" {
		t.Fatalf("payload=%q, want header only", store.payload)
	}
}

func TestRunInvalidDatesBecomeEmpty(t *testing.T) {
	step, store := newTestStep(t, "price,last_review\n20,not a date\n30,2020-02-30\n40,2021-03-04\n")
	if err := step.Run(context.Background(), testParams()); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	want := "price,last_review\n20,\n30,\n40,2021-03-04\n"
	if store.payload != want {
		t.Fatalf("payload=%q, want %q", store.payload, want)
	}
}

func TestRunFailuresDoNotPublish(t *testing.T) {
	cases := []struct {
		name    string
		content string
		setup   func(*stubStore)
		params  func(*Params)
		stage   string
	}{
		{
			name:    "fetch",
			content: sampleCSV,
			setup:   func(s *stubStore) { s.fetchErr = errors.New("artifact not found") },
			stage:   "fetch input artifact",
		},
		{
			name:    "empty file",
			content: "",
			stage:   "load dataset",
		},
		{
			name:    "missing column",
			content: "id,price\n1,20\n",
			stage:   "load dataset",
		},
		{
			name:    "non numeric price",
			content: "price,last_review\n20,2019-01-01\ncheap,2019-01-02\n",
			stage:   "filter price",
		},
		{
			name:    "blank params",
			content: sampleCSV,
			params:  func(p *Params) { p.OutputType = " " },
			stage:   "params",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step, store := newTestStep(t, tc.content)
			if tc.setup != nil {
				tc.setup(store)
			}
			p := testParams()
			if tc.params != nil {
				tc.params(&p)
			}
			err := step.Run(context.Background(), p)
			if err == nil {
				t.Fatalf("Run() expected error")
			}
			if !strings.HasPrefix(err.Error(), tc.stage+":") {
				t.Fatalf("Run() err=%q, want stage %q", err, tc.stage)
			}
			if len(store.published) != 0 {
				t.Fatalf("expected no publish, got %+v", store.published)
			}
			if _, statErr := os.Stat(step.OutputPath()); !errors.Is(statErr, os.ErrNotExist) {
				t.Fatalf("expected no output file, stat err=%v", statErr)
			}
		})
	}
}

func TestRunPublishFailure(t *testing.T) {
	step, store := newTestStep(t, sampleCSV)
	store.publishErr = errors.New("registry unavailable")
	err := step.Run(context.Background(), testParams())
	if err == nil || !strings.HasPrefix(err.Error(), "publish output artifact:") {
		t.Fatalf("Run() err=%v", err)
	}
	if _, statErr := os.Stat(step.OutputPath()); statErr != nil {
		t.Fatalf("expected output file to remain, err=%v", statErr)
	}
}

func TestRunAllowsEmptyDescription(t *testing.T) {
	step, store := newTestStep(t, sampleCSV)
	p := testParams()
	p.OutputDescription = ""
	if err := step.Run(context.Background(), p); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if len(store.published) != 1 || store.published[0].Description != "" {
		t.Fatalf("unexpected publish: %+v", store.published)
	}
}

func TestRunMissingPriceCellsAreDropped(t *testing.T) {
	step, store := newTestStep(t, "price,last_review\n,2019-01-01\nNaN,2019-01-02\n15,2019-01-03\n")
	if err := step.Run(context.Background(), testParams()); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if store.payload != "price,last_review\n15,2019-01-03\n" {
		t.Fatalf("payload=%q", store.payload)
	}
}

func TestNewStepValidation(t *testing.T) {
	if _, err := NewStep(nil, discardLogger(), "."); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewStep(&stubStore{}, nil, "."); err == nil {
		t.Fatalf("expected error for nil logger")
	}
	step, err := NewStep(&stubStore{}, discardLogger(), "")
	if err != nil {
		t.Fatalf("NewStep() err=%v", err)
	}
	if step.OutputPath() != OutputFilename {
		t.Fatalf("OutputPath()=%q", step.OutputPath())
	}
}

func TestParamsConfig(t *testing.T) {
	cfg := testParams().Config()
	if len(cfg) != 6 || cfg["min_price"] != 10.0 || cfg["input_artifact"] != "sample.csv:latest" {
		t.Fatalf("unexpected config: %v", cfg)
	}
}
