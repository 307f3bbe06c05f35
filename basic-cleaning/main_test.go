package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/animus-cleaning/internal/cleaning"
	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/repo"
	store "github.com/animus-labs/animus-cleaning/internal/storage/objectstore"
	"github.com/animus-labs/animus-cleaning/internal/tracking"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var validArgs = []string{
	"--input_artifact", "sample.csv:latest",
	"--output_artifact", "clean_sample.csv",
	"--output_type", "clean_sample",
	"--output_description", "Data with outliers and null values removed",
	"--min_price", "10",
	"--max_price", "350",
}

func TestExecuteParsesFlags(t *testing.T) {
	var got cleaning.Params
	code := execute(context.Background(), discardLogger(), validArgs, func(ctx context.Context, logger *slog.Logger, params cleaning.Params) error {
		got = params
		return nil
	})
	if code != exitSuccess {
		t.Fatalf("execute()=%d, want %d", code, exitSuccess)
	}
	want := cleaning.Params{
		InputArtifact:     "sample.csv:latest",
		OutputArtifact:    "clean_sample.csv",
		OutputType:        "clean_sample",
		OutputDescription: "Data with outliers and null values removed",
		MinPrice:          10,
		MaxPrice:          350,
	}
	if got != want {
		t.Fatalf("params=%+v, want %+v", got, want)
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	cases := map[string][]string{
		"missing flag":   validArgs[:10],
		"bad float":      append(append([]string(nil), validArgs[:10]...), "--max_price", "lots"),
		"unknown flag":   append(append([]string(nil), validArgs...), "--verbose"),
		"positional arg": append(append([]string(nil), validArgs...), "extra"),
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			code := execute(context.Background(), discardLogger(), args, func(context.Context, *slog.Logger, cleaning.Params) error {
				called = true
				return nil
			})
			if code != exitUsage {
				t.Fatalf("execute()=%d, want %d", code, exitUsage)
			}
			if called {
				t.Fatalf("step must not run on usage error")
			}
		})
	}
}

func TestExecuteMapsStepErrors(t *testing.T) {
	runtimeErr := func(context.Context, *slog.Logger, cleaning.Params) error {
		return errors.New("load dataset: boom")
	}
	if code := execute(context.Background(), discardLogger(), validArgs, runtimeErr); code != exitRuntime {
		t.Fatalf("execute()=%d, want %d", code, exitRuntime)
	}

	cfgErr := func(context.Context, *slog.Logger, cleaning.Params) error {
		return configError{errors.New("DATABASE_URL is required")}
	}
	if code := execute(context.Background(), discardLogger(), validArgs, cfgErr); code != exitUsage {
		t.Fatalf("execute()=%d, want %d", code, exitUsage)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "chatty").Info("fallback")
	if !strings.Contains(buf.String(), "invalid log level") || !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (s *memoryStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = raw
	return nil
}

func (s *memoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, store.ObjectInfo, error) {
	raw, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, store.ObjectInfo{}, store.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), store.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (s *memoryStore) Stat(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	raw, ok := s.objects[bucket+"/"+key]
	if !ok {
		return store.ObjectInfo{}, store.ErrObjectNotFound
	}
	return store.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (s *memoryStore) Delete(ctx context.Context, bucket, key string) error {
	delete(s.objects, bucket+"/"+key)
	return nil
}

type memoryRegistry struct {
	artifacts []domain.Artifact
	runs      map[string]domain.Run
}

func (m *memoryRegistry) CreateArtifact(ctx context.Context, a domain.Artifact) (domain.Artifact, error) {
	var latest int64
	for _, v := range m.artifacts {
		if v.ProjectID == a.ProjectID && v.Name == a.Name && v.Version > latest {
			latest = v.Version
		}
	}
	a.Version = latest + 1
	m.artifacts = append(m.artifacts, a)
	return a, nil
}

func (m *memoryRegistry) ResolveArtifact(ctx context.Context, projectID, name string, version int64) (domain.Artifact, error) {
	var found domain.Artifact
	for _, v := range m.artifacts {
		if v.ProjectID == projectID && v.Name == name && (version == v.Version || (version == 0 && v.Version > found.Version)) {
			found = v
		}
	}
	if found.ID == "" {
		return domain.Artifact{}, repo.ErrNotFound
	}
	return found, nil
}

func (m *memoryRegistry) CreateRun(ctx context.Context, run domain.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRegistry) UpdateRunConfig(ctx context.Context, projectID, id string, config domain.Metadata) error {
	run, ok := m.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Config = config
	m.runs[id] = run
	return nil
}

func (m *memoryRegistry) FinishRun(ctx context.Context, projectID, id string, status domain.RunStatus, endedAt time.Time, errMsg string) error {
	run, ok := m.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return repo.ErrInvalidTransition
	}
	run.Status = status
	run.EndedAt = &endedAt
	run.Error = errMsg
	m.runs[id] = run
	return nil
}

func newTestClient(t *testing.T) (*tracking.Client, *memoryRegistry) {
	t.Helper()
	registry := &memoryRegistry{runs: map[string]domain.Run{}}
	cfg := tracking.Config{
		ProjectID: "nyc_airbnb",
		Actor:     "tester",
		Bucket:    "artifacts",
		CacheDir:  filepath.Join(t.TempDir(), "cache"),
	}
	client, err := tracking.NewClient(cfg, &memoryStore{objects: map[string][]byte{}}, registry, registry, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	return client, registry
}

func uploadSample(t *testing.T, client *tracking.Client, content string) {
	t.Helper()
	ctx := context.Background()
	run, err := client.InitRun(ctx, "download", nil)
	if err != nil {
		t.Fatalf("InitRun() err=%v", err)
	}
	path := filepath.Join(t.TempDir(), "sample.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	if err := (runArtifacts{run: run}).Publish(ctx, cleaning.OutputArtifact{Name: "sample.csv", Type: "raw_data", Description: "raw", Path: path}); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}
	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish() err=%v", err)
	}
}

func cleaningRuns(registry *memoryRegistry) []domain.Run {
	var out []domain.Run
	for _, run := range registry.runs {
		if run.JobType == jobType {
			out = append(out, run)
		}
	}
	return out
}

func TestRunCleaningPublishesNewVersion(t *testing.T) {
	client, registry := newTestClient(t)
	uploadSample(t, client, "id,price,last_review\n1,5,2019-05-21\n2,120,2019-07-01\n3,80,bogus\n")

	dir := t.TempDir()
	params := cleaning.Params{
		InputArtifact:     "sample.csv:latest",
		OutputArtifact:    "clean_sample.csv",
		OutputType:        "clean_sample",
		OutputDescription: "Data with outliers and null values removed",
		MinPrice:          10,
		MaxPrice:          350,
	}
	for i := 0; i < 2; i++ {
		if err := runCleaning(context.Background(), discardLogger(), client, params, dir); err != nil {
			t.Fatalf("runCleaning() err=%v", err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, cleaning.OutputFilename))
	if err != nil {
		t.Fatalf("ReadFile() err=%v", err)
	}
	if want := "id,price,last_review\n2,120,2019-07-01\n3,80,\n"; string(raw) != want {
		t.Fatalf("output=%q, want %q", raw, want)
	}

	latest, err := registry.ResolveArtifact(context.Background(), "nyc_airbnb", "clean_sample.csv", 0)
	if err != nil {
		t.Fatalf("ResolveArtifact() err=%v", err)
	}
	if latest.Version != 2 || latest.Type != "clean_sample" || latest.Filename != cleaning.OutputFilename {
		t.Fatalf("unexpected artifact: %+v", latest)
	}

	runs := cleaningRuns(registry)
	if len(runs) != 2 {
		t.Fatalf("cleaning runs=%d, want 2", len(runs))
	}
	for _, run := range runs {
		if run.Status != domain.RunStatusFinished || run.Config["max_price"] != 350.0 {
			t.Fatalf("unexpected run: %+v", run)
		}
	}
}

func TestRunCleaningMarksRunFailed(t *testing.T) {
	client, registry := newTestClient(t)
	params := cleaning.Params{
		InputArtifact:     "missing.csv:latest",
		OutputArtifact:    "clean_sample.csv",
		OutputType:        "clean_sample",
		OutputDescription: "cleaned",
		MinPrice:          10,
		MaxPrice:          350,
	}
	err := runCleaning(context.Background(), discardLogger(), client, params, t.TempDir())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("runCleaning() err=%v, want ErrNotFound", err)
	}

	runs := cleaningRuns(registry)
	if len(runs) != 1 || runs[0].Status != domain.RunStatusFailed || !strings.HasPrefix(runs[0].Error, "fetch input artifact:") {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if len(registry.artifacts) != 0 {
		t.Fatalf("no artifact expected, got %d", len(registry.artifacts))
	}
}
