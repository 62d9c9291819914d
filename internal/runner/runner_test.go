package runner

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"bookload/internal/config"
	"bookload/internal/dummy"
	"bookload/internal/journey"
	"bookload/internal/stats"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func shortConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeyBaseURL, baseURL)
	v.Set(config.KeyRampUp, "100ms")
	v.Set(config.KeyDuration, "300ms")
	v.Set(config.KeyRateJ1, 20)
	v.Set(config.KeyRateJ2, 10)
	v.Set(config.KeyRateJ3, 10)
	v.Set(config.KeyPreAllocated, 5)
	v.Set(config.KeyMaxWorkers, 50)
	v.Set(config.KeyThinkMin, "0s")
	v.Set(config.KeyThinkMax, "5ms")
	v.Set(config.KeyTimeout, "5s")

	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func newTestRunner(t *testing.T, cfg config.Config) *Runner {
	t.Helper()
	specs, err := journey.Predefined(cfg, journey.NewTemplateEngine())
	require.NoError(t, err)
	r, err := NewRunner(cfg, specs, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestRunner_HealthyRunPasses(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler(dummy.Options{}))
	defer srv.Close()

	cfg := shortConfig(t, srv.URL)
	cfg.GracefulStop = 5 * time.Second
	r := newTestRunner(t, cfg)
	require.Len(t, r.Schedulers, 3)

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Passed)
	assert.False(t, rep.Aborted)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Thresholds, 4)
	for _, res := range rep.Thresholds {
		assert.True(t, res.Passed, res.Rule.String())
	}

	require.Len(t, rep.Journeys, 3)
	expected := map[string]float64{
		// rate·ramp/2 + rate·steady
		"journey1": 20*0.1/2 + 20*0.3,
		"journey2": 10*0.1/2 + 10*0.3,
		"journey3": 10*0.1/2 + 10*0.3,
	}
	for _, j := range rep.Journeys {
		assert.InDelta(t, expected[j.Journey], j.Scheduled, 1, j.Journey)
		assert.Equal(t, j.Scheduled, j.Started, j.Journey)
		assert.Zero(t, j.Dropped)
		assert.Zero(t, j.Failed)
		assert.Zero(t, j.Interrupted)
		assert.Equal(t, int(j.Started), j.Completed)
	}

	var steps []string
	for _, s := range rep.Steps {
		if s.Journey == "" {
			steps = append(steps, s.Step)
		}
	}
	assert.Equal(t, []string{"confirm", "purchase", "reserve"}, steps)

	// three requests per completed instance
	live := r.Collector.Live()
	var completed uint64
	for _, j := range rep.Journeys {
		completed += uint64(j.Completed)
	}
	assert.Equal(t, 3*completed, live.Requests)
	assert.Zero(t, live.RequestsFailed)
}

func TestRunner_FailingConfirmViolatesThresholds(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler(dummy.Options{Marker: "Something went wrong"}))
	defer srv.Close()

	r := newTestRunner(t, shortConfig(t, srv.URL))
	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.Passed)
	for _, res := range rep.Thresholds {
		if res.Rule.Metric == stats.MetricReqFailed {
			assert.False(t, res.Passed)
			// every finished instance fails its third request
			assert.Greater(t, res.Value, 0.2)
			assert.LessOrEqual(t, res.Value, 1.0/3+1e-9)
		}
	}
	for _, j := range rep.Journeys {
		assert.Equal(t, j.Completed, j.Failed, j.Journey)
	}
}

func TestRunner_CancelMarksAborted(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler(dummy.Options{}))
	defer srv.Close()

	cfg := shortConfig(t, srv.URL)
	cfg.Duration = time.Hour
	r := newTestRunner(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	begin := time.Now()
	rep, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Aborted)
	assert.Less(t, time.Since(begin), 5*time.Second)
	for _, s := range r.Schedulers {
		assert.Equal(t, StateStopped, s.State())
	}
}

func TestRunner_SnapshotAndUpdates(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler(dummy.Options{}))
	defer srv.Close()

	r := newTestRunner(t, shortConfig(t, srv.URL))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	select {
	case <-r.Updates:
	default:
		t.Fatal("no snapshot was pushed")
	}

	snap := r.Snapshot()
	require.Len(t, snap.Journeys, 3)
	assert.Equal(t, 400*time.Millisecond, snap.Total)
	assert.Positive(t, snap.Live.Requests)
	assert.Zero(t, snap.Active())
	for _, j := range snap.Journeys {
		assert.Equal(t, StateStopped, j.State)
		assert.Zero(t, j.Rate)
	}
}

func TestNewRunner_Errors(t *testing.T) {
	cfg := shortConfig(t, "http://localhost:1")

	_, err := NewRunner(cfg, []journey.Spec{{ID: "journey9"}}, nil, nil)
	assert.ErrorContains(t, err, "journey9")

	cfg.Thresholds = map[string][]string{"http_req_duration": {"p(99)<<1"}}
	_, err = NewRunner(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg = shortConfig(t, "http://localhost:1")
	cfg.PreAllocated = cfg.MaxWorkers + 1
	specs, err := journey.Predefined(cfg, journey.NewTemplateEngine())
	require.NoError(t, err)
	_, err = NewRunner(cfg, specs, nil, nil)
	assert.Error(t, err)
}

func TestRunner_ExtraSinkSeesEverySample(t *testing.T) {
	srv := httptest.NewServer(dummy.Handler(dummy.Options{}))
	defer srv.Close()

	cfg := shortConfig(t, srv.URL)
	specs, err := journey.Predefined(cfg, journey.NewTemplateEngine())
	require.NoError(t, err)

	extra := stats.NewCollector()
	r, err := NewRunner(cfg, specs, extra, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.Collector.Len(), extra.Len())
	assert.Positive(t, extra.Len())
}
