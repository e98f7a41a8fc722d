package nwp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/task4") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	tasks := make([]Task, 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, Task{
			Provider: ProviderGFS,
			URL:      fmt.Sprintf("%s/task%d", srv.URL, i),
			Dest:     filepath.Join(outDir, "gfs", fmt.Sprintf("task%d.grib2", i)),
		})
	}

	tr := NewTransport(srv.Client(), "test", testBackoff(2), zerolog.Nop())
	d := NewDownloader(tr, 4, zerolog.Nop())

	results := d.Run(context.Background(), tasks)
	require.Len(t, results, 10)

	succeeded, failed := 0, 0
	for _, res := range results {
		if res.OK() {
			succeeded++
			continue
		}
		failed++
		assert.True(t, strings.HasSuffix(res.Task.URL, "/task4"), "only the 404 task may fail")
	}
	assert.Equal(t, 9, succeeded)
	assert.Equal(t, 1, failed)
}

func TestRunWritesExactBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "gfs", "one.grib2")
	tr := NewTransport(srv.Client(), "test", testBackoff(1), zerolog.Nop())
	d := NewDownloader(tr, 1, zerolog.Nop())

	results := d.Run(context.Background(), []Task{{URL: srv.URL, Dest: dest}})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.EqualValues(t, 3, results[0].Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestRunBatchPausesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	outDir := t.TempDir()
	tasks := make([]Task, 0, 6)
	for i := 0; i < 6; i++ {
		tasks = append(tasks, Task{
			URL:  srv.URL,
			Dest: filepath.Join(outDir, fmt.Sprintf("task%d.grib2", i)),
		})
	}

	tr := NewTransport(srv.Client(), "test", testBackoff(5), zerolog.Nop())
	// Single worker keeps ordering deterministic: the first 429 must stop
	// all further requests to the provider.
	d := NewDownloader(tr, 1, zerolog.Nop())

	results := d.Run(context.Background(), tasks)
	require.Len(t, results, 6)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, ErrRateLimited)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "remaining tasks must not touch the network")
}

func TestRunRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("slow"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTransport(srv.Client(), "test", testBackoff(1), zerolog.Nop())
	d := NewDownloader(tr, 2, zerolog.Nop())

	tasks := []Task{{URL: srv.URL, Dest: filepath.Join(t.TempDir(), "a.grib2")}}
	results := d.Run(ctx, tasks)

	// The feeder may or may not have handed the task over before
	// cancellation; either zero results or a failed one is acceptable.
	for _, res := range results {
		assert.Error(t, res.Err)
	}
}
