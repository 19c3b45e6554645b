package app

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeServer struct {
	name     string
	rec      *recorder
	startErr error
}

func (s *fakeServer) Start() error {
	s.rec.add("start:" + s.name)
	return s.startErr
}

func (s *fakeServer) Stop() error {
	s.rec.add("stop:" + s.name)
	return nil
}

func TestBaseAppRunAndStop(t *testing.T) {
	rec := &recorder{}
	a := NewBaseApp(WithName("test"), WithLogger(logger.NewNoop()), WithStopTimeout(time.Second))
	a.AppendServer(&fakeServer{name: "a", rec: rec}, &fakeServer{name: "b", rec: rec})
	a.AppendCloser(
		CloserFunc(func() error { rec.add("close:first"); return nil }),
		CloserFunc(func() error { rec.add("close:second"); return nil }),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	require.Eventually(t, func() bool { return len(rec.list()) >= 2 }, time.Second, 5*time.Millisecond)
	a.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	steps := rec.list()
	assert.Equal(t, []string{"start:a", "start:b"}, steps[:2])
	assert.ElementsMatch(t, []string{"stop:a", "stop:b"}, steps[2:4])
	assert.Equal(t, []string{"close:second", "close:first"}, steps[4:])

	assert.ErrorIs(t, a.Run(), ErrAppAlreadyRunning)
	assert.Error(t, a.Context().Err())
}

func TestBaseAppStartFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("bind failed")
	a := NewBaseApp(WithLogger(logger.NewNoop()))
	a.AppendServer(&fakeServer{name: "a", rec: rec, startErr: boom})

	err := a.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, rec.list(), "stop:a")
}

type loadedConfig struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Broker struct {
		WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
	} `mapstructure:"broker"`
}

func TestLoadConfigFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\nbroker:\n  worker_timeout: 60s\n"), 0o644))

	var cfg loadedConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	mgr, err := LoadConfigFrom(fs, []string{"--config", path, "--log.level", "debug"}, &cfg)
	require.NoError(t, err)
	require.NotNil(t, mgr)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.Broker.WorkerTimeout)
	assert.Equal(t, path, ConfigFile)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
	t.Setenv("NETGYM_CONFIG", path)

	var cfg loadedConfig
	_, err := LoadConfigFrom(pflag.NewFlagSet("test", pflag.ContinueOnError), nil, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	var cfg loadedConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := LoadConfigFrom(fs, []string{"-c", filepath.Join(t.TempDir(), "nope.yaml")}, &cfg)
	require.Error(t, err)
}
