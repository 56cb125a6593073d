package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"timelock/internal/beacon"
	"timelock/internal/calibrate"
	"timelock/internal/card"
	"timelock/internal/config"
	"timelock/internal/testutil"
)

const (
	testMessage = "Dem secrets."
	storeDir    = "/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t    *testing.T
	fs   afero.Fs
	auth *beacon.Fake
	reg  *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	testutil.SetupTestEnv(t)

	return &harness{
		t:  t,
		fs: afero.NewMemMapFs(),
		auth: &beacon.Fake{
			Genesis: testNow,
			Period:  time.Second,
		},
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the command line with stdin as piped input. An empty
// stdin behaves like an interactive terminal.
func (h *harness) run(ctx context.Context, stdin string, args ...string) result {
	h.t.Helper()

	var in io.Reader = strings.NewReader(stdin)
	if stdin == "" {
		devnull, err := os.Open(os.DevNull)
		require.NoError(h.t, err)
		h.t.Cleanup(func() { devnull.Close() })
		in = devnull
	}

	h.reg = prometheus.NewRegistry()
	var stdout, stderr bytes.Buffer
	err := Run(ctx, append([]string{"--store-dir", storeDir}, args...), Options{
		Stdin:    in,
		Stdout:   &stdout,
		Stderr:   &stderr,
		Fs:       h.fs,
		Registry: h.reg,
		Beacon:   func(config.BeaconConfig) beacon.Authority { return h.auth },
		Now:      func() time.Time { return testNow },
	})
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// wrap stores testMessage in a card taking 5000 squarings.
func (h *harness) wrap(args ...string) string {
	h.t.Helper()

	args = append([]string{"wrap", "--bits", "256", "--rate", "5000", "-d", "1s"}, args...)
	res := h.run(context.Background(), testMessage, args...)
	require.NoError(h.t, res.err, res.stderr)

	id := strings.TrimSpace(res.stdout)
	require.True(h.t, testutil.IsUUID(id), "wrap printed %q", res.stdout)
	return id
}

func (h *harness) metric(name string) float64 {
	h.t.Helper()

	families, err := h.reg.Gather()
	require.NoError(h.t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += value(m)
		}
		return sum
	}
	h.t.Fatalf("metric %s not found", name)
	return 0
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/wrapper.txt", []byte("Open me slowly."), 0o600))
	id := h.wrap("-w", "/wrapper.txt")

	assert.Equal(t, 1.0, h.metric("timelock_puzzles_generated_total"))
	assert.Equal(t, 5000.0, h.metric("timelock_calibration_rate_squarings_per_second"))

	res := h.run(context.Background(), "", "unwrap", id)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, testMessage, res.stdout)
	assert.Contains(t, res.stderr, "Open me slowly.")
	assert.Equal(t, 5000.0, h.metric("timelock_squarings_completed_total"))
	assert.Equal(t, 1.0, h.metric("timelock_solve_duration_seconds"))

	// Unwrapping again delivers the stored message without work.
	res = h.run(context.Background(), "", "unwrap", "-s", id)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, testMessage, res.stdout)
	assert.NotContains(t, res.stderr, "Open me slowly.")

	store := card.NewStore(h.fs, storeDir)
	c, _, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, card.StateUnwrapped, c.State)
	assert.Equal(t, card.UnwrappedByPuzzle, c.UnwrappedBy)
	assert.Zero(t, c.RemainingIterations)
}

func TestWrap_FromFile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/in.txt", []byte("from a file"), 0o600))

	res := h.run(context.Background(), "", "wrap", "--bits", "256", "--rate", "1000", "-d", "2s", "/in.txt")
	require.NoError(t, res.err, res.stderr)
	id := strings.TrimSpace(res.stdout)

	store := card.NewStore(h.fs, storeDir)
	c, p, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "file", c.InputType)
	assert.Equal(t, "/in.txt", c.OriginalPath)
	assert.Equal(t, uint64(2000), p.TotalIterations())
	assert.Equal(t, 2*time.Second, c.DesiredDuration)
	assert.Equal(t, 512, c.ModulusBits)
}

func TestWrap_InputErrors(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "wrap", "--bits", "256", "--rate", "1000")
	assert.Error(t, res.err)

	require.NoError(t, afero.WriteFile(h.fs, "/in.txt", []byte("x"), 0o600))
	res = h.run(context.Background(), "piped", "wrap", "--bits", "256", "--rate", "1000", "/in.txt")
	assert.Error(t, res.err)

	res = h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "1000", "-d", "soon")
	assert.ErrorContains(t, res.err, "invalid duration")

	res = h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "1000", "--cipher", "rot13")
	assert.Error(t, res.err)

	res = h.run(context.Background(), testMessage, "wrap", "--bits", "64", "--rate", "1000")
	assert.ErrorIs(t, res.err, config.ErrInvalidPrimeBits)

	res = h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "1000", "-w", "/missing.txt")
	assert.ErrorContains(t, res.err, "wrapper text")
}

func TestWrap_DurationInDays(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "1", "-d", "1d", "--output", "json")
	require.NoError(t, res.err, res.stderr)

	var out wrapResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, uint64(86400), out.TotalIterations)
	assert.Equal(t, (24 * time.Hour).String(), out.Duration)
	assert.True(t, testutil.IsUUID(out.ID))
}

func TestWrap_PuzzleFile(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "3000", "-d", "1s", "-o", "/puzzle.tlp")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "/puzzle.tlp\n", res.stdout)

	res = h.run(context.Background(), "", "inspect", "/puzzle.tlp", "--output", "json")
	require.NoError(t, res.err, res.stderr)
	var before inspectResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &before))
	assert.False(t, before.Solved)
	assert.Equal(t, uint64(3000), before.Remaining)
	assert.Equal(t, "unknown", before.EstimatedRemaining)

	res = h.run(context.Background(), "", "unwrap", "/puzzle.tlp", "-o", "/message.txt")
	require.NoError(t, res.err, res.stderr)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "message written to /message.txt")

	got, err := afero.ReadFile(h.fs, "/message.txt")
	require.NoError(t, err)
	assert.Equal(t, testMessage, string(got))

	// The solved state was written back to the puzzle file.
	p, err := card.ReadPuzzleFile(h.fs, "/puzzle.tlp")
	require.NoError(t, err)
	assert.True(t, p.IsSolved())
	assert.Zero(t, p.RemainingIterations())

	// No card was created.
	list, err := card.NewStore(h.fs, storeDir).List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWrap_BeaconRequiresCard(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), testMessage, "wrap", "--bits", "256", "--rate", "1000", "--beacon", "-o", "/p.tlp")
	assert.ErrorContains(t, res.err, "beacon escrow requires a card")
}

func TestUnwrap_InterruptedCanContinue(t *testing.T) {
	h := newHarness(t)
	id := h.wrap()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.run(ctx, "", "unwrap", id)
	require.NoError(t, res.err, res.stderr)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, interruptedNotice)
	assert.Equal(t, 1.0, h.metric("timelock_solve_interruptions_total"))

	c, _, err := card.NewStore(h.fs, storeDir).Load(id)
	require.NoError(t, err)
	assert.Equal(t, card.StateWrapped, c.State)
	assert.Equal(t, c.TotalIterations, c.RemainingIterations)

	res = h.run(context.Background(), "", "unwrap", id)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, testMessage, res.stdout)
}

func TestUnwrap_Beacon(t *testing.T) {
	h := newHarness(t)
	id := h.wrap("--beacon", "-d", "10s")

	store := card.NewStore(h.fs, storeDir)
	c, _, err := store.Load(id)
	require.NoError(t, err)
	require.NotNil(t, c.Beacon)
	assert.Equal(t, uint64(11), c.Beacon.Round)
	assert.True(t, testNow.Add(10*time.Second).Equal(c.Beacon.UnlockAt))

	h.auth.CurrentRound = 5
	res := h.run(context.Background(), "", "unwrap", "--beacon", id)
	assert.ErrorIs(t, res.err, beacon.ErrTooEarly)

	h.auth.CurrentRound = 11
	res = h.run(context.Background(), "", "unwrap", "--beacon", id)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, testMessage, res.stdout)

	c, p, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, card.StateUnwrapped, c.State)
	assert.Equal(t, card.UnwrappedByBeacon, c.UnwrappedBy)
	// The puzzle itself is untouched.
	assert.False(t, p.IsSolved())
	assert.Equal(t, c.TotalIterations, c.RemainingIterations)
}

func TestUnwrap_BeaconWithoutEscrow(t *testing.T) {
	h := newHarness(t)
	id := h.wrap()

	res := h.run(context.Background(), "", "unwrap", "--beacon", id)
	assert.ErrorIs(t, res.err, beacon.ErrNoEscrow)
}

func TestUnwrap_Errors(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "unwrap", "6f1c2a5e-3b8d-4c1e-9a7f-2d4b6e8c0a12")
	assert.ErrorIs(t, res.err, card.ErrNotFound)

	res = h.run(context.Background(), "", "unwrap", "/missing.tlp")
	assert.Error(t, res.err)

	require.NoError(t, afero.WriteFile(h.fs, "/garbage.tlp", []byte("not a puzzle"), 0o600))
	res = h.run(context.Background(), "", "unwrap", "/garbage.tlp")
	assert.Error(t, res.err)

	res = h.run(context.Background(), "", "unwrap")
	assert.Error(t, res.err)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "status")
	require.NoError(t, res.err)
	assert.Equal(t, "no cards\n", res.stdout)

	first := h.wrap()
	second := h.wrap()

	res = h.run(context.Background(), "", "unwrap", first)
	require.NoError(t, res.err, res.stderr)

	res = h.run(context.Background(), "", "status", "--output", "json")
	require.NoError(t, res.err, res.stderr)

	var summaries []card.Summary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summaries))
	require.Len(t, summaries, 2)

	byID := map[string]card.Summary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.Equal(t, card.StateUnwrapped, byID[first].State)
	assert.Equal(t, 1.0, byID[first].Progress)
	assert.Equal(t, card.StateWrapped, byID[second].State)
	assert.Equal(t, "1s", byID[second].EstimatedRemaining)
}

func TestStatus_ReportsInvalidCards(t *testing.T) {
	h := newHarness(t)
	id := h.wrap()

	require.NoError(t, h.fs.Remove("/store/"+id+"/puzzle.bin"))

	res := h.run(context.Background(), "", "status")
	assert.ErrorContains(t, res.err, "failed validation")
	assert.Contains(t, res.stderr, "invalid card")
}

func TestInspect_Card(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/wrapper.txt", []byte("Be patient."), 0o600))
	id := h.wrap("--cipher", "aes-256-gcm", "-w", "/wrapper.txt")

	res := h.run(context.Background(), "", "inspect", id, "--output", "yaml")
	require.NoError(t, res.err, res.stderr)
	assert.NotContains(t, res.stdout, testMessage)

	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, id, out["id"])
	assert.Equal(t, "aes-256-gcm", out["cipher"])
	assert.Equal(t, 5000, out["remaining_iterations"])
	assert.Equal(t, "1s", out["estimated_remaining"])
	assert.Equal(t, "Be patient.", out["instructions"])
	assert.Equal(t, false, out["solved"])

	res = h.run(context.Background(), "", "inspect", id)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "cipher: aes-256-gcm")
	assert.Contains(t, res.stdout, "progress: 0.0% (0/5000)")
}

func TestInspect_Measure(t *testing.T) {
	h := newHarness(t)
	id := h.wrap()

	res := h.run(context.Background(), "", "inspect", id, "--measure", "--output", "json")
	require.NoError(t, res.err, res.stderr)

	var out inspectResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.NotZero(t, out.Rate)
	assert.NotEqual(t, "unknown", out.EstimatedRemaining)
}

func TestCalibrate(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "calibrate", "--bits", "256", "--trials", "2000", "-d", "1h", "--output", "json")
	require.NoError(t, res.err, res.stderr)

	var out calibrateResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, 512, out.ModulusBits)
	assert.Equal(t, uint64(2000), out.Trials)
	assert.NotZero(t, out.Rate)
	assert.Equal(t, calibrate.Iterations(out.Rate, time.Hour), out.Iterations)
	assert.Equal(t, "1h0m0s", out.Duration)
}

func TestConfigFile(t *testing.T) {
	h := newHarness(t)
	cfg := "prime_bits: 256\ndefault_duration: 3s\nlog:\n  level: warn\n"
	require.NoError(t, afero.WriteFile(h.fs, "/timelock.yaml", []byte(cfg), 0o600))

	res := h.run(context.Background(), testMessage, "--config", "/timelock.yaml", "wrap", "--rate", "100", "--output", "json")
	require.NoError(t, res.err, res.stderr)
	assert.NotContains(t, res.stderr, "generating puzzle")

	var out wrapResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, uint64(300), out.TotalIterations)
	assert.Equal(t, 512, out.ModulusBits)
}

func TestEnvironmentOverrides(t *testing.T) {
	h := newHarness(t)
	t.Setenv("TIMELOCK_PRIME_BITS", "256")
	t.Setenv("TIMELOCK_DEFAULT_DURATION", "4s")

	res := h.run(context.Background(), testMessage, "wrap", "--rate", "10", "--output", "json")
	require.NoError(t, res.err, res.stderr)

	var out wrapResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, uint64(40), out.TotalIterations)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "timelock version dev")

	res = h.run(context.Background(), "", "version", "--output", "yaml")
	require.NoError(t, res.err)
	var info versionInfo
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, Version, info.Version)
}

func TestInvalidOutputFormat(t *testing.T) {
	h := newHarness(t)

	res := h.run(context.Background(), "", "status", "--output", "xml")
	assert.ErrorContains(t, res.err, "unknown output format")
}
