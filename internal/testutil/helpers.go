// Package testutil holds fakes and fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// Drand chain parameters served by the fake endpoints.
const (
	DrandGenesis   = int64(1677685200)
	DrandPeriod    = 3
	DrandChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"
)

// FakeHTTPDoer is a mock HTTP client for testing.
type FakeHTTPDoer struct {
	// Responses maps URL path suffixes to responses.
	Responses map[string]*http.Response
	// Errors maps URL path suffixes to errors.
	Errors map[string]error

	mu       sync.Mutex
	Requests []string
}

func (f *FakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path

	f.mu.Lock()
	f.Requests = append(f.Requests, path)
	f.mu.Unlock()

	for suffix, err := range f.Errors {
		if strings.HasSuffix(path, suffix) {
			return nil, err
		}
	}
	for suffix, resp := range f.Responses {
		if strings.HasSuffix(path, suffix) {
			return CloneResponse(resp), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

// RequestCount returns how many requests hit a path ending in suffix.
func (f *FakeHTTPDoer) RequestCount(suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, p := range f.Requests {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

// CloneResponse copies resp with a fresh body so it can be served again.
func CloneResponse(resp *http.Response) *http.Response {
	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
	}
}

// MakeDrandInfoResponse creates a fake drand /info response.
func MakeDrandInfoResponse() *http.Response {
	info := struct {
		Period      int    `json:"period"`
		GenesisTime int64  `json:"genesis_time"`
		Hash        string `json:"hash"`
		SchemeID    string `json:"schemeID"`
		BeaconID    string `json:"beaconID"`
	}{
		Period:      DrandPeriod,
		GenesisTime: DrandGenesis,
		Hash:        DrandChainHash,
		SchemeID:    "bls-unchained-g1-rfc9380",
		BeaconID:    "quicknet",
	}
	return jsonResponse(info)
}

// MakeDrandPublicResponse creates a fake drand /public/latest response.
func MakeDrandPublicResponse(round uint64) *http.Response {
	resp := struct {
		Round      uint64 `json:"round"`
		Randomness string `json:"randomness"`
	}{
		Round:      round,
		Randomness: "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
	}
	return jsonResponse(resp)
}

func jsonResponse(v any) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// NewDrandHTTP returns a fake drand endpoint whose latest round is round.
func NewDrandHTTP(round uint64) *FakeHTTPDoer {
	return &FakeHTTPDoer{
		Responses: map[string]*http.Response{
			"/info":          MakeDrandInfoResponse(),
			"/public/latest": MakeDrandPublicResponse(round),
		},
	}
}

// FakeTimelockBox is a mock tlock implementation using a reversible
// encoding instead of encryption.
type FakeTimelockBox struct {
	EncryptError error
	DecryptError error
	// Rounds records the target round of every Encrypt call.
	Rounds []uint64
}

const fakeTlockPrefix = "FAKE_TLOCK:"

func (f *FakeTimelockBox) Encrypt(_ context.Context, data []byte, round uint64) (string, error) {
	if f.EncryptError != nil {
		return "", f.EncryptError
	}
	f.Rounds = append(f.Rounds, round)
	return fakeTlockPrefix + base64.StdEncoding.EncodeToString(data), nil
}

func (f *FakeTimelockBox) Decrypt(_ context.Context, ct string) ([]byte, error) {
	if f.DecryptError != nil {
		return nil, f.DecryptError
	}
	if strings.HasPrefix(ct, fakeTlockPrefix) {
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(ct, fakeTlockPrefix))
	}
	return nil, io.ErrUnexpectedEOF
}

// SetupTestEnv isolates HOME and XDG_DATA_HOME and returns the temporary
// home directory.
func SetupTestEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	for _, k := range []string{"TIMELOCK_STORE_DIR", "TIMELOCK_LOG_LEVEL", "TIMELOCK_BEACON_ENABLED"} {
		t.Setenv(k, "")
	}
	return home
}

// BuildBinary builds the timelock command with the testmode tag and
// returns the binary path. root is the module root relative to the caller.
func BuildBinary(t *testing.T, root string) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "timelock-test")
	cmd := exec.Command("go", "build", "-tags", "testmode", "-o", bin, "./cmd/timelock")
	cmd.Dir = root
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, output)
	}
	return bin
}

// UUIDRegex matches canonical lowercase UUIDs.
var UUIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsUUID validates that a string is a valid UUID.
func IsUUID(s string) bool {
	return UUIDRegex.MatchString(s)
}
