package beacon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/drand/tlock"
	thttp "github.com/drand/tlock/networks/http"
)

// QuicknetChainHash is the chain hash for drand quicknet.
const QuicknetChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TimelockBox abstracts tlock encryption so tests can run offline.
type TimelockBox interface {
	Encrypt(ctx context.Context, data []byte, round uint64) (string, error)
	Decrypt(ctx context.Context, ciphertextB64 string) ([]byte, error)
}

// Info is the drand chain description served at /info.
type Info struct {
	Period      int    `json:"period"`
	GenesisTime int64  `json:"genesis_time"`
	Hash        string `json:"hash"`
	GroupHash   string `json:"groupHash"`
	SchemeID    string `json:"schemeID"`
	BeaconID    string `json:"beaconID"`
}

type publicResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
}

// Drand is an Authority backed by the drand randomness beacon.
type Drand struct {
	NetworkName string
	// BaseURL is the chain root, i.e. host followed by the chain hash.
	BaseURL    string
	HTTPClient HTTPDoer
	Timelock   TimelockBox

	mu   sync.Mutex
	info *Info
}

// NewDrand creates an authority for the chain at host with chainHash.
// Nil dependencies select the real network implementations.
func NewDrand(host, chainHash string, client HTTPDoer, box TimelockBox) *Drand {
	host = strings.TrimRight(host, "/")
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if box == nil {
		box = &TlockBox{Host: host, ChainHash: chainHash}
	}

	name := "drand"
	if chainHash == QuicknetChainHash {
		name = "drand-quicknet"
	}

	return &Drand{
		NetworkName: name,
		BaseURL:     host + "/" + chainHash,
		HTTPClient:  client,
		Timelock:    box,
	}
}

func (d *Drand) Name() string {
	return d.NetworkName
}

// RoundAt rounds up so the returned round is never published before t.
func (d *Drand) RoundAt(ctx context.Context, t time.Time) (uint64, error) {
	info, err := d.FetchInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch drand info: %w", err)
	}
	if info.Period <= 0 {
		return 0, fmt.Errorf("invalid drand period %d", info.Period)
	}

	elapsed := t.Unix() - info.GenesisTime
	if elapsed < 0 {
		return 0, fmt.Errorf("time %s is before drand genesis", t.Format(time.RFC3339))
	}

	period := uint64(info.Period)
	round := uint64(elapsed) / period
	if uint64(elapsed)%period != 0 {
		round++
	}
	// Round 1 is emitted at genesis.
	return round + 1, nil
}

func (d *Drand) TimeLockEncrypt(ctx context.Context, data []byte, round uint64) (string, error) {
	return d.Timelock.Encrypt(ctx, data, round)
}

func (d *Drand) TimeLockDecrypt(ctx context.Context, ciphertextB64 string) ([]byte, error) {
	return d.Timelock.Decrypt(ctx, ciphertextB64)
}

func (d *Drand) Reached(ctx context.Context, round uint64) (bool, error) {
	var latest publicResponse
	if err := d.getJSON(ctx, "/public/latest", &latest); err != nil {
		return false, fmt.Errorf("failed to fetch latest round: %w", err)
	}
	return latest.Round >= round, nil
}

// FetchInfo returns the chain info, fetching it once.
func (d *Drand) FetchInfo(ctx context.Context) (*Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil {
		return d.info, nil
	}

	var info Info
	if err := d.getJSON(ctx, "/info", &info); err != nil {
		return nil, err
	}
	d.info = &info
	return &info, nil
}

func (d *Drand) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drand request %s failed: %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// TlockBox implements TimelockBox with the tlock library.
type TlockBox struct {
	Host      string
	ChainHash string
}

func (b *TlockBox) Encrypt(ctx context.Context, data []byte, round uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	network, err := thttp.NewNetwork(b.Host, b.ChainHash)
	if err != nil {
		return "", fmt.Errorf("failed to create tlock network: %w", err)
	}

	var out bytes.Buffer
	if err := tlock.New(network).Encrypt(&out, bytes.NewReader(data), round); err != nil {
		return "", fmt.Errorf("failed to tlock encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

func (b *TlockBox) Decrypt(ctx context.Context, ciphertextB64 string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tlock ciphertext: %w", err)
	}

	network, err := thttp.NewNetwork(b.Host, b.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("failed to create tlock network: %w", err)
	}

	var out bytes.Buffer
	if err := tlock.New(network).Decrypt(&out, bytes.NewReader(ct)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
