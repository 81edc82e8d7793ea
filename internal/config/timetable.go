package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Timetable is the polled JSON contract of spec §6: the set of streams
// the engine should be running for a trading date, keyed by stream name.
type Timetable struct {
	AsOf        *time.Time    `json:"as_of,omitempty"`
	TradingDate string        `json:"trading_date"`
	Timezone    string        `json:"timezone"`
	Source      string        `json:"source,omitempty"`
	Streams     []StreamEntry `json:"streams"`
}

// StreamEntry is one row of the timetable.
type StreamEntry struct {
	Stream     string `json:"stream"`
	Instrument string `json:"instrument"`
	Session    string `json:"session"`
	SlotTime   string `json:"slot_time"`
	Enabled    bool   `json:"enabled"`
}

// Hash returns the lowercase hex sha256 of the raw file bytes, captured
// at commit time the way spec §6 requires.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// LoadTimetable reads and parses the timetable JSON file, returning the
// parsed contract and the hash of its raw bytes.
func LoadTimetable(path string) (Timetable, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Timetable{}, "", fmt.Errorf("read timetable: %w", err)
	}
	var tt Timetable
	if err := json.Unmarshal(raw, &tt); err != nil {
		return Timetable{}, "", fmt.Errorf("parse timetable JSON: %w", err)
	}
	if tt.TradingDate == "" {
		return Timetable{}, "", fmt.Errorf("timetable: trading_date required")
	}
	return tt, Hash(raw), nil
}

// StreamHandler is the subset of engine behavior the poller needs: it
// must be able to report a stream's current state (so a slot_time change
// can be rejected once the stream has left PRE_HYDRATION) and apply an
// accepted timetable row.
type StreamHandler interface {
	StreamState(streamID string) (state string, ok bool)
	ApplyStream(entry StreamEntry) error
}

// Poller re-reads a timetable file on an interval, diffs it against the
// last-applied hash, and pushes accepted rows to a StreamHandler. A
// rate.Limiter bounds manual Reload calls (e.g. from an operator-facing
// HTTP endpoint) so a misbehaving caller can't thrash the filesystem
// between ticks.
type Poller struct {
	path     string
	interval time.Duration
	handler  StreamHandler
	log      zerolog.Logger

	limiter *rate.Limiter

	lastHash    string
	lastEntries map[string]StreamEntry
}

// NewPoller constructs a Poller. interval bounds the periodic re-read;
// manualBurst bounds how many manual Reload calls can happen in a burst
// on top of that.
func NewPoller(path string, interval time.Duration, manualBurst int, handler StreamHandler, log zerolog.Logger) *Poller {
	return &Poller{
		path:     path,
		interval: interval,
		handler:  handler,
		log:      log,
		limiter:  rate.NewLimiter(rate.Every(interval), manualBurst),
	}
}

// Run blocks, polling path every interval until ctx is cancelled. The
// first read always applies regardless of the rate limiter.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.reload(); err != nil {
		p.log.Warn().Err(err).Str("path", p.path).Msg("initial timetable load failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.reload(); err != nil {
				p.log.Warn().Err(err).Str("path", p.path).Msg("timetable poll failed")
			}
		}
	}
}

// Reload forces an out-of-band re-read, subject to the manual-call rate
// limit. Returns an error if the limiter rejects the call.
func (p *Poller) Reload() error {
	if !p.limiter.Allow() {
		return fmt.Errorf("timetable: manual reload rate limit exceeded")
	}
	return p.reload()
}

func (p *Poller) reload() error {
	tt, hash, err := LoadTimetable(p.path)
	if err != nil {
		return err
	}
	if hash == p.lastHash {
		return nil
	}

	nextEntries := make(map[string]StreamEntry, len(tt.Streams))
	for _, entry := range tt.Streams {
		nextEntries[entry.Stream] = entry

		prior, existed := p.lastEntries[entry.Stream]
		slotTimeChanged := existed && prior.SlotTime != entry.SlotTime
		if slotTimeChanged {
			if state, ok := p.handler.StreamState(entry.Stream); ok && state != "PRE_HYDRATION" {
				p.log.Warn().
					Str("stream", entry.Stream).
					Str("state", state).
					Str("prior_slot_time", prior.SlotTime).
					Str("new_slot_time", entry.SlotTime).
					Msg("rejected timetable slot_time change: stream past PRE_HYDRATION")
				nextEntries[entry.Stream] = prior
				continue
			}
		}
		if err := p.handler.ApplyStream(entry); err != nil {
			p.log.Error().Err(err).Str("stream", entry.Stream).Msg("apply timetable entry failed")
		}
	}

	p.log.Info().Str("hash", hash).Int("streams", len(tt.Streams)).Msg("timetable reloaded")
	p.lastHash = hash
	p.lastEntries = nextEntries
	return nil
}
