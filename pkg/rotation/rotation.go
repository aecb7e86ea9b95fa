// Package rotation picks which (credential, model) pair a privileged Gemini
// call should use, tracking temporarily exhausted pairs. The exhaustion table
// is shared across sessions and self-heals: expired entries are evicted on
// lookup, so no background sweep is needed for correctness.
package rotation

import (
	"log/slog"
	"sync"
	"time"
)

// Mode selects how credentials are sourced.
type Mode string

const (
	// ModeSingle uses one backend credential and one model, no tracking.
	ModeSingle Mode = "single"
	// ModeUserKey iterates candidate models for a caller-supplied credential.
	ModeUserKey Mode = "user_key"
	// ModePool rotates a pool of backend credentials paired index-wise with
	// the model list, then falls back to cross-combinations.
	ModePool Mode = "pool"
)

const (
	minuteCooldown       = 65 * time.Second
	inaccessibleCooldown = time.Hour
)

// The provider's daily quotas reset at midnight Pacific.
var providerDay = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

// Pair is one usable credential/model combination.
type Pair struct {
	Credential string
	Model      string
}

type Config struct {
	Mode Mode

	// Single-mode credential and model.
	Credential string
	Model      string

	// Pool-mode credentials; paired index-wise with Models.
	Pool []string

	// Candidate models for user-key and pool modes.
	Models []string

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Policy struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	exhausted map[string]time.Time
}

func New(cfg Config) *Policy {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Policy{
		cfg:       cfg,
		logger:    logger.With("component", "rotation"),
		now:       now,
		exhausted: make(map[string]time.Time),
	}
}

// Next returns the next available pair, or nil if every candidate is
// currently exhausted. requested is the caller-supplied credential, used only
// in user-key mode.
func (p *Policy) Next(requested string) *Pair {
	switch p.cfg.Mode {
	case ModeUserKey:
		if requested == "" {
			return nil
		}
		for _, model := range p.cfg.Models {
			if !p.isExhausted(requested, model) {
				return &Pair{Credential: requested, Model: model}
			}
		}
		p.logger.Warn("all models exhausted for caller credential")
		return nil
	case ModePool:
		n := min(len(p.cfg.Pool), len(p.cfg.Models))
		for i := 0; i < n; i++ {
			if !p.isExhausted(p.cfg.Pool[i], p.cfg.Models[i]) {
				return &Pair{Credential: p.cfg.Pool[i], Model: p.cfg.Models[i]}
			}
		}
		for _, cred := range p.cfg.Pool {
			for _, model := range p.cfg.Models {
				if !p.isExhausted(cred, model) {
					return &Pair{Credential: cred, Model: model}
				}
			}
		}
		p.logger.Error("credential pool fully exhausted")
		return nil
	default:
		return &Pair{Credential: p.cfg.Credential, Model: p.cfg.Model}
	}
}

// FlagExhausted records a quota or rate exhaustion for the pair. Daily quota
// exhaustion lasts until the provider's day rolls over; rate exhaustion uses
// a short fixed cooldown.
func (p *Policy) FlagExhausted(credential, model string, daily bool) {
	var expiry time.Time
	if daily {
		nowLocal := p.now().In(providerDay)
		midnight := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, providerDay).AddDate(0, 0, 1)
		expiry = midnight
		p.logger.Warn("pair exhausted until provider day rollover", "model", model, "until", midnight)
	} else {
		expiry = p.now().Add(minuteCooldown)
		p.logger.Warn("pair exhausted for minute cooldown", "model", model)
	}
	p.record(credential, model, expiry)
}

// FlagInaccessible records a longer cooldown after an access-denied response.
func (p *Policy) FlagInaccessible(credential, model string) {
	p.logger.Warn("pair flagged inaccessible", "model", model)
	p.record(credential, model, p.now().Add(inaccessibleCooldown))
}

func (p *Policy) record(credential, model string, expiry time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted[comboKey(credential, model)] = expiry
}

func (p *Policy) isExhausted(credential, model string) bool {
	key := comboKey(credential, model)
	p.mu.Lock()
	defer p.mu.Unlock()
	expiry, ok := p.exhausted[key]
	if !ok {
		return false
	}
	if p.now().After(expiry) {
		delete(p.exhausted, key)
		return false
	}
	return true
}

// comboKey uses only the credential suffix so the full key never reaches
// logs or memory dumps.
func comboKey(credential, model string) string {
	suffix := credential
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return suffix + ":" + model
}
