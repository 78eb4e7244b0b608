// internal/browser/humanoid/keyboard.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Config holds the keystroke timing parameters. All values are milliseconds
// except the factors.
type Config struct {
	KeyPauseMean         float64
	KeyPauseStdDev       float64
	KeyPauseMin          float64
	KeyPauseNgramFactor2 float64
	KeyPauseNgramFactor3 float64
	// BurstSpeedFactor scales pauses inside a word.
	BurstSpeedFactor float64
	// WordPauseMean is the pause before the first key of a new word.
	WordPauseMean   float64
	WordPauseStdDev float64
}

// DefaultConfig returns timings close to a practiced typist.
func DefaultConfig() Config {
	return Config{
		KeyPauseMean:         70.0,
		KeyPauseStdDev:       28.0,
		KeyPauseMin:          35.0,
		KeyPauseNgramFactor2: 0.7,
		KeyPauseNgramFactor3: 0.55,
		BurstSpeedFactor:     0.7,
		WordPauseMean:        140.0,
		WordPauseStdDev:      50.0,
	}
}

// -- commonNgrams contains common letter combinations typed with less hesitation --
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// Keystroke is a run of keys sent together after Delay.
type Keystroke struct {
	Keys  string
	Delay time.Duration
}

// Typist plans and plays back keystrokes with a burst-and-pause rhythm.
// It never introduces typos: the text arrives in the field verbatim.
type Typist struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand
}

// New creates a Typist. A zero seed picks one from the clock.
func New(cfg Config, seed int64) *Typist {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Typist{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Plan splits text into one keystroke per rune. Joining the Keys of the
// result always reproduces text.
func (t *Typist) Plan(text string) []Keystroke {
	runes := []rune(text)
	plan := make([]Keystroke, 0, len(runes))

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range runes {
		var ms float64
		switch {
		case i == 0:
			ms = t.cfg.KeyPauseMin
		case unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(r):
			ms = t.sample(t.cfg.WordPauseMean, t.cfg.WordPauseStdDev, t.cfg.KeyPauseMin)
		default:
			ms = t.keyPause(runes, i)
		}
		plan = append(plan, Keystroke{Keys: string(r), Delay: time.Duration(ms * float64(time.Millisecond))})
	}
	return plan
}

// keyPause is the inter-key delay inside a word. Callers hold t.mu.
func (t *Typist) keyPause(runes []rune, i int) float64 {
	factor := t.cfg.BurstSpeedFactor
	if factor <= 0 {
		factor = 1
	}
	if i > 1 && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))] {
		factor *= t.cfg.KeyPauseNgramFactor3
	} else if commonNgrams[strings.ToLower(string(runes[i-1:i+1]))] {
		factor *= t.cfg.KeyPauseNgramFactor2
	}
	return t.sample(t.cfg.KeyPauseMean*factor, t.cfg.KeyPauseStdDev*factor, t.cfg.KeyPauseMin*factor)
}

func (t *Typist) sample(mean, stdDev, floor float64) float64 {
	return math.Max(floor, t.rng.NormFloat64()*stdDev+mean)
}

// Type plays the plan for text through send, sleeping before each
// keystroke. It stops early when ctx is done.
func (t *Typist) Type(ctx context.Context, text string, send func(ctx context.Context, keys string) error) error {
	for _, k := range t.Plan(text) {
		if err := sleep(ctx, k.Delay); err != nil {
			return err
		}
		if err := send(ctx, k.Keys); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
