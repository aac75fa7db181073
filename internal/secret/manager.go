package secret

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
)

// Option keys used in the backing store.
const (
	KeyCurrent          = "cron_secret"
	KeyLegacy           = "cron_secret_legacy"
	KeyMigrationStarted = "cron_secret_migration_started_at"
)

// Store persists the secret and rotation state opaquely.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Notice is shown to administrators while a rotation grace period runs.
type Notice struct {
	Message    string    `json:"message"`
	NewSecret  string    `json:"-"`
	GraceEnds  time.Time `json:"grace_ends"`
	TriggerURL string    `json:"trigger_url,omitempty"`
}

// Manager owns the external trigger secret. A rotation keeps the previous
// secret valid for Grace after it started, then drops it.
type Manager struct {
	store          Store
	legacyDefaults map[string]struct{}
	grace          time.Duration
	log            zerolog.Logger

	// Now and Compare are replaceable for tests.
	Now     func() time.Time
	Compare func(a, b []byte) int
}

func NewManager(store Store, legacyDefaults []string, grace time.Duration, log zerolog.Logger) *Manager {
	defaults := make(map[string]struct{}, len(legacyDefaults))
	for _, d := range legacyDefaults {
		defaults[d] = struct{}{}
	}
	return &Manager{
		store:          store,
		legacyDefaults: defaults,
		grace:          grace,
		log:            log.With().Str("component", "secret-manager").Logger(),
		Now:            time.Now,
		Compare:        subtle.ConstantTimeCompare,
	}
}

// Generate returns a new 256-bit hex secret.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Current returns the active secret. It creates one when none is stored and
// starts a migration when the stored value is a known weak default.
func (m *Manager) Current(ctx context.Context) (string, error) {
	cur, ok, err := m.store.Get(ctx, KeyCurrent)
	if err != nil {
		return "", err
	}
	if !ok || cur == "" {
		fresh, err := Generate()
		if err != nil {
			return "", err
		}
		if err := m.store.Set(ctx, KeyCurrent, fresh); err != nil {
			return "", err
		}
		m.log.Info().Msg("generated trigger secret")
		return fresh, nil
	}
	if _, weak := m.legacyDefaults[cur]; weak {
		m.log.Warn().Msg("stored trigger secret is a legacy default, starting migration")
		return m.rotateFrom(ctx, cur)
	}
	return cur, nil
}

// Rotate replaces the active secret and keeps the old one valid for the
// grace period. Only one retired secret is tracked, so a rotation while a
// grace period runs is refused with ErrRotationInProgress.
func (m *Manager) Rotate(ctx context.Context) (string, error) {
	cur, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	_, started, in, err := m.graceState(ctx)
	if err != nil {
		return "", err
	}
	if in {
		m.log.Warn().Time("grace_ends", started.Add(m.grace).UTC()).Msg("rotation refused during grace period")
		return "", appErrors.ErrRotationInProgress
	}
	return m.rotateFrom(ctx, cur)
}

func (m *Manager) rotateFrom(ctx context.Context, old string) (string, error) {
	fresh, err := Generate()
	if err != nil {
		return "", err
	}
	// Legacy first: a crash between writes must not lose the old value.
	if err := m.store.Set(ctx, KeyLegacy, old); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, KeyMigrationStarted, strconv.FormatInt(m.Now().Unix(), 10)); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, KeyCurrent, fresh); err != nil {
		return "", err
	}
	m.log.Info().Dur("grace", m.grace).Msg("trigger secret rotated")
	return fresh, nil
}

// IsInGracePeriod reports whether the previous secret is still accepted. An
// elapsed migration record is cleared.
func (m *Manager) IsInGracePeriod(ctx context.Context) (bool, error) {
	_, _, in, err := m.graceState(ctx)
	return in, err
}

func (m *Manager) graceState(ctx context.Context) (legacy string, started time.Time, in bool, err error) {
	raw, ok, err := m.store.Get(ctx, KeyMigrationStarted)
	if err != nil || !ok {
		return "", time.Time{}, false, err
	}
	ts, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil {
		m.log.Warn().Str("value", raw).Msg("unreadable migration timestamp, clearing")
		return "", time.Time{}, false, m.clearMigration(ctx)
	}
	started = time.Unix(ts, 0)
	if !m.Now().Before(started.Add(m.grace)) {
		m.log.Info().Time("started", started).Msg("secret grace period elapsed, legacy secret retired")
		return "", started, false, m.clearMigration(ctx)
	}
	legacy, ok, err = m.store.Get(ctx, KeyLegacy)
	if err != nil || !ok || legacy == "" {
		return "", started, false, err
	}
	return legacy, started, true, nil
}

func (m *Manager) clearMigration(ctx context.Context) error {
	if err := m.store.Delete(ctx, KeyLegacy); err != nil {
		return err
	}
	return m.store.Delete(ctx, KeyMigrationStarted)
}

// Verify checks a supplied secret. Both comparisons always run so the timing
// does not depend on whether a grace period is active. Values are hashed
// first so comparisons are over equal-length inputs.
func (m *Manager) Verify(ctx context.Context, supplied string) (bool, error) {
	cur, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	legacy, _, inGrace, err := m.graceState(ctx)
	if err != nil {
		return false, err
	}
	if !inGrace {
		legacy = cur
	}

	got := sha256.Sum256([]byte(supplied))
	want := sha256.Sum256([]byte(cur))
	old := sha256.Sum256([]byte(legacy))

	curOK := m.Compare(got[:], want[:])
	legacyOK := m.Compare(got[:], old[:])

	grace := 0
	if inGrace {
		grace = 1
	}
	return curOK|(legacyOK&grace) == 1, nil
}

// PendingNotice returns the administrator warning while a rotation grace
// period runs, or nil.
func (m *Manager) PendingNotice(ctx context.Context) (*Notice, error) {
	_, started, in, err := m.graceState(ctx)
	if err != nil || !in {
		return nil, err
	}
	cur, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	ends := started.Add(m.grace)
	return &Notice{
		Message:   fmt.Sprintf("The external trigger secret was rotated. The previous secret stops working on %s; update your cron callers to the new trigger URL.", ends.UTC().Format("2006-01-02")),
		NewSecret: cur,
		GraceEnds: ends.UTC(),
	}, nil
}
