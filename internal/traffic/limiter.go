package traffic

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// Config is the limiter configuration. It is constructed once and treated as
// immutable afterwards; a Limiter never mutates it.
type Config struct {
	// Limit is the minimum number of seconds between allowed submissions per
	// client identity. Values below 1 disable limiting entirely.
	Limit int

	// Exempted lists literal addresses and CIDR ranges excused from the gate,
	// in match order.
	Exempted []string

	// StoreName is the opaque location handle passed through to the Store.
	StoreName string
}

// ParseExempted splits a comma-separated exemption list into entries,
// dropping empty segments. Entries are not validated here: a malformed entry
// fails closed at match time instead of failing startup.
func ParseExempted(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Limiter is the admission gate: at most one allowed submission per
// Config.Limit seconds per client identity. Each CanPass call is one complete
// read-purge-decide-write transaction over the persisted table.
type Limiter struct {
	cfg    Config
	store  Store
	secret []byte

	// mu serializes the table transaction. The design this reimplements had
	// no mutual exclusion here, so two concurrent checks for one identity
	// could both pass inside a single window; serializing per limiter closes
	// that race within a process. Cross-process deployments share a redis
	// table instead of a file.
	mu sync.Mutex

	// now is swappable in tests
	now func() time.Time

	// entries tracks the table size after the most recent transaction, for
	// observability only
	entries atomic.Int64
}

// New returns a Limiter over the given store. secret comes from the salt
// provider; changing it re-keys every identity and effectively resets the
// rate-limit history.
func New(cfg Config, store Store, secret []byte) *Limiter {
	return &Limiter{
		cfg:    cfg,
		store:  store,
		secret: secret,
		now:    time.Now,
	}
}

// Limit returns the configured window length in seconds.
func (l *Limiter) Limit() int { return l.cfg.Limit }

// Digest returns the keyed identity digest of rawAddr under the limiter's
// secret. Use AlgoStrong for logging and correlation; AlgoCompact is the
// table key.
func (l *Limiter) Digest(rawAddr string, algo Algo) string {
	return Digest(rawAddr, algo, l.secret)
}

// Decision is the outcome of an admission check.
type Decision int

const (
	// Denied: the identity was allowed within the current window.
	Denied Decision = iota
	// Allowed: the identity's window is open; its timestamp was recorded.
	Allowed
	// Exempted: the address matched the exemption list; the table was never
	// loaded, purged, or written.
	Exempted
	// Disabled: limiting is off (Limit < 1); the table is untouched.
	Disabled
)

// Pass reports whether the decision lets the request proceed.
func (d Decision) Pass() bool { return d != Denied }

func (d Decision) String() string {
	switch d {
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	case Exempted:
		return "exempted"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// CanPass decides whether a submission from rawAddr may proceed.
//
// Storage failures are returned to the caller and are never mapped to an
// allow or deny: correctness of the gate depends on table integrity.
func (l *Limiter) CanPass(ctx context.Context, rawAddr string) (bool, error) {
	d, err := l.Check(ctx, rawAddr)
	if err != nil {
		return false, err
	}
	return d.Pass(), nil
}

// Check is CanPass with the decision detail preserved, for callers that need
// to distinguish an exemption from an open window.
func (l *Limiter) Check(ctx context.Context, rawAddr string) (Decision, error) {
	if l.cfg.Limit < 1 {
		return Disabled, nil
	}

	// Exempted clients never touch the table.
	for _, entry := range l.cfg.Exempted {
		if Match(rawAddr, entry) {
			return Exempted, nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	table, err := l.loadTable(ctx)
	if err != nil {
		return Denied, err
	}

	now := l.now().Unix()
	limit := int64(l.cfg.Limit)
	table.Purge(now, limit)

	key := Digest(rawAddr, AlgoCompact, l.secret)

	decision := Allowed
	if last, ok := table[key]; ok && last+limit >= now {
		// Denied identities keep their original timestamp; repeated attempts
		// do not extend the window.
		decision = Denied
	} else {
		table[key] = now
	}

	// Written back even on denial so the table stays compacted.
	if err := l.store.Store(ctx, l.cfg.StoreName, table); err != nil {
		return Denied, xerrors.Wrap(err, "persist rate table")
	}
	l.entries.Store(int64(len(table)))

	return decision, nil
}

// TableEntries returns the table size observed by the most recent
// transaction.
func (l *Limiter) TableEntries() int64 { return l.entries.Load() }

func (l *Limiter) loadTable(ctx context.Context) (Table, error) {
	ok, err := l.store.Exists(ctx, l.cfg.StoreName)
	if err != nil {
		return nil, xerrors.Wrap(err, "check rate table")
	}
	if !ok {
		return Table{}, nil
	}
	t, err := l.store.Load(ctx, l.cfg.StoreName)
	if err != nil {
		return nil, xerrors.Wrap(err, "load rate table")
	}
	return t, nil
}
