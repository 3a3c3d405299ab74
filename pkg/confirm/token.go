package confirm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by Consume.
var (
	ErrMalformed = errors.New("confirmation token malformed")
	ErrSignature = errors.New("confirmation token signature invalid")
	ErrExpired   = errors.New("confirmation token expired")
	ErrKind      = errors.New("confirmation token issued for a different action")
	ErrReused    = errors.New("confirmation token already used")
)

// Issuer creates single-use, expiring tokens bound to an action kind.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time
}

// NewIssuer constructs an issuer. An empty secret is replaced by random bytes, which scopes tokens to the process.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte(uuid.NewString())
		}
	}
	return &Issuer{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
		used:   make(map[string]time.Time),
	}
}

// WithClock overrides the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue returns a token for kind and its expiry.
func (i *Issuer) Issue(kind string) (string, time.Time, error) {
	if kind == "" || strings.Contains(kind, ".") {
		return "", time.Time{}, fmt.Errorf("invalid confirmation kind %q", kind)
	}
	expiresAt := i.now().Add(i.ttl)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	ts := strconv.FormatInt(expiresAt.UnixNano(), 10)
	token := strings.Join([]string{kind, ts, nonce, i.sign(kind, ts, nonce)}, ".")
	return token, expiresAt, nil
}

// Consume validates token for kind and marks it used. A token is accepted at most once.
func (i *Issuer) Consume(token, kind string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return ErrMalformed
	}
	tokenKind, ts, nonce, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(i.sign(tokenKind, ts, nonce)), []byte(signature)) {
		return ErrSignature
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if tokenKind != kind {
		return ErrKind
	}
	now := i.now()
	expiresAt := time.Unix(0, expUnix)
	if now.After(expiresAt) {
		return ErrExpired
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.prune(now)
	if _, seen := i.used[nonce]; seen {
		return ErrReused
	}
	i.used[nonce] = expiresAt
	return nil
}

func (i *Issuer) sign(kind, ts, nonce string) string {
	mac := hmac.New(sha256.New, i.secret)
	_, _ = mac.Write([]byte(kind + "|" + ts + "|" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

func (i *Issuer) prune(now time.Time) {
	for nonce, expiresAt := range i.used {
		if now.After(expiresAt) {
			delete(i.used, nonce)
		}
	}
}
