package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/drinkorder/order-gateway/credentials"
	"github.com/drinkorder/order-gateway/idp"
)

// refreshMargin is the window before expiry in which a read triggers the
// validate-then-refresh path.
const refreshMargin = 5 * time.Minute

// Manager orchestrates login, proactive refresh-on-read and failure
// signaling. Refresh is lazy (triggered by reads, never by a timer) and
// a token is validated before a refresh so that a one-time-use refresh
// token is not burned while the access token is in fact still good.
type Manager struct {
	provider    idp.Provider
	store       *credentials.Store
	instanceURL string
	nowTime     func() time.Time

	// refreshing ensures at most one refresh grant is in flight per user;
	// concurrent readers of the same expiring session share its result.
	refreshing singleflight.Group
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a session manager.
func NewManager(provider idp.Provider, store *credentials.Store, instanceURL string, options ...ManagerOption) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("[NewManager] provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if instanceURL == "" {
		return nil, errors.New("[NewManager] instance URL is required")
	}

	m := &Manager{
		provider:    provider,
		store:       store,
		instanceURL: instanceURL,
		nowTime:     time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Login authenticates a user against the identity provider. All three
// lookups (token exchange, principal, tenant) must succeed; any failure
// surfaces the specific error, creates no session and is not retried.
func (m *Manager) Login(ctx context.Context, username, password string) (Record, error) {
	pair, err := m.provider.PasswordLogin(ctx, username, password)
	if err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Login] password grant")
	}

	principal, err := m.provider.FetchPrincipal(ctx, pair.AccessToken)
	if err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Login] fetch principal")
	}

	tenantID, err := m.provider.FetchTenant(ctx, pair.AccessToken, principal.UserID)
	if err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Login] fetch tenant")
	}

	m.store.Put(username, pair)

	return Record{
		UserID:      principal.UserID,
		Username:    username,
		Name:        principal.DisplayName,
		Email:       principal.Email,
		TokenPair:   pair,
		InstanceURL: m.instanceURL,
		TenantID:    tenantID,
	}, nil
}

// Materialize applies the read-time check to a session record and
// returns the record to serve, plus whether it changed and must be
// re-persisted by the caller.
//
// An errored record is returned untouched: the refresh-failed state is
// terminal until a fresh login. A record with enough lifetime left is
// served as-is with zero remote calls. Near expiry, the access token is
// validated first; only an invalid token triggers the refresh grant.
// A failed refresh purges the credential store and marks the record.
func (m *Manager) Materialize(ctx context.Context, rec Record) (Record, bool) {
	if rec.Errored() {
		return rec, false
	}

	changed := false
	now := m.nowTime()

	// Another request may already have refreshed this user's pair; adopt
	// the cached one instead of paying for validation again.
	if cached, ok := m.store.Get(rec.Username); ok && cached.ExpiresAt.After(rec.TokenPair.ExpiresAt) {
		rec.TokenPair = cached
		changed = true
	}

	if rec.TokenPair.Remaining(now) >= refreshMargin {
		return rec, changed
	}

	if m.provider.Validate(ctx, rec.TokenPair.AccessToken) {
		// Still good upstream; tolerate the margin false positive cheaply.
		return rec, changed
	}

	pair, err := m.refresh(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Str("user_id", rec.UserID).Msg("token refresh failed, session requires re-login")
		rec.Error = RefreshAccessTokenError
		return rec, true
	}

	rec.TokenPair = pair
	return rec, true
}

func (m *Manager) refresh(ctx context.Context, rec Record) (credentials.TokenPair, error) {
	v, err, _ := m.refreshing.Do(rec.UserID, func() (interface{}, error) {
		pair, err := m.provider.Refresh(ctx, rec.TokenPair.RefreshToken)
		if err != nil {
			// A rejected refresh token must never be reused; purge
			// everything and force a clean re-login.
			m.store.Clear()
			return nil, err
		}
		m.store.Put(rec.Username, pair)
		return pair, nil
	})
	if err != nil {
		return credentials.TokenPair{}, err
	}
	return v.(credentials.TokenPair), nil
}

// Logout drops all cached credentials unconditionally.
func (m *Manager) Logout() {
	m.store.Clear()
}
