// Package idpfakes provides a hand-written fake identity provider for
// tests.
package idpfakes

import (
	"context"
	"sync/atomic"

	"github.com/drinkorder/order-gateway/credentials"
	"github.com/drinkorder/order-gateway/idp"
)

// FakeProvider implements idp.Provider with per-call function hooks and
// call counters. Unset hooks fail loudly via nil dereference, which is
// what a test exercising an unexpected path deserves.
type FakeProvider struct {
	PasswordLoginFunc  func(ctx context.Context, username, password string) (credentials.TokenPair, error)
	RefreshFunc        func(ctx context.Context, refreshToken string) (credentials.TokenPair, error)
	ValidateFunc       func(ctx context.Context, accessToken string) bool
	FetchPrincipalFunc func(ctx context.Context, accessToken string) (idp.Principal, error)
	FetchTenantFunc    func(ctx context.Context, accessToken, userID string) (string, error)

	PasswordLoginCalls  atomic.Int64
	RefreshCalls        atomic.Int64
	ValidateCalls       atomic.Int64
	FetchPrincipalCalls atomic.Int64
	FetchTenantCalls    atomic.Int64
}

var _ idp.Provider = (*FakeProvider)(nil)

// NewFakeProvider returns a fake preloaded with a happy-path user:
// password grant succeeds with the given pair, the principal is
// U1/Alice, and the tenant lookup returns T1.
func NewFakeProvider(pair credentials.TokenPair) *FakeProvider {
	return &FakeProvider{
		PasswordLoginFunc: func(context.Context, string, string) (credentials.TokenPair, error) {
			return pair, nil
		},
		RefreshFunc: func(context.Context, string) (credentials.TokenPair, error) {
			return pair, nil
		},
		ValidateFunc: func(context.Context, string) bool { return true },
		FetchPrincipalFunc: func(context.Context, string) (idp.Principal, error) {
			return idp.Principal{UserID: "U1", DisplayName: "Alice", Email: "a@x.com"}, nil
		},
		FetchTenantFunc: func(context.Context, string, string) (string, error) {
			return "T1", nil
		},
	}
}

func (f *FakeProvider) PasswordLogin(ctx context.Context, username, password string) (credentials.TokenPair, error) {
	f.PasswordLoginCalls.Add(1)
	return f.PasswordLoginFunc(ctx, username, password)
}

func (f *FakeProvider) Refresh(ctx context.Context, refreshToken string) (credentials.TokenPair, error) {
	f.RefreshCalls.Add(1)
	return f.RefreshFunc(ctx, refreshToken)
}

func (f *FakeProvider) Validate(ctx context.Context, accessToken string) bool {
	f.ValidateCalls.Add(1)
	return f.ValidateFunc(ctx, accessToken)
}

func (f *FakeProvider) FetchPrincipal(ctx context.Context, accessToken string) (idp.Principal, error) {
	f.FetchPrincipalCalls.Add(1)
	return f.FetchPrincipalFunc(ctx, accessToken)
}

func (f *FakeProvider) FetchTenant(ctx context.Context, accessToken, userID string) (string, error) {
	f.FetchTenantCalls.Add(1)
	return f.FetchTenantFunc(ctx, accessToken, userID)
}

// RemoteCalls returns the total number of simulated remote calls.
func (f *FakeProvider) RemoteCalls() int64 {
	return f.PasswordLoginCalls.Load() +
		f.RefreshCalls.Load() +
		f.ValidateCalls.Load() +
		f.FetchPrincipalCalls.Load() +
		f.FetchTenantCalls.Load()
}
