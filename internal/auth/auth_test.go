package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/storage"
)

func newService(t *testing.T, tokens map[string]Token) *Service {
	t.Helper()
	var list []Token
	for raw, tok := range tokens {
		hash, err := HashToken(raw)
		require.NoError(t, err)
		tok.Hash = hash
		list = append(list, tok)
	}
	s, err := NewService(list, nil)
	require.NoError(t, err)
	return s
}

func TestValidateToken(t *testing.T) {
	s := newService(t, map[string]Token{
		"admin-secret":  {Name: "ops", Role: RoleAdmin},
		"viewer-secret": {Name: "dash", Role: RoleViewer, ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	s.now = func() time.Time { return time.Date(2029, 6, 1, 0, 0, 0, 0, time.UTC) }

	p, err := s.ValidateToken("admin-secret")
	require.NoError(t, err)
	assert.Equal(t, Principal{Name: "ops", Role: RoleAdmin}, p)

	// Second lookup is served from the digest cache.
	p, err = s.ValidateToken("admin-secret")
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Name)
	assert.Len(t, s.validated, 1)

	p, err = s.ValidateToken("viewer-secret")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, p.Role)

	_, err = s.ValidateToken("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.ValidateToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = s.ValidateToken("viewer-secret")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewService_RejectsIncompleteTokens(t *testing.T) {
	_, err := NewService([]Token{{Name: "x", Role: RoleAdmin}}, nil)
	assert.Error(t, err)
	_, err = NewService([]Token{{Name: "x", Hash: "h"}}, nil)
	assert.Error(t, err)
}

func TestEnforce_DefaultRoles(t *testing.T) {
	s, err := NewService(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		role, obj, act string
		want           bool
	}{
		{RoleAdmin, ObjResources, ActWrite, true},
		{RoleAdmin, "anything", "delete", true},
		{RoleOperator, ObjResources, ActWrite, true},
		{RoleOperator, ObjRates, ActRead, true},
		{RoleOperator, ObjProviders, ActWrite, false},
		{RoleViewer, ObjRates, ActRead, true},
		{RoleViewer, ObjResources, ActRead, true},
		{RoleViewer, ObjResources, ActWrite, false},
		{"stranger", ObjRates, ActRead, false},
	}
	for _, tt := range tests {
		got, err := s.Enforce(tt.role, tt.obj, tt.act)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.role, tt.obj, tt.act)
	}
}

func TestMiddleware(t *testing.T) {
	s := newService(t, map[string]Token{
		"admin-secret":  {Name: "ops", Role: RoleAdmin},
		"viewer-secret": {Name: "dash", Role: RoleViewer},
	})
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := s.Middleware(s.RequirePermission(ObjResources, ActWrite, ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"viewer", "Bearer viewer-secret", http.StatusForbidden},
		{"admin", "Bearer admin-secret", http.StatusNoContent},
		{"lowercase scheme", "bearer admin-secret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/resources/ECB-daily/load", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_StoresPrincipal(t *testing.T) {
	s := newService(t, map[string]Token{"viewer-secret": {Name: "dash", Role: RoleViewer}})

	var got Principal
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer viewer-secret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, Principal{Name: "dash", Role: RoleViewer}, got)
}

func TestAdapter_PersistsPolicy(t *testing.T) {
	cache := storage.NewMemory()

	_, err := NewService(nil, NewAdapter(cache))
	require.NoError(t, err)

	raw, err := cache.Read(context.Background(), PolicyKey)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "p, admin, *, *")
	assert.Contains(t, text, "p, viewer, rates, read")
	assert.Contains(t, text, "g, operator, viewer")

	// A custom rule survives into the next service built on the same cache.
	a := NewAdapter(cache)
	require.NoError(t, a.AddPolicy("p", "p", []string{"auditor", ObjRates, ActRead}))
	require.NoError(t, a.AddPolicy("p", "p", []string{"auditor", ObjRates, ActRead}))

	s, err := NewService(nil, NewAdapter(cache))
	require.NoError(t, err)
	allowed, err := s.Enforce("auditor", ObjRates, ActRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	raw, err = cache.Read(context.Background(), PolicyKey)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "auditor"))
}

func TestAdapter_Remove(t *testing.T) {
	cache := storage.NewMemory()
	a := NewAdapter(cache)
	require.NoError(t, a.AddPolicy("p", "p", []string{"viewer", ObjRates, ActRead}))
	require.NoError(t, a.AddPolicy("p", "p", []string{"viewer", ObjProviders, ActRead}))
	require.NoError(t, a.AddPolicy("p", "p", []string{"admin", "*", "*"}))

	require.NoError(t, a.RemovePolicy("p", "p", []string{"admin", "*", "*"}))
	lines, err := a.readLines()
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	require.NoError(t, a.RemoveFilteredPolicy("p", "p", 0, "viewer"))
	lines, err = a.readLines()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.False(t, cache.IsCached(context.Background(), PolicyKey))
}

func TestGenerateToken(t *testing.T) {
	a, b := GenerateToken(), GenerateToken()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	hash, err := HashToken(a)
	require.NoError(t, err)
	s, err := NewService([]Token{{Name: "gen", Hash: hash, Role: RoleViewer}}, nil)
	require.NoError(t, err)
	_, err = s.ValidateToken(a)
	assert.NoError(t, err)
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: time.Time{}},
		{in: "never", want: time.Time{}},
		{in: "36h", want: now.Add(36 * time.Hour)},
		{in: "30d", want: now.AddDate(0, 0, 30)},
		{in: "2w", want: now.AddDate(0, 0, 14)},
		{in: "2026-12-25", want: time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)},
		{in: "2026-12-25T14:30", want: time.Date(2026, 12, 25, 14, 30, 0, 0, time.UTC)},
		{in: "2020-01-01", wantErr: true},
		{in: "-5h", wantErr: true},
		{in: "0d", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpiry(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}
