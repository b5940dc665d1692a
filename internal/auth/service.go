package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Objects and actions checked by the HTTP API.
const (
	ObjRates     = "rates"
	ObjResources = "resources"
	ObjProviders = "providers"

	ActRead  = "read"
	ActWrite = "write"
)

// Roles known to the default policy.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

// Token is a configured API token. Hash is a bcrypt hash of the raw value.
type Token struct {
	Name      string
	Hash      string
	Role      string
	ExpiresAt time.Time
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Name string
	Role string
}

type Service struct {
	enforcer *casbin.Enforcer
	tokens   []Token
	now      func() time.Time

	mu sync.RWMutex
	// validated maps sha256(raw token) to its index in tokens so bcrypt runs
	// once per token value.
	validated map[string]int
}

// NewService builds the enforcer. With a nil adapter the policy lives in
// memory only; otherwise it is loaded from the adapter and seeded with the
// default roles when empty.
func NewService(tokens []Token, adapter persist.Adapter) (*Service, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var e *casbin.Enforcer
	if adapter != nil {
		e, err = casbin.NewEnforcer(m, adapter)
	} else {
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	if ast, ok := e.GetModel()["p"]["p"]; !ok || len(ast.Policy) == 0 {
		if err := seedDefaults(e); err != nil {
			return nil, err
		}
	}

	for _, t := range tokens {
		if t.Hash == "" {
			return nil, fmt.Errorf("token %q: empty hash", t.Name)
		}
		if t.Role == "" {
			return nil, fmt.Errorf("token %q: empty role", t.Name)
		}
	}

	return &Service{
		enforcer:  e,
		tokens:    tokens,
		now:       time.Now,
		validated: make(map[string]int),
	}, nil
}

func seedDefaults(e *casbin.Enforcer) error {
	rules := [][]string{
		// Admin can do everything
		{RoleAdmin, "*", "*"},
		// Operator can trigger loads and resets
		{RoleOperator, ObjResources, ActWrite},
		// Viewer can only read
		{RoleViewer, ObjRates, ActRead},
		{RoleViewer, ObjResources, ActRead},
		{RoleViewer, ObjProviders, ActRead},
	}
	for _, r := range rules {
		if _, err := e.AddPolicy(r[0], r[1], r[2]); err != nil {
			return fmt.Errorf("seed policy %v: %w", r, err)
		}
	}
	if _, err := e.AddGroupingPolicy(RoleOperator, RoleViewer); err != nil {
		return fmt.Errorf("seed role %s: %w", RoleOperator, err)
	}
	return nil
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidateToken resolves a raw bearer token to its principal.
func (s *Service) ValidateToken(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}
	key := digest(raw)

	s.mu.RLock()
	idx, ok := s.validated[key]
	s.mu.RUnlock()

	if !ok {
		idx = -1
		for i, t := range s.tokens {
			if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(raw)) == nil {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Principal{}, ErrInvalidToken
		}
		s.mu.Lock()
		s.validated[key] = idx
		s.mu.Unlock()
	}

	t := s.tokens[idx]
	if !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(s.now()) {
		return Principal{}, ErrTokenExpired
	}
	return Principal{Name: t.Name, Role: t.Role}, nil
}

// Enforce reports whether role may perform act on obj.
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

// GenerateToken returns a new random raw token.
func GenerateToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// HashToken returns the bcrypt hash to put in the token configuration.
func HashToken(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
