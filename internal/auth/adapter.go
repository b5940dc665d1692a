package auth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/bher20/fxratemanager/internal/storage"
)

// PolicyKey is the cache entry holding the casbin policy.
const PolicyKey = "casbin-policy"

// Adapter implements the casbin persist.Adapter interface on top of a
// storage.ResourceCache. The whole policy is kept as one CSV-like blob, one
// rule per line, which keeps every cache backend usable for it.
type Adapter struct {
	cache   storage.ResourceCache
	key     string
	timeout time.Duration

	mu sync.Mutex
}

var _ persist.Adapter = (*Adapter)(nil)

func NewAdapter(cache storage.ResourceCache) *Adapter {
	return &Adapter{cache: cache, key: PolicyKey, timeout: 5 * time.Second}
}

func (a *Adapter) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *Adapter) readLines() ([]string, error) {
	ctx, cancel := a.ctx()
	defer cancel()

	data, err := a.cache.Read(ctx, a.key)
	if errors.Is(err, storage.ErrNotCached) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func (a *Adapter) writeLines(lines []string) error {
	ctx, cancel := a.ctx()
	defer cancel()
	if len(lines) == 0 {
		return a.cache.Clear(ctx, a.key)
	}
	return a.cache.Write(ctx, a.key, []byte(strings.Join(lines, "\n")+"\n"))
}

func ruleLine(ptype string, rule []string) string {
	return strings.Join(append([]string{ptype}, rule...), ", ")
}

func splitLine(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// LoadPolicy loads all policy rules from the cache.
func (a *Adapter) LoadPolicy(m model.Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.readLines()
	if err != nil {
		return err
	}
	for _, line := range lines {
		persist.LoadPolicyLine(line, m)
	}
	return nil
}

// SavePolicy replaces the stored policy with every rule in m.
func (a *Adapter) SavePolicy(m model.Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var lines []string
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				lines = append(lines, ruleLine(ptype, rule))
			}
		}
	}
	return a.writeLines(lines)
}

// AddPolicy appends a rule unless it is already stored.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.readLines()
	if err != nil {
		return err
	}
	line := ruleLine(ptype, rule)
	for _, l := range lines {
		if l == line {
			return nil
		}
	}
	return a.writeLines(append(lines, line))
}

// RemovePolicy deletes a rule.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	target := ruleLine(ptype, rule)
	return a.remove(func(parts []string, line string) bool { return line == target })
}

// RemoveFilteredPolicy deletes rules of ptype whose fields starting at
// fieldIndex match fieldValues. Empty values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	return a.remove(func(parts []string, _ string) bool {
		if parts[0] != ptype {
			return false
		}
		fields := parts[1:]
		for i, v := range fieldValues {
			if v == "" {
				continue
			}
			idx := fieldIndex + i
			if idx >= len(fields) || fields[idx] != v {
				return false
			}
		}
		return true
	})
}

func (a *Adapter) remove(match func(parts []string, line string) bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.readLines()
	if err != nil {
		return err
	}
	kept := lines[:0]
	for _, l := range lines {
		if !match(splitLine(l), l) {
			kept = append(kept, l)
		}
	}
	return a.writeLines(kept)
}
