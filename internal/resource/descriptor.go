package resource

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// UpdatePolicy selects when a resource is fetched from its remote locations.
type UpdatePolicy int

const (
	// Never serves the cache or the bundled fallback only.
	Never UpdatePolicy = iota
	// OnStartup loads asynchronously once, at registration.
	OnStartup
	// Lazy loads on first access.
	Lazy
	// Scheduled reloads on a recurring schedule.
	Scheduled
)

func (p UpdatePolicy) String() string {
	switch p {
	case Never:
		return "never"
	case OnStartup:
		return "startup"
	case Lazy:
		return "lazy"
	case Scheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts the names produced by String, case-insensitively.
func ParsePolicy(s string) (UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "none":
		return Never, nil
	case "startup", "onstartup", "on_startup":
		return OnStartup, nil
	case "lazy":
		return Lazy, nil
	case "scheduled", "schedule":
		return Scheduled, nil
	default:
		return Never, fmt.Errorf("unknown update policy %q", s)
	}
}

// Recognized descriptor property keys.
const (
	PropProxyHost      = "proxy.host"
	PropProxyPort      = "proxy.port"
	PropProxyType      = "proxy.type"
	PropConnectTimeout = "connect.timeout"
	PropReadTimeout    = "read.timeout"
	PropWriteTimeout   = "write.timeout"
	PropCacheTTL       = "cacheTTL"
	PropPeriod         = "period"
	PropDelay          = "delay"
	PropAt             = "at"
	PropCron           = "cron"
	PropStartRemote    = "startRemote"
)

// Descriptor is the immutable definition of a managed resource.
type Descriptor struct {
	ID string
	// Remotes are tried in order; the first reachable one wins.
	Remotes []string
	// Fallback is the bundled location that must always resolve.
	Fallback   string
	Policy     UpdatePolicy
	Properties map[string]string
}

// Validate checks the descriptor and every property it recognizes.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("resource: empty id")
	}
	if d.Fallback == "" {
		return fmt.Errorf("resource %s: no fallback location", d.ID)
	}
	if _, err := d.Timeouts(); err != nil {
		return err
	}
	if _, err := d.CacheTTL(); err != nil {
		return err
	}
	if _, err := d.Proxy(); err != nil {
		return err
	}
	if d.Policy == Scheduled {
		sc, err := d.Schedule()
		if err != nil {
			return err
		}
		if sc.Period <= 0 && len(sc.Times) == 0 && sc.Cron == "" {
			return fmt.Errorf("resource %s: scheduled policy needs %q, %q or %q", d.ID, PropPeriod, PropAt, PropCron)
		}
	}
	return nil
}

// Property returns the raw property value.
func (d Descriptor) Property(key string) (string, bool) {
	v, ok := d.Properties[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (d Descriptor) duration(key string) (time.Duration, error) {
	v, ok := d.Property(key)
	if !ok {
		return 0, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		// bare integers are milliseconds
		ms, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			return 0, fmt.Errorf("resource %s: property %s: %w", d.ID, key, err)
		}
		dur = time.Duration(ms) * time.Millisecond
	}
	if dur < 0 {
		return 0, fmt.Errorf("resource %s: property %s: negative duration", d.ID, key)
	}
	return dur, nil
}

// CacheTTL is the in-memory payload TTL; zero means none.
func (d Descriptor) CacheTTL() (time.Duration, error) {
	return d.duration(PropCacheTTL)
}

// StartRemote reports whether a scheduled resource also loads at registration.
func (d Descriptor) StartRemote() bool {
	v, _ := d.Property(PropStartRemote)
	b, _ := strconv.ParseBool(v)
	return b
}

// Timeouts bounds a single remote fetch. Zero values mean no limit.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

func (d Descriptor) Timeouts() (Timeouts, error) {
	var t Timeouts
	var err error
	if t.Connect, err = d.duration(PropConnectTimeout); err != nil {
		return t, err
	}
	if t.Read, err = d.duration(PropReadTimeout); err != nil {
		return t, err
	}
	if t.Write, err = d.duration(PropWriteTimeout); err != nil {
		return t, err
	}
	return t, nil
}

// Proxy returns the configured proxy URL or nil. proxy.type is HTTP
// (default) or SOCKS.
func (d Descriptor) Proxy() (*url.URL, error) {
	host, ok := d.Property(PropProxyHost)
	if !ok {
		return nil, nil
	}
	port, _ := d.Property(PropProxyPort)
	typ, _ := d.Property(PropProxyType)

	scheme := "http"
	switch strings.ToUpper(typ) {
	case "", "HTTP", "DIRECT":
	case "SOCKS", "SOCKS5":
		scheme = "socks5"
	default:
		return nil, fmt.Errorf("resource %s: unsupported proxy type %q", d.ID, typ)
	}
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("resource %s: invalid proxy port %q", d.ID, port)
		}
		host = net.JoinHostPort(host, port)
	}
	return &url.URL{Scheme: scheme, Host: host}, nil
}

// TimeOfDay is a daily trigger time.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	vals := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = n
	}
	return TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

// Schedule combines a fixed period with an initial delay, a list of daily
// times and a five field cron expression. Any of them may be unset.
type Schedule struct {
	Period time.Duration
	Delay  time.Duration
	Times  []TimeOfDay
	Cron   string
}

func (d Descriptor) Schedule() (Schedule, error) {
	var sc Schedule
	var err error
	if sc.Period, err = d.duration(PropPeriod); err != nil {
		return sc, err
	}
	if sc.Delay, err = d.duration(PropDelay); err != nil {
		return sc, err
	}
	if at, ok := d.Property(PropAt); ok {
		for _, s := range strings.Split(at, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			tod, err := ParseTimeOfDay(s)
			if err != nil {
				return sc, fmt.Errorf("resource %s: %w", d.ID, err)
			}
			sc.Times = append(sc.Times, tod)
		}
	}
	if expr, ok := d.Property(PropCron); ok && expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			return sc, fmt.Errorf("resource %s: cron %q: %w", d.ID, expr, err)
		}
		sc.Cron = expr
	}
	return sc, nil
}
