// internal/browser/stealth.go
package browser

import (
	"math/rand"
	"sync"
	"time"
)

// UserAgentPool rotates through a set of user agent strings.
type UserAgentPool struct {
	agents []string
	mu     sync.Mutex
	index  int
}

// NewUserAgentPool creates a pool, falling back to the defaults when no
// agents are supplied.
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents()
	}
	return &UserAgentPool{agents: agents}
}

// Next returns the next user agent in rotation.
func (p *UserAgentPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent := p.agents[p.index]
	p.index = (p.index + 1) % len(p.agents)
	return agent
}

// Random returns a random user agent.
func (p *UserAgentPool) Random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[rand.Intn(len(p.agents))]
}

var defaultPool = NewUserAgentPool(nil)

// NextUserAgent rotates through the shared default pool. Sessions without a
// configured user agent pick theirs here, so consecutive runs vary.
func NextUserAgent() string {
	return defaultPool.Next()
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	}
}

// DelayRange produces randomized politeness delays between page actions.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Next returns a random delay in [Min, Max]. A zero or inverted range
// returns Min.
func (d DelayRange) Next() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)))
}
