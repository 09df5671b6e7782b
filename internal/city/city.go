// Package city holds the currently selected city scope. The poller reads it
// on every tick, so a switch takes effect on the next fetch without a
// restart.
package city

import "sync/atomic"

// Provider is a concurrency-safe holder for the current city.
type Provider struct {
	current atomic.Value
}

// NewProvider creates a Provider starting at the given city.
func NewProvider(initial string) *Provider {
	p := &Provider{}
	p.current.Store(initial)
	return p
}

// Current returns the selected city.
func (p *Provider) Current() string {
	return p.current.Load().(string)
}

// Set switches the selected city. Empty values are ignored.
func (p *Provider) Set(city string) {
	if city == "" {
		return
	}
	p.current.Store(city)
}
