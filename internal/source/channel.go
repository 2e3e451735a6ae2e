// internal/source/channel.go
package source

import (
	"context"
	"sync"
)

// Channel adapts a push-style provider (one that hands out a receive-only
// channel of bundles) to the pull contract the recorder uses.
// A closed channel reports ErrExhausted.
type Channel struct {
	in   <-chan Bundle
	stop func() error

	once sync.Once
	err  error
}

// NewChannel wraps in. stop, if non-nil, is called once by Close to release
// the provider.
func NewChannel(in <-chan Bundle, stop func() error) *Channel {
	return &Channel{in: in, stop: stop}
}

// Next blocks until the provider delivers a bundle, closes, or ctx ends.
func (c *Channel) Next(ctx context.Context) (Bundle, error) {
	select {
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case b, ok := <-c.in:
		if !ok {
			return Bundle{}, ErrExhausted
		}
		return b, nil
	}
}

// Close releases the provider. Idempotent.
func (c *Channel) Close() error {
	c.once.Do(func() {
		if c.stop != nil {
			c.err = c.stop()
		}
	})
	return c.err
}
