//go:build !jack
// +build !jack

package midisampler

import "fmt"

// JackHost stub for builds without JACK support
type JackHost struct{}

// NewJackHost returns an error: JACK support is not compiled in.
func NewJackHost(s *Sampler, inst *Instrument, reverb *Reverb, clientName string) (*JackHost, error) {
	return nil, fmt.Errorf("JACK support not enabled - rebuild with '-tags jack' and ensure JACK development headers are installed: %w", ErrNotInitialized)
}

// Start returns an error for stub client
func (jh *JackHost) Start() error {
	return fmt.Errorf("JACK support not enabled: %w", ErrNotInitialized)
}

// Stop returns an error for stub client
func (jh *JackHost) Stop() error {
	return fmt.Errorf("JACK support not enabled: %w", ErrNotInitialized)
}

// Close returns an error for stub client
func (jh *JackHost) Close() error {
	return fmt.Errorf("JACK support not enabled: %w", ErrNotInitialized)
}
