package sdk

import "os"

// DefaultAddr is used when KEYSWITCH_ADDR is unset.
const DefaultAddr = "localhost:5000"

// NewFromEnv connects to the daemon named by KEYSWITCH_ADDR.
func NewFromEnv(opts ...Option) (*Client, error) {
	addr := os.Getenv("KEYSWITCH_ADDR")
	if addr == "" {
		addr = DefaultAddr
	}
	return Connect(addr, opts...)
}
