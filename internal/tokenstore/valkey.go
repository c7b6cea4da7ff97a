package tokenstore

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig configures a ValkeyBackend.
type ValkeyConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ValkeyBackend stores keys in Valkey (or Redis). Writes are pipelined but
// not transactional.
type ValkeyBackend struct {
	client valkey.Client
	prefix string
}

// NewValkeyBackend connects to cfg.Addr.
func NewValkeyBackend(cfg ValkeyConfig) (*ValkeyBackend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "todocal:"
	}
	return &ValkeyBackend{client: client, prefix: prefix}, nil
}

// Name implements Backend.
func (v *ValkeyBackend) Name() string { return BackendValkey }

// Get implements Backend.
func (v *ValkeyBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		val, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+k).Build()).ToString()
		if valkey.IsValkeyNil(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("valkey get %s: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// Write implements Backend.
func (v *ValkeyBackend) Write(ctx context.Context, set map[string]string, del []string) error {
	cmds := make(valkey.Commands, 0, len(set)+1)
	for k, val := range set {
		cmds = append(cmds, v.client.B().Set().Key(v.prefix+k).Value(val).Build())
	}
	if len(del) > 0 {
		keys := make([]string, len(del))
		for i, k := range del {
			keys[i] = v.prefix + k
		}
		cmds = append(cmds, v.client.B().Del().Key(keys...).Build())
	}
	for _, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey write: %w", err)
		}
	}
	return nil
}

// Close implements Backend.
func (v *ValkeyBackend) Close() error {
	v.client.Close()
	return nil
}
