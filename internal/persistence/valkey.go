package persistence

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/inboxagent/internal/state"
)

// DefaultValkeyKeyPrefix is used when ValkeyConfig.KeyPrefix is empty.
const DefaultValkeyKeyPrefix = "inboxagent:"

// ValkeyConfig configures the Valkey backend.
type ValkeyConfig struct {
	// URL is the server address, e.g. "valkey.namespace.svc:6379".
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	// TLSCAFile is a PEM bundle for servers signed by a private CA.
	TLSCAFile string `yaml:"tls_ca_file"`
	KeyPrefix string `yaml:"key_prefix"`
	DB        int    `yaml:"db"`
}

// ValkeyStore keeps the snapshot under one key.
type ValkeyStore struct {
	client valkey.Client
	key    string
}

// SnapshotKey is the key the snapshot is stored under.
func (c ValkeyConfig) SnapshotKey() string {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}
	return prefix + "context"
}

// NewValkeyStore connects to Valkey.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL is required")
	}
	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSCAFile != "" {
			pem, err := os.ReadFile(cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
			}
			tlsCfg.RootCAs = pool
		}
		opt.TLSConfig = tlsCfg
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return &ValkeyStore{client: client, key: cfg.SnapshotKey()}, nil
}

// Load implements Store.
func (v *ValkeyStore) Load(ctx context.Context) (state.Snapshot, bool, error) {
	data, err := v.client.Do(ctx, v.client.B().Get().Key(v.key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return state.Snapshot{}, false, nil
	}
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap, err := decode(data)
	if err != nil {
		return state.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Save implements Store.
func (v *ValkeyStore) Save(ctx context.Context, snap state.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := v.client.Do(ctx, v.client.B().Set().Key(v.key).Value(valkey.BinaryString(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

// Close implements Store.
func (v *ValkeyStore) Close() error {
	v.client.Close()
	return nil
}
