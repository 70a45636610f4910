package connector

import (
	"context"
	"os"

	"github.com/go-spatial/geographer/config"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/persist"
)

// RemoteBackendFor builds the remote persistence backend named by cfg,
// reading the account key from the environment variable cfg names so
// the key itself never has to live in the options file. A cfg with an
// empty Name means no remote backend is configured; both return values
// are nil.
func RemoteBackendFor(cfg config.RemoteConfig) (*persist.AzureBackend, error) {
	switch cfg.Name {
	case "":
		return nil, nil
	case "azure":
		key := os.Getenv(cfg.AccountKeyEnv)
		if key == "" {
			return nil, geoerrors.NewPersistenceError(cfg.ContainerURL, "remote: account key env var "+cfg.AccountKeyEnv+" is unset or empty", nil)
		}
		return persist.NewAzureBackend(cfg.ContainerURL, cfg.AccountName, key, cfg.Prefix)
	default:
		return nil, geoerrors.NewPersistenceError("", "remote: unknown backend "+cfg.Name, nil)
	}
}

// SaveRemote persists the connector through backend instead of the
// local data directory; the wire format (the same four JSON files) is
// unchanged, only the I/O target differs. The self-consistency check
// runs first, as it does for Save.
func (c *Connector) SaveRemote(ctx context.Context, backend *persist.AzureBackend) error {
	if err := c.CheckInvariants(); err != nil {
		return err
	}
	return backend.SaveRemote(ctx, c.snapshot())
}

// FromRemote loads a Connector previously stored through backend,
// rooting it at dataDir for subsequent local saves.
func FromRemote(ctx context.Context, dataDir string, backend *persist.AzureBackend) (*Connector, error) {
	snap, err := backend.LoadRemote(ctx)
	if err != nil {
		return nil, err
	}
	return fromSnapshot(dataDir, snap)
}
