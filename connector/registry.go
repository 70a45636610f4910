package connector

import (
	"fmt"
	"sync"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/internal/log"
)

// DownloaderInitFunc builds a RasterDownloader from a config map. Init
// functions validate the config and report any errors; this is called
// by DownloaderFor.
type DownloaderInitFunc func(config dict.Dict) (RasterDownloader, error)

// LabelMakerInitFunc builds a LabelMaker from a config map.
type LabelMakerInitFunc func(config dict.Dict) (LabelMaker, error)

// CleanupFunc is called on Cleanup to let a registered collaborator
// release resources (open files, network connections) on shutdown.
type CleanupFunc func()

type registration struct {
	downloaderInit DownloaderInitFunc
	labelMakerInit LabelMakerInitFunc
	cleanup        CleanupFunc
}

var (
	registryMu sync.Mutex
	registry   map[string]registration
)

// RegisterDownloader registers a named raster-downloader constructor,
// generally called from the init function of a downloader
// implementation living outside this module. cleanup may be nil.
func RegisterDownloader(name string, init DownloaderInitFunc, cleanup CleanupFunc) error {
	if init == nil {
		return fmt.Errorf("connector: nil downloader init func for %q", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = make(map[string]registration)
	}
	if _, ok := registry[name]; ok {
		return fmt.Errorf("connector: collaborator %q already registered", name)
	}
	registry[name] = registration{downloaderInit: init, cleanup: cleanup}
	return nil
}

// RegisterLabelMaker registers a named label-maker constructor.
func RegisterLabelMaker(name string, init LabelMakerInitFunc, cleanup CleanupFunc) error {
	if init == nil {
		return fmt.Errorf("connector: nil label-maker init func for %q", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = make(map[string]registration)
	}
	if _, ok := registry[name]; ok {
		return fmt.Errorf("connector: collaborator %q already registered", name)
	}
	registry[name] = registration{labelMakerInit: init, cleanup: cleanup}
	return nil
}

// Drivers returns the names of every registered collaborator.
func Drivers() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// DownloaderFor constructs the named, registered RasterDownloader.
func DownloaderFor(name string, config dict.Dict) (RasterDownloader, error) {
	registryMu.Lock()
	r, ok := registry[name]
	registryMu.Unlock()
	if !ok || r.downloaderInit == nil {
		return nil, fmt.Errorf("connector: unknown raster downloader %q (known: %v)", name, Drivers())
	}
	return r.downloaderInit(config)
}

// LabelMakerFor constructs the named, registered LabelMaker.
func LabelMakerFor(name string, config dict.Dict) (LabelMaker, error) {
	registryMu.Lock()
	r, ok := registry[name]
	registryMu.Unlock()
	if !ok || r.labelMakerInit == nil {
		return nil, fmt.Errorf("connector: unknown label maker %q (known: %v)", name, Drivers())
	}
	return r.labelMakerInit(config)
}

// Cleanup calls every registered collaborator's cleanup function;
// intended to run once at shutdown.
func Cleanup() {
	log.Info("connector: cleaning up registered collaborators")
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, r := range registry {
		if r.cleanup != nil {
			r.cleanup()
		}
	}
}
