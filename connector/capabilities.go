package connector

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
	"github.com/go-spatial/geographer/store"
)

// RasterDownloader is the capability the Connector calls to fill in
// raster coverage for a set of features. Download is given the feature
// ids needing coverage and a target raster count per feature; it
// returns the new raster rows it produced, plus per-item failures that
// should not roll back the rows that did succeed.
type RasterDownloader interface {
	Download(featureIDs []string, targetCount int, params dict.Dict) (rows []store.RowEntry, failures []DownloadFailure, err error)
}

// DownloadFailure records one feature/raster pair the downloader could
// not complete.
type DownloadFailure struct {
	FeatureID string
	RasterID  string // may be empty if the downloader never produced an id
	Reason    string
	Cause     error
}

// LabelMaker is the capability the Connector calls to produce label
// artifacts for a set of rasters, and its inverse to remove them.
type LabelMaker interface {
	MakeLabels(rasterIDs []string, params dict.Dict) error
	RemoveLabels(rasterIDs []string) error
}

// DownloadFor runs downloader against featureIDs, then integrates every
// successfully produced raster row through AddRasters so graph
// invariants hold before the caller or a label-maker reads the tables.
// Unlike AddRasters called directly, this preserves whatever rows did
// succeed even if the downloader reports failures for others, so a
// crashed download does not discard hours of previously successful
// ones.
func (c *Connector) DownloadFor(downloader RasterDownloader, featureIDs []string, targetCount int, params dict.Dict) error {
	rows, failures, err := downloader.Download(featureIDs, targetCount, params)
	if err != nil {
		return geoerrors.NewCollaboratorError("download", "", err)
	}

	batch := &geoerrors.BatchError{}
	if len(rows) > 0 {
		if addErr := c.AddRasters(rows, c.crs); addErr != nil {
			batch.Add(geoerrors.NewCollaboratorError("download", "", addErr))
		}
	}
	for _, f := range failures {
		cause := f.Cause
		if cause == nil {
			cause = errors.New(f.Reason)
		}
		cerr := geoerrors.NewCollaboratorError("download", f.FeatureID, cause)
		batch.Add(cerr)
		if c.failures != nil {
			_ = c.failures.Record(store.FailureRecord{
				RasterID:    f.RasterID,
				FeatureID:   f.FeatureID,
				AttemptedAt: f.attemptedAt(),
				Reason:      f.Reason,
				Cause:       cerr.Error(),
			})
		}
	}
	return batch.OrNil()
}

// attemptedAt stamps a failure with the current time; split out so the
// zero-arg time.Now() call has one call site in the collaborator path.
func (f DownloadFailure) attemptedAt() time.Time { return time.Now() }

// AddVectorsWithLabels runs AddVectors and then invokes maker for every
// raster that gained an edge to one of the new features, so label
// artifacts stay current as features arrive. The table/graph mutation
// commits before the label-maker reads the tables; a label-maker
// failure therefore never rolls back the inserted rows.
func (c *Connector) AddVectorsWithLabels(rows []store.RowEntry, inputCRS geometry.CRS, maker LabelMaker, params dict.Dict) error {
	if err := c.AddVectors(rows, inputCRS); err != nil {
		return err
	}
	if maker == nil {
		return nil
	}
	seen := map[string]bool{}
	var affected []string
	for _, r := range rows {
		for _, rasterID := range c.graph.Neighbors(r.ID, nil) {
			if !seen[rasterID] {
				seen[rasterID] = true
				affected = append(affected, rasterID)
			}
		}
	}
	if len(affected) == 0 {
		return nil
	}
	sort.Strings(affected)
	return c.MakeLabels(maker, affected, params)
}

// MakeLabels runs maker against rasterIDs, surfacing the failure as a
// collaborator error.
func (c *Connector) MakeLabels(maker LabelMaker, rasterIDs []string, params dict.Dict) error {
	if err := maker.MakeLabels(rasterIDs, params); err != nil {
		return geoerrors.NewCollaboratorError("make_labels", "", err)
	}
	return nil
}

// RemoveLabels is MakeLabels' inverse.
func (c *Connector) RemoveLabels(maker LabelMaker, rasterIDs []string) error {
	if err := maker.RemoveLabels(rasterIDs); err != nil {
		return geoerrors.NewCollaboratorError("make_labels", "", err)
	}
	return nil
}

// WithFailureTable attaches a raster_failures side table so DownloadFor
// records per-item failures there.
func (c *Connector) WithFailureTable(ft *store.FailureTable) {
	c.failures = ft
}

// FailedDownloads returns every recorded download failure for featureID.
func (c *Connector) FailedDownloads(featureID string) ([]store.FailureRecord, error) {
	if c.failures == nil {
		return nil, nil
	}
	return c.failures.ForFeature(featureID)
}
