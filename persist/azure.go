package persist

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/2018-03-28/azblob"

	"github.com/go-spatial/geographer/geoerrors"
)

// AzureBackend is the remote persistence target behind the connector's
// SaveRemote/FromRemote, storing the same four files SaveDir/LoadDir
// write locally as blobs under a prefix in one container.
type AzureBackend struct {
	container azblob.ContainerURL
	prefix    string
}

// NewAzureBackend builds an AzureBackend against containerURL (e.g.
// "https://account.blob.core.windows.net/container") using a shared key.
func NewAzureBackend(containerURL, accountName, accountKey, prefix string) (*AzureBackend, error) {
	cred := azblob.NewSharedKeyCredential(accountName, accountKey)
	p := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	u, err := url.Parse(containerURL)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(containerURL, "azure: invalid container URL", err)
	}
	return &AzureBackend{
		container: azblob.NewContainerURL(*u, p),
		prefix:    prefix,
	}, nil
}

func (a *AzureBackend) blobURL(name string) azblob.BlockBlobURL {
	return a.container.NewBlockBlobURL(fmt.Sprintf("%s/%s", a.prefix, name))
}

// SaveRemote uploads snap's four files as blobs. Azure blob uploads are
// atomic per-blob, but not across blobs, so this writes in a fixed
// order (tables and graph before attrs) so a reader that sees attrs.json
// present can trust the others are too.
func (a *AzureBackend) SaveRemote(ctx context.Context, snap Snapshot) error {
	vectorsDoc, err := EncodeTable(snap.Vectors.IterRows(), snap.Vectors.GeomColumn)
	if err != nil {
		return err
	}
	rastersDoc, err := EncodeTable(snap.Rasters.IterRows(), snap.Rasters.GeomColumn)
	if err != nil {
		return err
	}
	graphDoc, err := EncodeGraph(snap.Graph, snap.GraphExtra)
	if err != nil {
		return err
	}
	attrsDoc, err := EncodeAttrs(snap.Attrs)
	if err != nil {
		return err
	}

	for _, w := range []struct {
		name string
		data []byte
	}{
		{vectorsFile, vectorsDoc},
		{rastersFile, rastersDoc},
		{graphFile, graphDoc},
		{attrsFile, attrsDoc},
	} {
		blob := a.blobURL(w.name)
		_, err := blob.Upload(ctx, bytes.NewReader(w.data),
			azblob.BlobHTTPHeaders{ContentType: "application/json"},
			azblob.Metadata{}, azblob.BlobAccessConditions{})
		if err != nil {
			return geoerrors.NewPersistenceError(w.name, "azure: blob upload failed", err)
		}
	}
	return nil
}

// LoadRemote downloads and decodes the four blobs under the backend's prefix.
func (a *AzureBackend) LoadRemote(ctx context.Context) (*Snapshot, error) {
	vectorsRaw, err := a.downloadBlob(ctx, vectorsFile)
	if err != nil {
		return nil, err
	}
	rastersRaw, err := a.downloadBlob(ctx, rastersFile)
	if err != nil {
		return nil, err
	}
	graphRaw, err := a.downloadBlob(ctx, graphFile)
	if err != nil {
		return nil, err
	}
	attrsRaw, err := a.downloadBlob(ctx, attrsFile)
	if err != nil {
		return nil, err
	}

	return snapshotFromRaw(vectorsRaw, rastersRaw, graphRaw, attrsRaw)
}

func (a *AzureBackend) downloadBlob(ctx context.Context, name string) ([]byte, error) {
	blob := a.blobURL(name)
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(name, "azure: blob download failed", err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(name, "azure: failed reading blob body", err)
	}
	return data, nil
}
