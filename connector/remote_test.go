package connector_test

import (
	"os"
	"testing"

	"github.com/go-spatial/geographer/config"
	"github.com/go-spatial/geographer/connector"
)

func TestRemoteBackendForNoneConfigured(t *testing.T) {
	backend, err := connector.RemoteBackendFor(config.RemoteConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if backend != nil {
		t.Fatal("expected no backend for an empty remote config")
	}
}

func TestRemoteBackendForUnknownName(t *testing.T) {
	if _, err := connector.RemoteBackendFor(config.RemoteConfig{Name: "s3"}); err == nil {
		t.Fatal("expected an error for an unknown backend name")
	}
}

func TestRemoteBackendForMissingKey(t *testing.T) {
	_, err := connector.RemoteBackendFor(config.RemoteConfig{
		Name:          "azure",
		AccountKeyEnv: "GEOGRAPHER_TEST_UNSET_KEY",
	})
	if err == nil {
		t.Fatal("expected an error when the key env var is unset")
	}
}

func TestRemoteBackendForAzure(t *testing.T) {
	os.Setenv("GEOGRAPHER_TEST_ACCOUNT_KEY", "c2VjcmV0LWtleQ==")
	defer os.Unsetenv("GEOGRAPHER_TEST_ACCOUNT_KEY")

	backend, err := connector.RemoteBackendFor(config.RemoteConfig{
		Name:          "azure",
		ContainerURL:  "https://example.blob.core.windows.net/geographer",
		AccountName:   "example",
		AccountKeyEnv: "GEOGRAPHER_TEST_ACCOUNT_KEY",
		Prefix:        "datasets/roofs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if backend == nil {
		t.Fatal("expected a constructed backend")
	}
}
