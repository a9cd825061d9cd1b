//go:build !wasm

package gae

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/aidevplatform/passport"
	"github.com/aidevplatform/passport/stores/storetest"
)

var namespaceSeq atomic.Int64

// These tests need the Datastore emulator:
//
//	gcloud beta emulators datastore start --no-store-on-disk
//	export DATASTORE_EMULATOR_HOST=localhost:8081
func newEmulatorClient(t *testing.T) *datastore.Client {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	project := os.Getenv("DATASTORE_PROJECT_ID")
	if project == "" {
		project = "passport-test"
	}
	client, err := datastore.NewClient(context.Background(), project)
	if err != nil {
		t.Fatalf("datastore.NewClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCredentialStore(t *testing.T) {
	client := newEmulatorClient(t)
	storetest.Run(t, func(t *testing.T) passport.CredentialStore {
		// A namespace per case keeps the shared emulator clean.
		ns := fmt.Sprintf("test-%d-%d", time.Now().UnixNano(), namespaceSeq.Add(1))
		return NewCredentialStore(client, ns)
	})
}
