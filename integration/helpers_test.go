//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/rangezip/internal/testutil"
)

// --- Web Server Container Setup ---

const webRoot = "/usr/share/nginx/html"

var (
	serverOnce      sync.Once
	serverContainer testcontainers.Container
	serverAddr      string
	serverErr       error
)

// getServer returns the shared nginx container and its base URL, starting
// the container if needed. The container is shared across all tests.
func getServer(tb testing.TB) (testcontainers.Container, string) {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	serverOnce.Do(func() {
		serverContainer, serverAddr, serverErr = startServerContainer(context.Background())
	})

	if serverErr != nil {
		tb.Fatalf("start nginx container: %v", serverErr)
	}

	return serverContainer, serverAddr
}

// startServerContainer starts an nginx container and returns its base URL.
func startServerContainer(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "nginx:1.27-alpine",
		ExposedPorts: []string{"80/tcp"},
		WaitingFor:   wait.ForHTTP("/").WithPort("80/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start nginx container: %w", err)
	}

	// Container cleanup is handled by the testcontainers Reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("resolve nginx host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("resolve nginx port: %w", err)
	}

	return container, fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Archive Helpers ---

// publish copies archive into the web root under a name unique to the test
// and returns its URL.
func publish(tb testing.TB, archive []byte) string {
	tb.Helper()

	container, base := getServer(tb)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name()) + ".zip"
	err := container.CopyToContainer(context.Background(), archive, webRoot+"/"+name, 0o644)
	require.NoError(tb, err, "copy archive into container")

	return base + "/" + name
}

// otaArchive builds an archive shaped like an update package with payload
// stored under payload.bin.
func otaArchive(tb testing.TB, payload []byte) []byte {
	tb.Helper()
	return testutil.BuildZip(tb, "signed by integration",
		testutil.ZipFile{Name: "META-INF/com/android/metadata", Data: []byte("ota-type=AB\n")},
		testutil.ZipFile{Name: "care_map.pb", Data: testutil.Pattern(2048, 5)},
		testutil.ZipFile{Name: "payload.bin", Data: payload},
		testutil.ZipFile{Name: "payload_properties.txt", Data: []byte("FILE_SIZE=1\n")},
	)
}

// fileDigest returns the canonical digest of the file at path.
func fileDigest(tb testing.TB, path string) digest.Digest {
	tb.Helper()

	f, err := os.Open(path)
	require.NoError(tb, err)
	defer f.Close()

	d, err := digest.Canonical.FromReader(f)
	require.NoError(tb, err)
	return d
}
