// Package testutil provides helpers shared by the secretspec test suites:
// a scripted command executor for CLI-backed providers and a Docker Compose
// environment for the integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
)

// Credentials baked into tests/integration/docker-compose.yml.
const (
	VaultRootToken   = "test-root-token"
	DatabaseUser     = "test"
	DatabasePassword = "test-password"
	DatabaseName     = "testdb"
	LocalStackRegion = "us-east-1"
)

// DockerTestEnv manages the Docker Compose lifecycle for integration tests
type DockerTestEnv struct {
	t           *testing.T
	composePath string
	services    []string
	started     bool
	projectName string
	ports       map[string]map[int]int // service -> containerPort -> hostPort
}

// servicePorts lists the container ports each compose service publishes.
var servicePorts = map[string][]int{
	"vault":      {8200},
	"postgres":   {5432},
	"mysql":      {3306},
	"localstack": {4566},
}

// StartDockerEnv starts the named compose services and waits until they
// report healthy. Everything is torn down when the test ends.
func StartDockerEnv(t *testing.T, services []string) *DockerTestEnv {
	t.Helper()

	SkipIfDockerUnavailable(t)

	// Provider variables would override the addresses the tests build.
	for _, key := range []string{"VAULT_ADDR", "VAULT_TOKEN", "VAULT_NAMESPACE", "MYSQL_PWD", "AWS_PROFILE", "AWS_ENDPOINT_URL"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	composePath := findDockerComposePath(t)
	env := &DockerTestEnv{
		t:           t,
		composePath: composePath,
		services:    services,
		projectName: fmt.Sprintf("secretspec-test-%d", time.Now().UnixNano()),
	}

	env.start()
	t.Cleanup(env.Stop)

	if err := env.WaitForHealthy(90 * time.Second); err != nil {
		t.Fatalf("Docker services failed to become healthy: %v", err)
	}
	if err := env.discoverPorts(); err != nil {
		t.Fatalf("Failed to discover ports: %v", err)
	}
	return env
}

// SkipIfDockerUnavailable skips the test if Docker is not available
func SkipIfDockerUnavailable(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if !IsDockerAvailable() {
		t.Skip("Docker not available, skipping integration test")
	}
}

// IsDockerAvailable checks if Docker and the compose plugin are usable
func IsDockerAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if err := exec.Command("docker", "ps").Run(); err != nil {
		return false
	}
	return exec.Command("docker", "compose", "version").Run() == nil
}

func findDockerComposePath(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testutil sources")
	}
	path := filepath.Join(filepath.Dir(file), "..", "integration", "docker-compose.yml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("docker-compose.yml not found: %v", err)
	}
	return path
}

func (e *DockerTestEnv) compose(args ...string) *exec.Cmd {
	cmd := exec.Command("docker", append([]string{"compose", "-f", e.composePath, "-p", e.projectName}, args...)...)
	cmd.Dir = filepath.Dir(e.composePath)
	return cmd
}

func (e *DockerTestEnv) start() {
	e.t.Helper()

	cmd := e.compose(append([]string{"up", "-d"}, e.services...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	e.t.Logf("Starting Docker services: %v", e.services)
	if err := cmd.Run(); err != nil {
		e.t.Fatalf("Failed to start Docker services: %v", err)
	}
	e.started = true
}

// Stop stops and removes the compose project, volumes included
func (e *DockerTestEnv) Stop() {
	if !e.started {
		return
	}
	cmd := e.compose("down", "-v")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		e.t.Logf("Warning: Failed to stop Docker services: %v", err)
	}
	e.started = false
}

// WaitForHealthy waits for all services to be healthy
func (e *DockerTestEnv) WaitForHealthy(timeout time.Duration) error {
	e.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for services to be healthy")
		case <-ticker.C:
			if e.checkHealth() {
				e.t.Logf("All services are healthy")
				return nil
			}
		}
	}
}

func (e *DockerTestEnv) checkHealth() bool {
	for _, service := range e.services {
		// Compose names containers {project}-{service}-{replica}.
		container := fmt.Sprintf("%s-%s-1", e.projectName, service)
		out, err := exec.Command("docker", "inspect", "--format",
			"{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}", container).Output()
		if err != nil {
			return false
		}
		switch strings.TrimSpace(string(out)) {
		case "healthy", "running":
		default:
			return false
		}
	}
	return true
}

func (e *DockerTestEnv) discoverPorts() error {
	e.ports = make(map[string]map[int]int)

	for _, service := range e.services {
		e.ports[service] = make(map[int]int)
		for _, containerPort := range servicePorts[service] {
			out, err := e.compose("port", service, fmt.Sprint(containerPort)).Output()
			if err != nil {
				return fmt.Errorf("failed to get port for %s:%d: %w", service, containerPort, err)
			}

			// "0.0.0.0:32768" -> 32768
			mapping := strings.TrimSpace(string(out))
			idx := strings.LastIndex(mapping, ":")
			if idx < 0 {
				return fmt.Errorf("unexpected port output format: %s", mapping)
			}
			var hostPort int
			if _, err := fmt.Sscanf(mapping[idx+1:], "%d", &hostPort); err != nil {
				return fmt.Errorf("failed to parse host port from %s: %w", mapping, err)
			}
			e.ports[service][containerPort] = hostPort
			e.t.Logf("Discovered port mapping: %s:%d -> localhost:%d", service, containerPort, hostPort)
		}
	}
	return nil
}

// GetPort returns the host port for a service's container port
func (e *DockerTestEnv) GetPort(service string, containerPort int) int {
	if ports, ok := e.ports[service]; ok {
		if hostPort, ok := ports[containerPort]; ok {
			return hostPort
		}
	}
	return containerPort
}

// VaultAddress returns the dev server's HTTP address.
func (e *DockerTestEnv) VaultAddress() string {
	return fmt.Sprintf("http://127.0.0.1:%d", e.GetPort("vault", 8200))
}

// VaultURI returns a provider URI for the dev server. The token is taken
// from VAULT_TOKEN, which the caller sets.
func (e *DockerTestEnv) VaultURI() string {
	return fmt.Sprintf("vault://127.0.0.1:%d/secret?tls=false", e.GetPort("vault", 8200))
}

// PostgresURI returns a provider URI for the compose database.
func (e *DockerTestEnv) PostgresURI() string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		DatabaseUser, DatabasePassword, e.GetPort("postgres", 5432), DatabaseName)
}

// MySQLURI returns a provider URI for the compose database.
func (e *DockerTestEnv) MySQLURI() string {
	return fmt.Sprintf("mysql://%s:%s@127.0.0.1:%d/%s",
		DatabaseUser, DatabasePassword, e.GetPort("mysql", 3306), DatabaseName)
}

// LocalStackEndpoint returns the LocalStack edge endpoint.
func (e *DockerTestEnv) LocalStackEndpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", e.GetPort("localstack", 4566))
}

// LocalStackURI returns a provider URI for scheme (aws-secretsmanager or
// aws-ssm) pointed at LocalStack with static test credentials.
func (e *DockerTestEnv) LocalStackURI(scheme string) string {
	return fmt.Sprintf("%s://%s?endpoint=%s&access_key_id=test&secret_access_key=test",
		scheme, LocalStackRegion, e.LocalStackEndpoint())
}

// PostgresDB opens a direct connection for inspecting what a provider
// wrote. It is closed when the test ends.
func (e *DockerTestEnv) PostgresDB() *sql.DB {
	e.t.Helper()

	dsn := fmt.Sprintf("host=127.0.0.1 port=%d user=%s password=%s dbname=%s sslmode=disable",
		e.GetPort("postgres", 5432), DatabaseUser, DatabasePassword, DatabaseName)
	return e.openDB("postgres", dsn)
}

// MySQLDB opens a direct connection to the compose MySQL server.
func (e *DockerTestEnv) MySQLDB() *sql.DB {
	e.t.Helper()

	dsn := fmt.Sprintf("%s:%s@tcp(127.0.0.1:%d)/%s", DatabaseUser, DatabasePassword, e.GetPort("mysql", 3306), DatabaseName)
	return e.openDB("mysql", dsn)
}

func (e *DockerTestEnv) openDB(driver, dsn string) *sql.DB {
	e.t.Helper()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		e.t.Fatalf("Failed to open %s: %v", driver, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			e.t.Fatalf("Failed to ping %s: %v", driver, err)
		case <-time.After(500 * time.Millisecond):
		}
	}
	e.t.Cleanup(func() { _ = db.Close() })
	return db
}

// SecretsManagerClient returns an SDK client for inspecting LocalStack.
func (e *DockerTestEnv) SecretsManagerClient() *secretsmanager.Client {
	e.t.Helper()

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(LocalStackRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		e.t.Fatalf("Failed to load AWS config: %v", err)
	}
	return secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		o.BaseEndpoint = aws.String(e.LocalStackEndpoint())
	})
}

// VaultReadyCheck blocks until the Vault dev server answers its health
// endpoint.
func (e *DockerTestEnv) VaultReadyCheck() {
	e.t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(e.VaultAddress() + "/v1/sys/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	e.t.Fatal("Vault did not become ready")
}
