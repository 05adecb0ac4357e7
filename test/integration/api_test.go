package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type IntegrationTestSuite struct {
	suite.Suite
	serverCmd    *exec.Cmd
	serverCancel func()
	client       *http.Client
	baseURL      string
	token        string
}

func (s *IntegrationTestSuite) SetupSuite() {
	// - TEST_SERVER_URL points at a running offlined instance.
	// - START_TEST_SERVER=true starts `offlined serve` in a subprocess.
	// - Otherwise the suite is skipped.
	s.client = &http.Client{Timeout: 5 * time.Second}
	s.token = os.Getenv("TEST_CONTROL_TOKEN")

	if base := os.Getenv("TEST_SERVER_URL"); base != "" {
		s.baseURL = strings.TrimRight(base, "/")
		return
	}
	if os.Getenv("START_TEST_SERVER") != "true" {
		s.T().Skip("TEST_SERVER_URL not set; skipping integration tests")
	}

	cmd, cancel, err := startServerProcess()
	if err != nil {
		s.T().Fatalf("failed to start server subprocess: %v", err)
	}
	s.serverCmd = cmd
	s.serverCancel = cancel
	s.baseURL = "http://localhost:8080"

	timeoutSecs := 60
	if v := os.Getenv("TEST_SERVER_STARTUP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSecs = n
		}
	}
	if !waitForServerHealthy(s.client, s.baseURL, timeoutSecs) {
		_ = cmd.Process.Kill()
		s.T().Fatal("server did not become healthy in time")
	}
}

func startServerProcess() (*exec.Cmd, func(), error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	repoRoot := filepath.Join(wd, "..", "..")
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/offlined", "serve")
	cmd.Dir = repoRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, err
	}
	return cmd, cancel, nil
}

func waitForServerHealthy(client *http.Client, baseURL string, timeoutSecs int) bool {
	fmt.Fprintf(os.Stdout, "Waiting up to %ds for test server to become healthy...\n", timeoutSecs)
	deadline := time.Now().Add(time.Duration(timeoutSecs) * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/_engine/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.serverCancel != nil {
		s.serverCancel()
	}
	if s.serverCmd != nil && s.serverCmd.Process != nil {
		_ = s.serverCmd.Wait()
	}
}

func (s *IntegrationTestSuite) control(method, path, body string) *http.Response {
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, s.baseURL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, s.baseURL+path, nil)
	}
	s.Require().NoError(err)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *IntegrationTestSuite) TestHealthCheck() {
	resp, err := s.client.Get(s.baseURL + "/_engine/health")
	s.Require().NoError(err)
	defer resp.Body.Close()

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(s.T(), "offlined", health["service"])
	assert.Equal(s.T(), "active", health["lifecycle"])
}

func (s *IntegrationTestSuite) TestLifecycleReportsCurrentEpoch() {
	resp := s.control(http.MethodGet, "/_engine/lifecycle", "")
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		s.T().Skip("control channel requires TEST_CONTROL_TOKEN")
	}
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(s.T(), body["partitions"], 3)
}

func (s *IntegrationTestSuite) TestCacheStatusMessage() {
	resp := s.control(http.MethodPost, "/_engine/messages", `{"type":"GET_CACHE_STATUS"}`)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		s.T().Skip("control channel requires TEST_CONTROL_TOKEN")
	}
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestInterceptedResponsesCarryEngineHeaders() {
	resp, err := s.client.Get(s.baseURL + "/")
	s.Require().NoError(err)
	defer resp.Body.Close()
	assert.NotEmpty(s.T(), resp.Header.Get("X-Engine-Source"))
	assert.NotEmpty(s.T(), resp.Header.Get("X-Engine-Class"))
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
