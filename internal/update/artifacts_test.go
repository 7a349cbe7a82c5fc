package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
)

func init() {
	retryFunc = retry.NewConstant
	retryMinWaitDuration = time.Millisecond
}

func newTestClient(t *testing.T, apiURL string, timeout time.Duration) *ArtifactClient {
	t.Helper()
	client, err := NewArtifactClient(ArtifactClientConfig{
		Token:     "test-token",
		BaseURL:   apiURL + "/",
		UserAgent: "homesite-test",
		Timeout:   timeout,
	})
	if err != nil {
		t.Fatalf("NewArtifactClient() error = %v", err)
	}
	return client
}

func TestNewArtifactClient_RequiresToken(t *testing.T) {
	_, err := NewArtifactClient(ArtifactClientConfig{})
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
}

func TestArtifactClient_ListArtifacts(t *testing.T) {
	var gotAuth, gotAgent string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		if r.URL.Path != "/repos/o/r/actions/runs/7/artifacts" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"total_count":2,"artifacts":[
			{"id":1,"name":"first","archive_download_url":"https://api.github.com/1/zip"},
			{"id":2,"name":"second","archive_download_url":"https://api.github.com/2/zip"}]}`)
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, 5*time.Second)
	artifacts, err := client.ListArtifacts(context.Background(), api.URL+"/repos/o/r/actions/runs/7/artifacts")
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}

	if len(artifacts) != 2 || artifacts[0].GetName() != "first" {
		t.Errorf("Unexpected artifacts %v", artifacts)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
	if gotAgent != "homesite-test" {
		t.Errorf("Expected user agent homesite-test, got %q", gotAgent)
	}
}

func TestArtifactClient_ListArtifacts_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"total_count":0,"artifacts":[]}`)
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, 5*time.Second)
	artifacts, err := client.ListArtifacts(context.Background(), api.URL+"/runs/1/artifacts")
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("Expected empty list, got %v", artifacts)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestArtifactClient_ListArtifacts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, 5*time.Second)
	_, err := client.ListArtifacts(context.Background(), api.URL+"/runs/1/artifacts")
	if err == nil {
		t.Fatal("Expected error for 401")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("401 should not be a timeout: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestArtifactClient_Timeout(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, 50*time.Millisecond)

	_, err := client.ListArtifacts(context.Background(), api.URL+"/runs/1/artifacts")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout from list, got %v", err)
	}

	var buf bytes.Buffer
	err = client.DownloadArtifact(context.Background(), api.URL+"/artifacts/1/zip", &buf)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout from download, got %v", err)
	}
}

func TestArtifactClient_DownloadFollowsRedirectWithoutToken(t *testing.T) {
	var storageAuth string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "PK\x03\x04archive")
	}))
	defer storage.Close()

	var apiAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiAuth = r.Header.Get("Authorization")
		http.Redirect(w, r, storage.URL+"/blob/1.zip?sig=abc", http.StatusFound)
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, 5*time.Second)
	var buf bytes.Buffer
	if err := client.DownloadArtifact(context.Background(), api.URL+"/repos/o/r/actions/artifacts/1/zip", &buf); err != nil {
		t.Fatalf("DownloadArtifact() error = %v", err)
	}

	if buf.String() != "PK\x03\x04archive" {
		t.Errorf("Unexpected archive content %q", buf.String())
	}
	if apiAuth != "Bearer test-token" {
		t.Errorf("Expected bearer token on API request, got %q", apiAuth)
	}
	if storageAuth != "" {
		t.Errorf("Token leaked to storage host: %q", storageAuth)
	}
}
