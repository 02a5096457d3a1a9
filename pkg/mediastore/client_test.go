package mediastore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumenfolio/portal-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), config.MediaStoreConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		MaxUploadMB: 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func healthzMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestUpload(t *testing.T) {
	mux := healthzMux()
	var gotAuth string
	mux.HandleFunc("/v1/assets", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("folder"); got != "portal" {
			t.Errorf("unexpected folder %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "sunset.jpg" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"asset-1","permanent_url":"https://cdn.test/asset-1.jpg","format":"jpeg","size_bytes":11}`))
	})

	client, _ := newTestClient(t, mux)

	result, err := client.Upload(context.Background(), strings.NewReader("fake-bytes!"), "portal", "sunset.jpg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.ID != "asset-1" {
		t.Fatalf("unexpected asset id %q", result.ID)
	}
	if result.PermanentURL != "https://cdn.test/asset-1.jpg" {
		t.Fatalf("unexpected url %q", result.PermanentURL)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestUploadTooLarge(t *testing.T) {
	client, _ := newTestClient(t, healthzMux())

	big := strings.NewReader(strings.Repeat("x", 1<<20+1))
	if _, err := client.Upload(context.Background(), big, "portal", "huge.bin"); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestFetch(t *testing.T) {
	mux := healthzMux()
	mux.HandleFunc("/files/asset-1.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	})
	client, srv := newTestClient(t, mux)

	body, err := client.Fetch(context.Background(), srv.URL+"/files/asset-1.jpg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	client, srv := newTestClient(t, healthzMux())

	if _, err := client.Fetch(context.Background(), srv.URL+"/files/missing.jpg"); err == nil {
		t.Fatal("expected error for missing asset")
	}
}

func TestDelete(t *testing.T) {
	mux := healthzMux()
	deleted := false
	mux.HandleFunc("/v1/assets/asset-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, mux)

	if err := client.Delete(context.Background(), "asset-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete request")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(context.Background(), config.MediaStoreConfig{}, nil); err == nil {
		t.Fatal("expected error for missing base url")
	}
}
