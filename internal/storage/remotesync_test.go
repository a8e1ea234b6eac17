package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeControlPlane points the backend at an httptest control API.
type fakeControlPlane struct {
	endpoint string
	ready    bool
	probes   int
}

func (f *fakeControlPlane) Ready(ctx context.Context) bool {
	f.probes++
	return f.ready
}

func (f *fakeControlPlane) Endpoint() string { return f.endpoint }

func (f *fakeControlPlane) Credentials() (string, string) { return "rcuser", "rcpass" }

func dialTo(cp ControlPlane) DialFunc {
	return func(ctx context.Context) (ControlPlane, error) { return cp, nil }
}

// TestRemoteSyncList verifies the operations/list call and path splitting
func TestRemoteSyncList(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"list": []map[string]any{
				{"Path": "sql/sales_backup_2023_04_12_031500.bak", "Name": "sales_backup_2023_04_12_031500.bak", "IsDir": false},
				{"Path": "sql/archive", "Name": "archive", "IsDir": true},
			},
		})
	}))
	defer srv.Close()

	cp := &fakeControlPlane{endpoint: srv.URL, ready: true}
	rs := NewRemoteSync(dialTo(cp), 1, nil)

	entries, err := rs.List(context.Background(), "gdrive:sql")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	if gotPath != "/operations/list" {
		t.Errorf("request path = %q, want /operations/list", gotPath)
	}
	if gotBody["fs"] != "gdrive:" || gotBody["remote"] != "sql" {
		t.Errorf("request body = %v, want fs=gdrive: remote=sql", gotBody)
	}
	if gotUser != "rcuser" || gotPass != "rcpass" {
		t.Errorf("basic auth = %q/%q, want session credentials", gotUser, gotPass)
	}

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].FullPath != "gdrive:sql/sales_backup_2023_04_12_031500.bak" {
		t.Errorf("FullPath = %q", entries[0].FullPath)
	}
	if !entries[1].IsDir {
		t.Errorf("archive entry not marked as directory")
	}
}

// TestRemoteSyncDelete verifies the operations/deletefile call
func TestRemoteSyncDelete(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	cp := &fakeControlPlane{endpoint: srv.URL, ready: true}
	rs := NewRemoteSync(dialTo(cp), 1, nil)

	if err := rs.Delete(context.Background(), "gdrive:sql/old.bak"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if gotPath != "/operations/deletefile" {
		t.Errorf("request path = %q, want /operations/deletefile", gotPath)
	}
	if gotBody["fs"] != "gdrive:" || gotBody["remote"] != "sql/old.bak" {
		t.Errorf("request body = %v", gotBody)
	}
}

// TestRemoteSyncNon200 verifies any non-200 reply is a fatal session error
func TestRemoteSyncNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cp := &fakeControlPlane{endpoint: srv.URL, ready: true}
	rs := NewRemoteSync(dialTo(cp), 1, nil)

	err := rs.Delete(context.Background(), "gdrive:sql/old.bak")
	if err == nil {
		t.Fatal("Delete() = nil, want session error")
	}
	if !errors.Is(err, ErrSession) {
		t.Errorf("error %v does not wrap ErrSession", err)
	}
}

// TestRemoteSyncNotReady verifies the single recheck then hard failure
func TestRemoteSyncNotReady(t *testing.T) {
	cp := &fakeControlPlane{endpoint: "http://localhost:0", ready: false}
	rs := NewRemoteSync(dialTo(cp), 1, nil)

	err := rs.Delete(context.Background(), "gdrive:sql/old.bak")
	if err == nil {
		t.Fatal("Delete() = nil, want session error")
	}
	if !errors.Is(err, ErrSession) {
		t.Errorf("error %v does not wrap ErrSession", err)
	}
	if cp.probes != 2 {
		t.Errorf("readiness probes = %d, want exactly 2 (initial check plus one recheck)", cp.probes)
	}
}

// TestRemoteSyncLazyDial verifies the session is dialed once, on first use
func TestRemoteSyncLazyDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"list": []any{}})
	}))
	defer srv.Close()

	dials := 0
	cp := &fakeControlPlane{endpoint: srv.URL, ready: true}
	rs := NewRemoteSync(func(ctx context.Context) (ControlPlane, error) {
		dials++
		return cp, nil
	}, 1, nil)

	if dials != 0 {
		t.Fatalf("dials = %d before first use, want 0", dials)
	}
	ctx := context.Background()
	if _, err := rs.List(ctx, "gdrive:a"); err != nil {
		t.Fatal(err)
	}
	if _, err := rs.List(ctx, "gdrive:b"); err != nil {
		t.Fatal(err)
	}
	if dials != 1 {
		t.Errorf("dials = %d after two calls, want 1", dials)
	}
}

// TestSplitRemote verifies remote reference splitting
func TestSplitRemote(t *testing.T) {
	tests := []struct {
		in         string
		wantFs     string
		wantRemote string
	}{
		{"gdrive:sql/backups", "gdrive:", "sql/backups"},
		{"gdrive:", "gdrive:", ""},
		{"s3:bucket", "s3:", "bucket"},
		{"noprefix", "noprefix", ""},
	}

	for _, tt := range tests {
		fs, remote := splitRemote(tt.in)
		if fs != tt.wantFs || remote != tt.wantRemote {
			t.Errorf("splitRemote(%q) = %q,%q want %q,%q", tt.in, fs, remote, tt.wantFs, tt.wantRemote)
		}
	}
}
