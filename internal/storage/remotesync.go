package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/SAGSA/dbbackupctl/internal/backup"
)

// ControlPlane is the running worker's authenticated local HTTP API, as
// exposed by an rcsession.Session.
type ControlPlane interface {
	Ready(ctx context.Context) bool
	Endpoint() string // e.g. http://localhost:5572
	Credentials() (user, pass string)
}

// DialFunc starts (or returns) the control-plane session. The RemoteSync
// backend calls it lazily on first use, so runs that never touch a cloud
// root never launch a worker.
type DialFunc func(ctx context.Context) (ControlPlane, error)

// RemoteSync is the cloud backend. It never touches storage directly; every
// operation is a JSON call into the worker's control API.
type RemoteSync struct {
	dial     DialFunc
	cp       ControlPlane
	rechecks int
	client   *http.Client
	logger   *slog.Logger
}

// NewRemoteSync creates a new remote-sync backend. rechecks is how many
// extra readiness probes are made after a failed first probe.
func NewRemoteSync(dial DialFunc, rechecks int, logger *slog.Logger) *RemoteSync {
	if logger == nil {
		logger = slog.Default()
	}
	if rechecks < 1 {
		rechecks = 1
	}
	return &RemoteSync{
		dial:     dial,
		rechecks: rechecks,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
		logger: logger,
	}
}

func (r *RemoteSync) Kind() backup.StorageKind {
	return backup.StorageRemoteSync
}

// listItem is one entry of the control API's operations/list response.
type listItem struct {
	Path  string `json:"Path"`
	Name  string `json:"Name"`
	IsDir bool   `json:"IsDir"`
}

type listResponse struct {
	List []listItem `json:"list"`
}

// List returns the immediate children of a remote:path directory.
func (r *RemoteSync) List(ctx context.Context, p string) ([]Entry, error) {
	fsName, remotePath := splitRemote(p)

	var resp listResponse
	if err := r.call(ctx, "operations/list", fsName, remotePath, &resp); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resp.List))
	for _, item := range resp.List {
		entries = append(entries, Entry{
			Name:     item.Name,
			FullPath: fsName + item.Path,
			IsDir:    item.IsDir,
		})
	}
	return entries, nil
}

// Delete removes a single remote file via operations/deletefile.
func (r *RemoteSync) Delete(ctx context.Context, p string) error {
	fsName, remotePath := splitRemote(p)
	return r.call(ctx, "operations/deletefile", fsName, remotePath, nil)
}

// call posts {"fs","remote"} to the control API. A non-200 reply wraps
// ErrSession and aborts the run: it means every later cloud call would fail
// the same way.
func (r *RemoteSync) call(ctx context.Context, op, fsName, remotePath string, out any) error {
	cp, err := r.ensure(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"fs":     fsName,
		"remote": remotePath,
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cp.Endpoint()+"/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cp.Credentials())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSession, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s returned %d: %s", ErrSession, op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding %s response: %v", ErrSession, op, err)
		}
	}
	return nil
}

// ensure dials the session on first use and verifies readiness. The probes
// are optimistic: rechecks extra probes with no wait in between, then a hard
// failure. The absent wait mirrors the original tool; see the rcsession
// package note.
func (r *RemoteSync) ensure(ctx context.Context) (ControlPlane, error) {
	if r.cp == nil {
		cp, err := r.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSession, err)
		}
		r.cp = cp
	}

	ready := r.cp.Ready(ctx)
	for i := 0; !ready && i < r.rechecks; i++ {
		ready = r.cp.Ready(ctx)
	}
	if !ready {
		return nil, fmt.Errorf("%w: control API unavailable", ErrSession)
	}
	return r.cp, nil
}

// splitRemote splits "remote:dir/file" into the filesystem prefix
// ("remote:") and the path inside it ("dir/file").
func splitRemote(p string) (fsName, remotePath string) {
	i := strings.Index(p, ":")
	if i < 0 {
		return p, ""
	}
	return p[:i+1], p[i+1:]
}
