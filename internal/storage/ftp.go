package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/SAGSA/dbbackupctl/internal/backup"
)

// FTP is the FTP backend. It dials the server fresh on every call; paths are
// full ftp:// URLs so each root can point at a different server.
type FTP struct {
	user     string // default credentials for URLs without user info
	password string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFTP creates a new FTP backend with default credentials for roots that
// don't embed their own.
func NewFTP(user, password string, logger *slog.Logger) *FTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &FTP{
		user:     user,
		password: password,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

func (f *FTP) Kind() backup.StorageKind {
	return backup.StorageFTP
}

// List returns the immediate children of an ftp:// directory URL.
func (f *FTP) List(ctx context.Context, rawURL string) ([]Entry, error) {
	u, conn, err := f.connect(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	items, err := conn.List(ftpPath(u))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rawURL, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.Name == "." || item.Name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name:     item.Name,
			FullPath: u.JoinPath(item.Name).String(),
			IsDir:    item.Type == ftp.EntryTypeFolder,
		})
	}
	return entries, nil
}

// Delete removes a single file. Existence is probed with SIZE first: a
// "file unavailable" reply means the file is already gone, which is success,
// not an error. Deleting a directory path is an error.
func (f *FTP) Delete(ctx context.Context, rawURL string) error {
	u, conn, err := f.connect(ctx, rawURL)
	if err != nil {
		return err
	}
	defer conn.Quit()

	p := ftpPath(u)
	if _, err := conn.FileSize(p); err != nil {
		if !fileUnavailable(err) {
			return fmt.Errorf("size probe for %s: %w", rawURL, err)
		}
		// SIZE fails the same way for a missing file and for a directory;
		// a listing distinguishes them.
		items, listErr := conn.List(p)
		if listErr == nil && len(items) > 0 {
			return fmt.Errorf("deleting %s: %w", rawURL, ErrIsDirectory)
		}
		f.logger.Debug("file already gone", "path", rawURL)
		return nil
	}

	if err := conn.Delete(p); err != nil {
		return fmt.Errorf("deleting %s: %w", rawURL, err)
	}
	return nil
}

// connect parses the URL, dials, and logs in.
func (f *FTP) connect(ctx context.Context, rawURL string) (*url.URL, *ftp.ServerConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing ftp url %s: %w", rawURL, err)
	}
	if !strings.EqualFold(u.Scheme, "ftp") {
		return nil, nil, fmt.Errorf("not an ftp url: %s", rawURL)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = addr + ":21"
	}

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	user, password := f.user, f.password
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			password = pw
		}
	}
	if user == "" {
		user, password = "anonymous", "anonymous"
	}

	if err := conn.Login(user, password); err != nil {
		conn.Quit()
		return nil, nil, fmt.Errorf("ftp login to %s: %w", addr, err)
	}
	return u, conn, nil
}

func ftpPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return path.Clean(u.Path)
}

// fileUnavailable reports whether err is the server's 550 "file unavailable"
// reply.
func fileUnavailable(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return strings.Contains(strings.ToLower(err.Error()), "unavailable")
}
