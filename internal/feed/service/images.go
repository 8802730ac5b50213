package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"shameless/internal/feed/models"

	_ "golang.org/x/image/webp"
)

const (
	maxImageBytes     = 10 << 20
	maxImageRedirects = 5
)

var (
	ErrUnsupportedURL = errors.New("image url must be absolute http or https")
	ErrBlockedAddress = errors.New("image host is not a public address")
)

// ============================================================
// Image Store
// ============================================================

// ImageStore caches position images on disk, keyed by position id.
// Downloads only reach public addresses unless AllowPrivateNetworks is set.
type ImageStore struct {
	root         string
	client       *http.Client
	allowPrivate bool
}

type ImageStoreOption func(*ImageStore)

// AllowPrivateNetworks lets the store download from loopback, private and
// link-local addresses.
func AllowPrivateNetworks() ImageStoreOption {
	return func(s *ImageStore) { s.allowPrivate = true }
}

func NewImageStore(root string, opts ...ImageStoreOption) *ImageStore {
	s := &ImageStore{root: root}
	for _, opt := range opts {
		opt(s)
	}

	// The check runs on the resolved address of every dial, redirects included.
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: s.checkAddress,
	}
	s.client = &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			return ValidateImageURL(req.URL.String())
		},
	}
	return s
}

// ValidateImageURL accepts absolute http and https URLs.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ErrUnsupportedURL
	}
	return nil
}

func (s *ImageStore) checkAddress(network, address string, _ syscall.RawConn) error {
	if s.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified()
}

func (s *ImageStore) ImagePath(positionID string) string {
	return filepath.Join(s.root, filepath.Base(positionID)+".img")
}

func (s *ImageStore) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("mkdir image dir: %w", err)
	}
	return nil
}

// Fetch returns the raw image bytes, downloading them on a cache miss.
func (s *ImageStore) Fetch(ctx context.Context, p *models.Position) ([]byte, error) {
	if p.ImageURL == "" {
		return nil, fmt.Errorf("position %s has no image", p.ID)
	}
	if err := ValidateImageURL(p.ImageURL); err != nil {
		return nil, err
	}

	path := s.ImagePath(p.ID)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ImageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	if err := s.EnsureDir(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("cache image: %w", err)
	}
	return data, nil
}

// Decode fetches and decodes the position image (PNG, JPEG or WebP).
func (s *ImageStore) Decode(ctx context.Context, p *models.Position) (image.Image, error) {
	data, err := s.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Prefetch warms the cache so the first reveal frame does not wait on the network.
func (s *ImageStore) Prefetch(ctx context.Context, p *models.Position) error {
	if p.ImageURL == "" {
		return nil
	}
	_, err := s.Fetch(ctx, p)
	return err
}
