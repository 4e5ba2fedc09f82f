// Package ics fetches, parses, expands and writes iCalendar data.
package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roomcal/internal/log"
)

// maxBody bounds a single feed download.
const maxBody = 32 << 20

// Request names one feed to download.
type Request struct {
	ID       string
	URL      string
	Username string
	Password string
}

type Result struct {
	Body      []byte
	FromCache bool
	FetchedAt time.Time
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk so an unreachable server does not empty a calendar.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher stores its cache under cacheDir. A nil client gets a 15s
// timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "roomcal-ics")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch downloads req.URL. On 304 and on failures with a cached body the
// cached body is returned with FromCache set.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	target := normalizeURL(req.URL)
	if target == "" {
		return Result{}, errors.New("feed url is empty")
	}

	dir := f.cacheDirFor(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("create cache dir: %w", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(cause error) (Result, error) {
		if len(cached) == 0 {
			return Result{}, cause
		}
		log.Warn("ics: using cached body", "id", req.ID, "url", redactURL(target), "err", cause)
		return Result{Body: cached, FromCache: true, FetchedAt: meta.FetchedAt}, nil
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, err
	}
	hreq.Header.Set("Accept", "text/calendar")
	if req.Username != "" || req.Password != "" {
		hreq.SetBasicAuth(req.Username, req.Password)
	}
	if meta.URL == target && len(cached) > 0 {
		if meta.ETag != "" {
			hreq.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			hreq.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(hreq)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return fallback(err)
		}
		now := time.Now().UTC()
		err = saveCache(dir, cacheMeta{
			URL:          target,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    now,
		}, body)
		if err != nil {
			log.Error("ics: cache save failed", err, "id", req.ID)
		}
		log.Debug("ics: fetched", "id", req.ID, "url", redactURL(target), "bytes", len(body))
		return Result{Body: body, FetchedAt: now}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, errors.New("304 Not Modified without cached body")
		}
		log.Debug("ics: not modified", "id", req.ID, "url", redactURL(target))
		return Result{Body: cached, FromCache: true, FetchedAt: meta.FetchedAt}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// saveCache writes the body before the metadata so meta never points at a
// missing body.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := writeFileAtomic(filepath.Join(dir, "body.ics"), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, "meta.json"), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// normalizeURL maps webcal:// subscriptions onto https.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "webcal://"); ok {
		return "https://" + rest
	}
	return raw
}

// redactURL keeps scheme and host only; feed URLs often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
