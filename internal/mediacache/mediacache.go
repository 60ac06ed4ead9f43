// Package mediacache implements the Media Cache (C3, spec.md §4.5):
// content-addressed local storage for downloaded music, with atomic
// download, size-bounded streaming, format validation, and two-pass
// eviction (expiry + LRU-by-use).
//
// Grounded on original_source/src/audio/music_library.py (JSON persistence
// shape, scoring formula, eviction passes), music_downloader.py (12-byte
// signature validation, MD5 hashing, bounded streaming download), and
// internal/storage/storage.go's retry/backoff-with-jitter HTTP client.
package mediacache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
)

const (
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// libraryFile is the on-disk JSON shape: {"metadata": {...}, "entries": [...]}.
type libraryFile struct {
	Metadata libraryMetadata         `json:"metadata"`
	Entries  []models.MediaCacheEntry `json:"entries"`
}

type libraryMetadata struct {
	Version      int       `json:"version"`
	LastUpdated  time.Time `json:"last_updated"`
	TotalEntries int       `json:"total_entries"`
}

// Options configures a Cache.
type Options struct {
	LibraryPath  string // JSON index path, e.g. data/music_library.json
	DownloadDir  string // e.g. assets/music
	MaxSizeBytes int64
	TimeoutSec   int
	MaxCacheAge  time.Duration
	MaxCacheFiles int
}

// Cache is the media cache: a JSON index keyed by recommendation URL, plus
// the downloaded files on disk.
type Cache struct {
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	entries map[string]*models.MediaCacheEntry // keyed by recommendation URL

	group  singleflight.Group
	client *http.Client
}

// New constructs a Cache, loading the index if it exists. Entries whose
// local file no longer exists are dropped at load time.
func New(opts Options) (*Cache, error) {
	if opts.DownloadDir != "" {
		if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
			return nil, fmt.Errorf("create download dir: %w", err)
		}
	}

	c := &Cache{
		opts:    opts,
		log:     logging.New("MediaCache"),
		entries: make(map[string]*models.MediaCacheEntry),
		client:  &http.Client{Timeout: time.Duration(opts.TimeoutSec) * time.Second},
	}

	if opts.LibraryPath != "" {
		if _, err := os.Stat(opts.LibraryPath); err == nil {
			if err := c.load(); err != nil {
				return nil, fmt.Errorf("load media cache: %w", err)
			}
		}
	}

	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.opts.LibraryPath)
	if err != nil {
		return err
	}

	var lf libraryFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return err
	}

	entries := make(map[string]*models.MediaCacheEntry, len(lf.Entries))
	for i := range lf.Entries {
		e := lf.Entries[i]
		if e.LocalPath != "" {
			if _, err := os.Stat(e.LocalPath); err != nil {
				c.log.Warnf("dropping cache entry for %q: local file missing: %s", e.Recommendation.Title, e.LocalPath)
				continue
			}
		}
		entries[e.Recommendation.URL] = &e
	}
	c.entries = entries
	return nil
}

// save performs an atomic rewrite of the index file (temp + rename), same
// persistence contract as the task queue.
func (c *Cache) save() error {
	if c.opts.LibraryPath == "" {
		return nil
	}

	dir := filepath.Dir(c.opts.LibraryPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	entries := make([]models.MediaCacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Recommendation.URL < entries[j].Recommendation.URL })

	lf := libraryFile{
		Metadata: libraryMetadata{
			Version:      1,
			LastUpdated:  time.Now(),
			TotalEntries: len(entries),
		},
		Entries: entries,
	}

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".music_library-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, c.opts.LibraryPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// FindLocal scores cache entries against criteria/text per spec.md §4.5
// step 1 and returns the best match, if any scores >= 0.3. Ties are broken
// by higher UseCount. On a hit, UseCount is incremented and LastUsedAt set.
func (c *Cache) FindLocal(keywords []string, criteria models.MusicSearchCriteria) *models.MediaCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var best *models.MediaCacheEntry
	var bestScore float64

	for _, e := range c.entries {
		if c.isExpired(e, now) {
			continue
		}
		if criteria.CopyrightOnly && !e.Recommendation.CopyrightStatus.SafeToUse() {
			continue
		}
		if criteria.MinDuration > 0 && e.Recommendation.DurationSec < criteria.MinDuration {
			continue
		}
		if criteria.MaxDuration > 0 && e.Recommendation.DurationSec > criteria.MaxDuration {
			continue
		}

		score := scoreMatch(e.Recommendation, keywords, criteria)
		if score < 0.3 {
			continue
		}

		if best == nil || score > bestScore || (score == bestScore && e.UseCount > best.UseCount) {
			best = e
			bestScore = score
		}
	}

	if best != nil {
		best.UseCount++
		t := now
		best.LastUsedAt = &t
		_ = c.save()
		cp := *best
		return &cp
	}
	return nil
}

// scoreMatch implements 0.4*titleMatch + 0.3*genreMatch + 0.3*moodMatch,
// each term 1 if the recommendation's field intersects the criteria's
// preferred set / text keywords, else 0.
func scoreMatch(rec models.MusicRecommendation, keywords []string, criteria models.MusicSearchCriteria) float64 {
	titleMatch := 0.0
	lowerTitle := strings.ToLower(rec.Title)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowerTitle, strings.ToLower(kw)) {
			titleMatch = 1.0
			break
		}
	}

	genreMatch := 0.0
	for _, g := range criteria.PreferredGenres {
		if strings.EqualFold(g, rec.Genre) {
			genreMatch = 1.0
			break
		}
	}

	moodMatch := 0.0
	for _, m := range criteria.PreferredMoods {
		if strings.EqualFold(m, rec.Mood) {
			moodMatch = 1.0
			break
		}
	}

	return 0.4*titleMatch + 0.3*genreMatch + 0.3*moodMatch
}

func (c *Cache) isExpired(e *models.MediaCacheEntry, now time.Time) bool {
	if c.opts.MaxCacheAge <= 0 {
		return false
	}
	ref := e.DownloadedAt
	if e.LastUsedAt != nil {
		ref = *e.LastUsedAt
	}
	return now.Sub(ref) > c.opts.MaxCacheAge
}

var supportedExts = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac"}

// DownloadAndCache resolves rec's URL to a local path (8-char title hash +
// source + extension), skips if already on disk, otherwise streams the
// download bounded by opts.MaxSizeBytes, validates the audio signature, and
// records a new cache entry. Concurrent calls for the same URL deduplicate
// via singleflight.
func (c *Cache) DownloadAndCache(ctx context.Context, rec models.MusicRecommendation) (*models.MediaCacheEntry, error) {
	v, err, _ := c.group.Do(rec.URL, func() (interface{}, error) {
		return c.downloadAndCacheOnce(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.MediaCacheEntry), nil
}

func (c *Cache) downloadAndCacheOnce(ctx context.Context, rec models.MusicRecommendation) (*models.MediaCacheEntry, error) {
	c.mu.Lock()
	if existing, ok := c.entries[rec.URL]; ok {
		existing.UseCount++
		now := time.Now()
		existing.LastUsedAt = &now
		c.mu.Unlock()
		_ = c.save()
		cp := *existing
		return &cp, nil
	}
	c.mu.Unlock()

	localPath := c.generateLocalPath(rec)
	if _, err := os.Stat(localPath); err == nil {
		return c.recordEntry(rec, localPath)
	}

	if err := c.streamDownload(ctx, rec.URL, localPath); err != nil {
		os.Remove(localPath)
		return nil, err
	}

	hash, err := validateAndHash(localPath, c.opts.MaxSizeBytes)
	if err != nil {
		os.Remove(localPath)
		return nil, err
	}
	rec.FileHash = hash

	return c.recordEntry(rec, localPath)
}

func (c *Cache) generateLocalPath(rec models.MusicRecommendation) string {
	ext := ".mp3"
	lowerURL := strings.ToLower(rec.URL)
	for _, e := range supportedExts {
		if strings.HasSuffix(lowerURL, e) {
			ext = e
			break
		}
	}

	sum := md5.Sum([]byte(rec.Title))
	titleHash := hex.EncodeToString(sum[:])[:8]
	filename := fmt.Sprintf("%s_%s%s", titleHash, rec.Source, ext)
	return filepath.Join(c.opts.DownloadDir, filename)
}

// recordEntry inserts a new cache entry with UseCount 1 — a freshly
// downloaded or rediscovered file is being used by the caller that
// triggered the download, so the first use is already spent (spec.md §8
// scenario 3's 1→2 sequence, not 0→1). It then enforces MaxCacheFiles via
// trimLRU, so the bound applies on every insert rather than only on an
// explicit Optimize pass.
func (c *Cache) recordEntry(rec models.MusicRecommendation, localPath string) (*models.MediaCacheEntry, error) {
	stat, err := os.Stat(localPath)
	if err == nil {
		rec.FileSize = stat.Size()
	}

	entry := &models.MediaCacheEntry{
		Recommendation: rec,
		LocalPath:      localPath,
		DownloadedAt:   time.Now(),
		UseCount:       1,
		FileHash:       rec.FileHash,
	}

	c.mu.Lock()
	c.entries[rec.URL] = entry
	c.mu.Unlock()

	if err := c.save(); err != nil {
		return nil, fmt.Errorf("persist cache index: %w", err)
	}

	c.trimLRU()

	cp := *entry
	return &cp, nil
}

// streamDownload performs the bounded, retried streaming GET, aborting if
// Content-Length or cumulative bytes exceed opts.MaxSizeBytes.
func (c *Cache) streamDownload(ctx context.Context, url, localPath string) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			c.log.Warnf("download retry %d/%d for %s (waiting %v)", attempt, maxRetries, url, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.attemptDownload(ctx, url, localPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (c *Cache) attemptDownload(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if isRetryableStatus(resp.StatusCode) {
			return retryableStatusError{status: resp.StatusCode}
		}
		return models.ErrDownloadRejected(models.DownloadHTTPStatus, fmt.Sprintf("http status %d for %s", resp.StatusCode, url))
	}

	if resp.ContentLength > 0 && resp.ContentLength > c.opts.MaxSizeBytes {
		return models.ErrDownloadRejected(models.DownloadOversize, fmt.Sprintf("content-length %d exceeds max %d", resp.ContentLength, c.opts.MaxSizeBytes))
	}

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	limited := io.LimitReader(resp.Body, c.opts.MaxSizeBytes+1)
	n, err := io.Copy(f, limited)
	if err != nil {
		return err
	}
	if n > c.opts.MaxSizeBytes {
		return models.ErrDownloadRejected(models.DownloadOversize, fmt.Sprintf("downloaded %d bytes exceeds max %d", n, c.opts.MaxSizeBytes))
	}

	return nil
}

type retryableStatusError struct{ status int }

func (e retryableStatusError) Error() string { return fmt.Sprintf("retryable http status %d", e.status) }

func isRetryable(err error) bool {
	var rse retryableStatusError
	if as, ok := err.(retryableStatusError); ok {
		rse = as
		return isRetryableStatus(rse.status)
	}
	msg := err.Error()
	for _, s := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "EOF", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// validateAndHash checks the file's size and first-12-byte audio signature
// (WAV/MP3/FLAC/OGG/M4A), returning an MD5 hash on success. Unknown
// signatures are accepted with a warning, per spec.md §4.5 step 3.
func validateAndHash(path string, maxSize int64) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if stat.Size() == 0 {
		return "", models.ErrDownloadRejected(models.DownloadBadFormat, "downloaded file is empty")
	}
	if stat.Size() > maxSize {
		return "", models.ErrDownloadRejected(models.DownloadOversize, fmt.Sprintf("file size %d exceeds max %d", stat.Size(), maxSize))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 12)
	n, _ := io.ReadFull(f, header)
	if n < 4 {
		return "", models.ErrDownloadRejected(models.DownloadBadFormat, "file too short to validate format")
	}
	if !isKnownAudioSignature(header) {
		logging.New("MediaCache").Warnf("unknown audio format header %x, accepting anyway", header[:4])
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func isKnownAudioSignature(header []byte) bool {
	if len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE" {
		return true
	}
	if len(header) >= 3 && string(header[0:3]) == "ID3" {
		return true
	}
	if len(header) >= 2 && header[0] == 0xFF && header[1] == 0xFB {
		return true
	}
	if len(header) >= 4 && string(header[0:4]) == "fLaC" {
		return true
	}
	if len(header) >= 4 && string(header[0:4]) == "OggS" {
		return true
	}
	if len(header) >= 8 && string(header[4:8]) == "ftyp" {
		return true
	}
	return false
}

// Evict drops entries whose age (since LastUsedAt, or DownloadedAt if never
// used) exceeds MaxCacheAge. Files on disk are removed best-effort.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var dropped []string
	for url, e := range c.entries {
		if c.isExpired(e, now) {
			dropped = append(dropped, url)
		}
	}
	for _, url := range dropped {
		e := c.entries[url]
		os.Remove(e.LocalPath)
		delete(c.entries, url)
	}
	if len(dropped) > 0 {
		_ = c.save()
	}
	return len(dropped)
}

// trimLRU drops entries beyond MaxCacheFiles, sorted by (useCount asc,
// lastUsedAt asc, downloadedAt asc) — least valuable first.
func (c *Cache) trimLRU() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.MaxCacheFiles <= 0 || len(c.entries) <= c.opts.MaxCacheFiles {
		return 0
	}

	type kv struct {
		url string
		e   *models.MediaCacheEntry
	}
	all := make([]kv, 0, len(c.entries))
	for url, e := range c.entries {
		all = append(all, kv{url, e})
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].e, all[j].e
		if a.UseCount != b.UseCount {
			return a.UseCount < b.UseCount
		}
		at, bt := a.DownloadedAt, b.DownloadedAt
		if a.LastUsedAt != nil {
			at = *a.LastUsedAt
		}
		if b.LastUsedAt != nil {
			bt = *b.LastUsedAt
		}
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.DownloadedAt.Before(b.DownloadedAt)
	})

	excess := len(all) - c.opts.MaxCacheFiles
	for i := 0; i < excess; i++ {
		os.Remove(all[i].e.LocalPath)
		delete(c.entries, all[i].url)
	}
	_ = c.save()
	return excess
}

// SweepUnreferenced deletes files in the download directory that do not
// match any live cache entry.
func (c *Cache) SweepUnreferenced() int {
	c.mu.Lock()
	live := make(map[string]bool, len(c.entries))
	for _, e := range c.entries {
		live[filepath.Clean(e.LocalPath)] = true
	}
	c.mu.Unlock()

	entriesOnDisk, err := os.ReadDir(c.opts.DownloadDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, de := range entriesOnDisk {
		if de.IsDir() {
			continue
		}
		full := filepath.Clean(filepath.Join(c.opts.DownloadDir, de.Name()))
		if !live[full] {
			if os.Remove(full) == nil {
				removed++
			}
		}
	}
	return removed
}

// Optimize runs the expiry pass, the unused-file sweep, then LRU-by-use
// trim, mirroring music_library.py's optimize_cache.
func (c *Cache) Optimize() (expired, swept, trimmed int) {
	expired = c.Evict()
	swept = c.SweepUnreferenced()
	trimmed = c.trimLRU()
	return
}

// Preload bounded-concurrently downloads a batch of recommendations.
func (c *Cache) Preload(ctx context.Context, recs []models.MusicRecommendation, maxConcurrent int) map[string]*models.MediaCacheEntry {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]*models.MediaCacheEntry, len(recs))

	for _, rec := range recs {
		rec := rec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			entry, err := c.DownloadAndCache(ctx, rec)
			mu.Lock()
			if err == nil {
				results[rec.URL] = entry
			} else {
				results[rec.URL] = nil
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Stats reports cache/download directory statistics, grounded on
// music_downloader.py's get_download_stats.
type Stats struct {
	TotalFiles     int
	TotalSizeBytes int64
	FileTypes      map[string]int
}

func (c *Cache) Stats() Stats {
	stats := Stats{FileTypes: make(map[string]int)}

	entries, err := os.ReadDir(c.opts.DownloadDir)
	if err != nil {
		return stats
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalSizeBytes += info.Size()
		ext := strings.ToLower(filepath.Ext(de.Name()))
		stats.FileTypes[ext]++
	}
	return stats
}

// Search returns cache entries whose title, genre, or mood contains query
// (case-insensitive), grounded on music_library.py's search_library.
func (c *Cache) Search(query string) []models.MediaCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := strings.ToLower(query)
	var out []models.MediaCacheEntry
	for _, e := range c.entries {
		if strings.Contains(strings.ToLower(e.Recommendation.Title), q) ||
			strings.Contains(strings.ToLower(e.Recommendation.Genre), q) ||
			strings.Contains(strings.ToLower(e.Recommendation.Mood), q) {
			out = append(out, *e)
		}
	}
	return out
}

// Export returns every cache entry, for the optional status API.
func (c *Cache) Export() []models.MediaCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.MediaCacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}
