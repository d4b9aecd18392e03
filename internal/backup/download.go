package backup

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fileutil "lwbackup/internal/file"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 40 * time.Second
)

// HTTPOptions configures the export client.
type HTTPOptions struct {
	// ConnectTimeout bounds TCP connect and TLS handshake. Default: 10s
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and every body read. Default: 40s
	ReadTimeout time.Duration
}

// Downloader fetches configuration archives from the export endpoint.
type Downloader struct {
	client      *http.Client
	readTimeout time.Duration
	logger      zerolog.Logger
}

// NewDownloader builds a Downloader. The client has no overall timeout:
// large exports may stream longer than ReadTimeout while bytes keep arriving.
func NewDownloader(opts HTTPOptions) *Downloader {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	return &Downloader{
		client:      &http.Client{Transport: transport},
		readTimeout: opts.ReadTimeout,
		logger:      log.Logger,
	}
}

// Download performs a single attempt to fetch the task's archive into its
// target path. Failures are reported through Result.OK; a partially written
// file is left on disk for the caller to clean up.
func (d *Downloader) Download(ctx context.Context, task Task) Result {
	target := task.Path()
	result := Result{Path: target}

	if err := fileutil.EnsureDir(filepath.Dir(target)); err != nil {
		return d.fail(task, result, err)
	}
	out, err := fileutil.Reserve(target)
	if err != nil {
		return d.fail(task, result, err)
	}
	defer func() { _ = out.Close() }()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, task.URL(), nil)
	if err != nil {
		return d.fail(task, result, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Basic "+task.Source.Credential)

	resp, err := d.client.Do(req)
	if err != nil {
		return d.fail(task, result, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return d.fail(task, result, fmt.Errorf("http %d", resp.StatusCode))
	}

	body := newIdleTimeoutReader(resp.Body, d.readTimeout, cancel)
	defer body.stop()

	written, err := io.Copy(out, body)
	result.Bytes = written
	if err != nil {
		if body.expired() {
			err = fmt.Errorf("%w after %s: %w", ErrReadTimeout, d.readTimeout, err)
		}
		return d.fail(task, result, err)
	}
	if err := out.Close(); err != nil {
		return d.fail(task, result, fmt.Errorf("close file: %w", err))
	}

	result.OK = true
	return result
}

func (d *Downloader) fail(task Task, result Result, err error) Result {
	d.logger.Warn().
		Str("env", task.Source.Tag).
		Str("app", task.App).
		Str("file", task.FileName()).
		Err(err).
		Msg("archive download attempt failed")
	result.OK = false
	result.Err = err.Error()
	return result
}

// idleTimeoutReader cancels the request when a single Read blocks longer
// than timeout.
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	itr := &idleTimeoutReader{r: r, timeout: timeout}
	itr.timer = time.AfterFunc(timeout, func() {
		itr.fired.Store(true)
		cancel()
	})
	return itr
}

func (i *idleTimeoutReader) Read(p []byte) (int, error) {
	i.timer.Reset(i.timeout)
	n, err := i.r.Read(p)
	i.timer.Stop()
	return n, err
}

func (i *idleTimeoutReader) expired() bool { return i.fired.Load() }

func (i *idleTimeoutReader) stop() { i.timer.Stop() }
