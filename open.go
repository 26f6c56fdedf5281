package rangezip

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/meigma/rangezip/config"
	"github.com/meigma/rangezip/extract"
	"github.com/meigma/rangezip/source"
	"github.com/meigma/rangezip/source/file"
	rangehttp "github.com/meigma/rangezip/source/http"
	"github.com/meigma/rangezip/zipentry"
)

// Option configures how locations are opened and entries extracted.
type Option func(*settings) error

// settings collects the options for one call.
type settings struct {
	logger      *slog.Logger
	mode        file.Mode
	httpOpts    []rangehttp.Option
	extractOpts []extract.Option
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{mode: file.ModeRead}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.logger != nil {
		s.httpOpts = append(s.httpOpts, rangehttp.WithLogger(s.logger))
		s.extractOpts = append(s.extractOpts, extract.WithLogger(s.logger))
	}
	return s, nil
}

// WithLogger sets the logger passed to every backend and to extraction.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithMode sets the open mode of local files. The default is file.ModeRead.
// Remote locations only support file.ModeRead.
func WithMode(mode file.Mode) Option {
	return func(s *settings) error {
		s.mode = mode
		return nil
	}
}

// WithHTTPOptions appends options for remote sources.
func WithHTTPOptions(opts ...rangehttp.Option) Option {
	return func(s *settings) error {
		s.httpOpts = append(s.httpOpts, opts...)
		return nil
	}
}

// WithExtractOptions appends options for Extract.
func WithExtractOptions(opts ...extract.Option) Option {
	return func(s *settings) error {
		s.extractOpts = append(s.extractOpts, opts...)
		return nil
	}
}

// WithConfig applies the remote and extraction settings of cfg.
// The configuration is validated first.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.httpOpts = append(s.httpOpts, cfg.HTTPOptions()...)
		s.extractOpts = append(s.extractOpts, cfg.ExtractOptions()...)
		return nil
	}
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// localPath maps a location to a file path, accepting file:// URLs.
func localPath(location string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(location), "file://") {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", location, err)
	}
	return u.Path, nil
}

// Open returns a handle on location: an HTTP range source for http(s) URLs
// and a local file otherwise.
func Open(ctx context.Context, location string, opts ...Option) (source.Source, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, location)
}

func (s *settings) open(ctx context.Context, location string) (source.Source, error) {
	if IsRemote(location) {
		if s.mode != file.ModeRead {
			return nil, fmt.Errorf("open %s for %s: %w: remote sources are read-only",
				location, s.mode, source.ErrInvalidHandleState)
		}
		r, err := rangehttp.NewSource(ctx, location, s.httpOpts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	var fileOpts []file.Option
	if s.logger != nil {
		fileOpts = append(fileOpts, file.WithLogger(s.logger))
	}
	f, err := file.Open(path, s.mode, fileOpts...)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewOpener returns a source.Opener that opens a new handle on location on
// every call.
func NewOpener(location string, opts ...Option) (source.Opener, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (source.Source, error) {
		return s.open(ctx, location)
	}, nil
}

// Locate opens location and finds the stored member name.
func Locate(ctx context.Context, location, name string, opts ...Option) (zipentry.Entry, error) {
	src, err := Open(ctx, location, opts...)
	if err != nil {
		return zipentry.Entry{}, err
	}
	defer src.Close()
	return zipentry.Find(src, name)
}

// Extract copies the stored member name of the archive at location into the
// local file output, creating it when missing.
func Extract(ctx context.Context, location, name, output string, opts ...Option) (zipentry.Entry, error) {
	s, err := newSettings(opts)
	if err != nil {
		return zipentry.Entry{}, err
	}
	var fileOpts []file.Option
	if s.logger != nil {
		fileOpts = append(fileOpts, file.WithLogger(s.logger))
	}
	src := func(ctx context.Context) (source.Source, error) {
		return s.open(ctx, location)
	}
	dst := file.Opener(output, file.ModeReadWriteCreate, fileOpts...)
	return extract.Entry(ctx, src, name, dst, s.extractOpts...)
}
