package domain

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// requestInput holds the raw values collected by a presentation layer
type requestInput struct {
	URL            string `validate:"required,url,max=8192"`
	DestinationDir string `validate:"required,max=4096"`
}

// DownloadRequest is an immutable description of one transfer
type DownloadRequest struct {
	url            *url.URL
	destinationDir string
	targetFilename string
}

// NewDownloadRequest validates the raw URL and destination directory.
// The URL must use http or https; the directory must be an absolute path.
// When the URL path has no usable last segment a placeholder file name is generated.
func NewDownloadRequest(rawURL, destinationDir string) (DownloadRequest, error) {
	in := requestInput{
		URL:            strings.TrimSpace(rawURL),
		DestinationDir: strings.TrimSpace(destinationDir),
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "DestinationDir" {
			return DownloadRequest{}, fmt.Errorf("%w: %s", ErrInvalidDestination, err)
		}
		return DownloadRequest{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return DownloadRequest{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return DownloadRequest{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return DownloadRequest{}, fmt.Errorf("%w: missing host", ErrInvalidRequest)
	}

	dir := filepath.Clean(filepath.FromSlash(in.DestinationDir))
	if !filepath.IsAbs(dir) {
		return DownloadRequest{}, fmt.Errorf("%w: %s is not an absolute path", ErrInvalidDestination, in.DestinationDir)
	}

	return DownloadRequest{
		url:            u,
		destinationDir: dir,
		targetFilename: FilenameFromURL(u),
	}, nil
}

// FilenameFromURL returns the last segment of the URL path, or a generated
// placeholder when the segment is empty or would escape the destination directory.
func FilenameFromURL(u *url.URL) string {
	p := u.Path
	name := p[strings.LastIndex(p, "/")+1:]
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return PlaceholderFilename()
	}
	return name
}

// PlaceholderFilename returns a fresh file name for URLs without a usable path segment
func PlaceholderFilename() string {
	return "download-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// URL returns a copy of the source URL
func (r DownloadRequest) URL() *url.URL {
	if r.url == nil {
		return nil
	}
	u := *r.url
	return &u
}

// URLString returns the source URL as text
func (r DownloadRequest) URLString() string {
	if r.url == nil {
		return ""
	}
	return r.url.String()
}

// DestinationDir returns the normalized destination directory
func (r DownloadRequest) DestinationDir() string {
	return r.destinationDir
}

// TargetFilename returns the derived file name
func (r DownloadRequest) TargetFilename() string {
	return r.targetFilename
}

// TargetPath returns the full destination path of the downloaded file
func (r DownloadRequest) TargetPath() string {
	return filepath.Join(r.destinationDir, r.targetFilename)
}

// IsZero reports whether the request was never built by NewDownloadRequest
func (r DownloadRequest) IsZero() bool {
	return r.url == nil
}
