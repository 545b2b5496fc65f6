package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/vfaronov/httpheader"

	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Lookup is the outcome of a filename resolution request
type Lookup struct {
	Filename   string
	HTTPStatus int
	Kind       types.ErrorKind
	Err        error
}

// ResolveFilename sends a HEAD request and picks a local filename for rawurl.
// Preference order: Content-Disposition filename, the last segment of the
// effective (post-redirect) URL when it carries a short extension, then
// types.DefaultFilename. Statuses >= 400 are reported as errors.
func ResolveFilename(ctx context.Context, client *transfer.Client, rawurl string) Lookup {
	utils.Debug("Resolving filename: %s", rawurl)

	probeCtx, cancel := context.WithTimeout(ctx, client.Runtime.GetProbeTimeout())
	defer cancel()

	result := Lookup{Filename: types.DefaultFilename}

	resp, err := client.Head(probeCtx, rawurl)
	if err != nil {
		result.Err = err
		result.Kind = transfer.Classify(err)
		utils.Debug("Filename lookup failed: %v", err)
		return result
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) // Drain any remaining data
		resp.Body.Close()
	}()

	result.HTTPStatus = resp.StatusCode
	utils.Debug("Lookup response status: %d", resp.StatusCode)

	if resp.StatusCode >= 400 {
		result.Err = transfer.ErrHTTPStatus
		result.Kind = types.ErrHTTPReturnedError
		return result
	}

	if name := filenameFromHeader(resp.Header); name != "" {
		result.Filename = name
		return result
	}

	effective := rawurl
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}
	result.Filename = FilenameFromURL(effective)

	utils.Debug("Lookup complete - filename: %s", result.Filename)
	return result
}

// filenameFromHeader extracts a safe base name from Content-Disposition
func filenameFromHeader(h http.Header) string {
	_, name, _ := httpheader.ContentDisposition(h)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	// Never let the server pick a directory
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// FilenameFromURL derives a name from the final path segment of rawurl.
// The segment is only used when it has an extension of 1-4 characters.
func FilenameFromURL(rawurl string) string {
	parsed, err := url.Parse(rawurl)
	if err != nil || parsed.Path == "" || strings.HasSuffix(parsed.Path, "/") {
		return types.DefaultFilename
	}

	name := path.Base(parsed.Path)
	dot := strings.LastIndex(name, ".")
	if dot == -1 {
		return types.DefaultFilename
	}
	if extLen := len(name) - dot - 1; extLen < 1 || extLen > 4 {
		return types.DefaultFilename
	}
	return name
}
