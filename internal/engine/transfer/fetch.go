package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// ProgressFunc receives the bytes received in this transfer and the
// body size the server announced (0 when unknown). Returning a non-nil
// error aborts the transfer.
type ProgressFunc func(downloaded, total int64) error

// Response describes the server's answer before the body is streamed
type Response struct {
	StatusCode    int
	ContentLength int64 // -1 when the server did not announce a length
	Partial       bool  // true when the requested range was honored
}

// Request describes one streaming GET
type Request struct {
	URL     string
	Offset  int64 // resume from this byte; 0 for a full transfer
	Headers map[string]string

	// OnResponse runs once headers arrive and before any body byte is
	// written. A non-nil error aborts the transfer.
	OnResponse func(Response) error

	Progress ProgressFunc
}

// Result is the outcome of a transfer
type Result struct {
	HTTPStatus int
	Kind       types.ErrorKind
	Err        error
	Written    int64 // body bytes written to the sink in this transfer
}

// OK reports whether the transfer completed successfully
func (r Result) OK() bool {
	return r.Err == nil
}

func failed(status int, written int64, err error) Result {
	return Result{HTTPStatus: status, Kind: Classify(err), Err: err, Written: written}
}

// Fetch streams the body of req.URL into sink, invoking req.Progress at
// most once per progress interval plus once at the start and end.
func (c *Client) Fetch(ctx context.Context, req Request, sink io.Writer) Result {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return failed(0, 0, &initError{err: err})
	}

	for key, val := range req.Headers {
		httpReq.Header.Set(key, val)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.Runtime.GetUserAgent())
	}
	if req.Offset > 0 {
		httpReq.Header.Set("Range", "bytes="+strconv.FormatInt(req.Offset, 10)+"-")
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return failed(0, 0, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
		}
		return failed(0, 0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	status := resp.StatusCode
	switch {
	case status == http.StatusRequestedRangeNotSatisfiable && req.Offset > 0:
		return failed(status, 0, ErrRangeNotSatisfiable)
	case status >= 400:
		return failed(status, 0, fmt.Errorf("%w: %d", ErrHTTPStatus, status))
	}

	info := Response{
		StatusCode:    status,
		ContentLength: resp.ContentLength,
		Partial:       status == http.StatusPartialContent,
	}
	if req.OnResponse != nil {
		if err := req.OnResponse(info); err != nil {
			return failed(status, 0, err)
		}
	}

	total := info.ContentLength
	if total < 0 {
		total = 0
	}

	report := func(written int64) error {
		if req.Progress == nil {
			return nil
		}
		if err := req.Progress(written, total); err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
		return nil
	}

	if err := report(0); err != nil {
		return failed(status, 0, err)
	}

	interval := c.Runtime.GetProgressInterval()
	buf := make([]byte, types.CopyBufferSize)
	var written int64
	lastReport := time.Now()

	for {
		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			nw, writeErr := sink.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if writeErr != nil {
				return failed(status, written, &sinkError{err: writeErr})
			}
			if nw != nr {
				return failed(status, written, &sinkError{err: io.ErrShortWrite})
			}
			if time.Since(lastReport) >= interval {
				lastReport = time.Now()
				if err := report(written); err != nil {
					return failed(status, written, err)
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break // Done reading
			}
			if ctx.Err() != nil {
				return failed(status, written, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
			}
			return failed(status, written, fmt.Errorf("read error: %w", readErr))
		}
	}

	if err := report(written); err != nil {
		return failed(status, written, err)
	}

	return Result{HTTPStatus: status, Kind: types.ErrNone, Written: written}
}
