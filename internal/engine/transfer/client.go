package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Client performs transfers and header lookups with a shared transport
type Client struct {
	HTTP    *http.Client
	Runtime *types.RuntimeConfig
}

// NewClient builds a client honoring the proxy and TLS settings in runtime
func NewClient(runtime *types.RuntimeConfig) *Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
	}

	// Configure proxy if runtime config is provided
	if runtime != nil && runtime.ProxyURL != "" {
		parsedURL, err := url.Parse(runtime.ProxyURL)
		if err != nil {
			utils.Debug("Transfer client: Invalid proxy URL %s: %v", runtime.ProxyURL, err)
			transport.Proxy = http.ProxyFromEnvironment
		} else if strings.HasPrefix(parsedURL.Scheme, "socks5") {
			utils.Debug("Transfer client: Using SOCKS5 proxy: %s", runtime.ProxyURL)
			var auth *proxy.Auth
			if parsedURL.User != nil {
				password, _ := parsedURL.User.Password()
				auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
			}
			socks, dialErr := proxy.SOCKS5("tcp", parsedURL.Host, auth, dialer)
			if dialErr != nil {
				utils.Debug("Transfer client: Failed to create SOCKS5 dialer: %v", dialErr)
				transport.Proxy = http.ProxyFromEnvironment
			} else if cd, ok := socks.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return socks.Dial(network, addr)
				}
			}
		} else {
			transport.Proxy = http.ProxyURL(parsedURL)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	// Configure TLS if runtime config is provided
	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("Transfer client: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &Client{
		HTTP: &http.Client{
			Timeout:       0, // transfers are bounded by their context
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		Runtime: runtime,
	}
}

// checkRedirect caps the redirect chain and carries headers over to each hop
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= types.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects: %w", types.MaxRedirects, errTooManyRedirects)
	}
	if len(via) > 0 {
		for key, vals := range via[0].Header {
			req.Header[key] = vals
		}
	}
	return nil
}

// Head issues a header-only request, following redirects.
// The caller owns the returned body.
func (c *Client) Head(ctx context.Context, rawurl string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, &initError{err: err}
	}
	req.Header.Set("User-Agent", c.Runtime.GetUserAgent())
	return c.HTTP.Do(req)
}
