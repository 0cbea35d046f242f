package vocabfetch

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Client downloads reference vocabulary files from an HTTP index page,
// the distribution format used by hospital vocabulary mirrors: a plain
// directory listing whose anchors point at the CSV exports.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  zerolog.Logger
}

// New creates a fetch client for the given index page URL.
func New(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resty.New(),
		logger:  logger,
	}
}

// ListFiles scrapes the index page and returns the CSV file names it
// links to, in page order.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", c.baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch index %s: status %d", c.baseURL, resp.StatusCode())
	}

	doc, err := html.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	var files []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				name := path.Base(attr.Val)
				if strings.HasSuffix(strings.ToLower(name), ".csv") && !seen[name] {
					seen[name] = true
					files = append(files, name)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return files, nil
}

// FetchAll downloads every listed file into dir and returns the names
// that succeeded. Individual download failures are logged and skipped so
// one broken link does not abort a multi-gigabyte sync.
func (c *Client) FetchAll(ctx context.Context, dir string) ([]string, error) {
	files, err := c.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	var fetched []string
	for _, name := range files {
		if err := c.fetch(ctx, name, dir); err != nil {
			c.logger.Warn().Err(err).Str("file", name).Msg("vocabulary file skipped")
			continue
		}
		c.logger.Info().Str("file", name).Msg("vocabulary file downloaded")
		fetched = append(fetched, name)
	}
	return fetched, nil
}

func (c *Client) fetch(ctx context.Context, name, dir string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(filepath.Join(dir, name)).
		Get(c.baseURL + "/" + name)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("download %s: status %d", name, resp.StatusCode())
	}
	return nil
}
