// Package report renders printable documents through a Gotenberg service.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/security-console/internal/platform/httpx"
)

const (
	convertHTMLPath = "/forms/chromium/convert/html"
	healthPath      = "/health"
	traceHeader     = "Gotenberg-Trace"
)

// StatusError is returned when Gotenberg answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report: %s: gotenberg returned status %d", e.Op, e.Status)
}

// Page controls the printed layout. Sizes are in inches.
type Page struct {
	Width, Height float64
	Margin        float64
	Landscape     bool
}

// A4 is the layout used for access reports.
var A4 = Page{Width: 8.27, Height: 11.7, Margin: 0.4}

// Client converts HTML documents to PDF.
type Client struct {
	baseURL    string
	httpClient *http.Client
	page       Page
}

// NewClient constructs a client rendering A4 pages.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		page:       A4,
	}
}

// Ping checks that the service is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report: ping: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return &StatusError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

// RenderHTML converts a standalone HTML document into a PDF. The request id
// of ctx, when present, is forwarded as the Gotenberg trace.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body, contentType, err := c.form(html)
	if err != nil {
		return nil, fmt.Errorf("report: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertHTMLPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if id := middleware.GetReqID(ctx); id != "" {
		req.Header.Set(traceHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "render", Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) form(html string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", err
	}
	fields := map[string]string{
		"paperWidth":      formatInches(c.page.Width),
		"paperHeight":     formatInches(c.page.Height),
		"marginTop":       formatInches(c.page.Margin),
		"marginBottom":    formatInches(c.page.Margin),
		"marginLeft":      formatInches(c.page.Margin),
		"marginRight":     formatInches(c.page.Margin),
		"landscape":       fmt.Sprint(c.page.Landscape),
		"printBackground": "true",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func formatInches(v float64) string {
	return fmt.Sprintf("%gin", v)
}

// PingHandler reports whether the renderer is reachable.
func PingHandler(c *Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Ping(r.Context()); err != nil {
			logger.Warn("gotenberg ping failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "report renderer unreachable")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
