package proxy

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// hop-by-hop headers are not copied back to the client.
var skipHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
	"Upgrade":           true,
}

// ============================================================
// Proxy Handler
// ============================================================

// Upstream forwards requests to one backend service.
type Upstream struct {
	baseURL string
	client  *http.Client
}

func NewUpstream(baseURL string) *Upstream {
	return &Upstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Handler proxies the wildcard part of the route, with the query string, to
// the upstream.
func (u *Upstream) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		target := u.baseURL + "/" + strings.TrimLeft(c.Params("*"), "/")
		if qs := string(c.Request().URI().QueryString()); qs != "" {
			target += "?" + qs
		}
		return u.Forward(c, target)
	}
}

// Forward sends the request to targetURL and relays the response.
// Event streams are relayed as they arrive.
func (u *Upstream) Forward(c fiber.Ctx, targetURL string) error {
	log.Printf("[PROXY] %s %s -> %s", c.Method(), c.Path(), targetURL)

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), targetURL, bytes.NewReader(c.Body()))
	if err != nil {
		log.Printf("[PROXY] build request error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "proxy failed"})
	}
	if contentType := c.Get("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth := c.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if accept := c.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		log.Printf("[PROXY] Error: %v", err)
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": "failed to reach upstream service"})
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return relayStream(c, resp)
	}

	defer resp.Body.Close()
	return copyResponse(c, resp)
}

func copyHeaders(c fiber.Ctx, resp *http.Response) {
	for key, values := range resp.Header {
		if len(values) > 0 && !skipHeaders[key] {
			c.Set(key, values[0])
		}
	}
	c.Status(resp.StatusCode)
}

func copyResponse(c fiber.Ctx, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[PROXY] Read response error: %v", err)
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": "invalid upstream response"})
	}

	copyHeaders(c, resp)
	return c.Send(data)
}

func relayStream(c fiber.Ctx, resp *http.Response) error {
	copyHeaders(c, resp)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
				if ferr := w.Flush(); ferr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	})
}
