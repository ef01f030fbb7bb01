// Package whttp sends small HTTP requests and summarises the response.
package whttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

type Header struct {
	Name  string
	Value string
}

type Request struct {
	URL     string
	Method  string
	Headers []Header
	Body    []byte
}

type Response struct {
	StatusCode int
	// Title is the HTML title of the body, if any.
	Title string
	Body  string
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func Send(ctx context.Context, wReq *Request, client *http.Client) (*Response, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if wReq.Body != nil {
		body = bytes.NewReader(wReq.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "regwatch/1.0")
	req.Header.Set("Cache-Control", "no-transform")
	for _, h := range wReq.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	wRes := &Response{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	if title, ok := htmlTitle(wRes.Body); ok {
		wRes.Title = strings.ToValidUTF8(strings.Join(strings.Fields(title), " "), "")
	}
	return wRes, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := traverse(c); ok {
			return result, ok
		}
	}
	return "", false
}

func htmlTitle(body string) (string, bool) {
	if !strings.Contains(strings.ToLower(body), "<title") {
		return "", false
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
