package whttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendPostsBodyAndReadsTitle(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = r.Method + " " + r.Header.Get("Content-Type") + " " + string(b)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><head><title>\n  Bad   Gateway </title></head></html>"))
	}))
	defer srv.Close()

	res, err := Send(context.Background(), &Request{
		URL:     srv.URL,
		Method:  http.MethodPost,
		Headers: []Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    []byte(`{"a":1}`),
	}, srv.Client())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != `POST application/json {"a":1}` {
		t.Errorf("server saw %q", got)
	}
	if res.OK() || res.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", res.StatusCode)
	}
	if res.Title != "Bad Gateway" {
		t.Errorf("title = %q", res.Title)
	}
}

func TestSendPlainBodyHasNoTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := Send(context.Background(), &Request{URL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.OK() || res.Title != "" || res.Body != "ok" {
		t.Errorf("unexpected response %+v", res)
	}
}
