package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"game":{"miniDapp":"game.mds.zip"}}`))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(nil, nil, nil)
	raw, err := fetcher.Fetch(context.Background(), srv.URL+"/dapps.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected document body")
	}
}

func TestHTTPFetcher_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(nil, nil, nil)
	_, err := fetcher.Fetch(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Kind != FetchHTTPStatus || fe.Status != http.StatusNotFound {
		t.Fatalf("wrong error: %+v", fe)
	}
}

func TestHTTPFetcher_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":   "definitely not json",
		"not object": `[1,2,3]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			fetcher := NewHTTPFetcher(nil, nil, nil)
			_, err := fetcher.Fetch(context.Background(), srv.URL)

			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fe.Kind != FetchMalformed {
				t.Fatalf("expected malformed, got %s", fe.Kind)
			}
		})
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	fetcher := NewHTTPFetcher(client, nil, nil)
	_, err := fetcher.Fetch(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Kind != FetchTimeout {
		t.Fatalf("expected timeout, got %s", fe.Kind)
	}
}
