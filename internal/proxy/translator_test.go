package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTranslator(t *testing.T, target string, keyList ...string) *Translator {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatal(err)
	}
	return NewTranslator(u, keys.NewStore(keyList), quietLogger())
}

func TestPlacementFor(t *testing.T) {
	tests := []struct {
		path string
		want Placement
	}{
		{"/v1beta/models/gemini-pro:generateContent", PlacementQuery},
		{"/v1beta/models", PlacementQuery},
		{"/v1beta/openai/chat/completions", PlacementBearer},
		{"/v1beta/openai/", PlacementBearer},
		{"/v1beta/openai", PlacementQuery},
		{"/v1beta/embeddings", PlacementBearer},
		{"/v1beta/models/text-embedding-004:embedContent", PlacementQuery},
		{"/v1beta/openai/embeddings", PlacementBearer},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := PlacementFor(tt.path); got != tt.want {
				t.Errorf("PlacementFor(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestTranslate_QueryPlacement(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1", "k2")

	req := httptest.NewRequest("GET", "/v1beta/models?alt=sse&key=client", nil)
	req.Header.Set("Authorization", "Bearer client-token")

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}

	if out.Placement != PlacementQuery {
		t.Errorf("Placement = %q, want query", out.Placement)
	}
	if out.URL.Scheme != "https" || out.URL.Host != "upstream.example" || out.URL.Path != "/v1beta/models" {
		t.Errorf("URL = %s", out.URL)
	}
	q := out.URL.Query()
	if got := q["key"]; len(got) != 1 || got[0] != "k1" {
		t.Errorf("key = %v, want [k1]", got)
	}
	if got := q.Get("alt"); got != "sse" {
		t.Errorf("alt = %q, want sse", got)
	}
	if got := out.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
	if out.Credential.Index != 0 {
		t.Errorf("Credential.Index = %d, want 0", out.Credential.Index)
	}
}

func TestTranslate_BearerPlacement(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	req := httptest.NewRequest("POST", "/v1beta/openai/chat/completions?key=client", strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Authorization", "Bearer client-token")
	req.Header.Set("Content-Type", "application/json")

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}

	if out.Placement != PlacementBearer {
		t.Errorf("Placement = %q, want bearer", out.Placement)
	}
	if got := out.Header.Values("Authorization"); len(got) != 1 || got[0] != "Bearer k1" {
		t.Errorf("Authorization = %v, want [Bearer k1]", got)
	}
	// A client-supplied key parameter is neither replaced nor duplicated.
	if got := out.URL.Query()["key"]; len(got) != 1 || got[0] != "client" {
		t.Errorf("key = %v, want [client]", got)
	}
	if string(out.Body) != `{"model":"m"}` {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestTranslate_Headers(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	req := httptest.NewRequest("POST", "/v1beta/models/m:generateContent", strings.NewReader("{}"))
	req.Header.Set("Content-Length", "2")
	req.Header.Set("Connection", "keep-alive, X-Hop")
	req.Header.Set("X-Hop", "drop me")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Te", "trailers")
	req.Header.Set("Upgrade", "h2c")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Add("X-Multi", "one")
	req.Header.Add("X-Multi", "two")
	// Non-canonical key as a handcrafted map would carry it.
	req.Header["authorization"] = []string{"Bearer client"}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"Content-Length", "Connection", "X-Hop", "Keep-Alive", "Te", "Upgrade", "Proxy-Authorization", "Authorization", "authorization"} {
		if _, ok := out.Header[name]; ok {
			t.Errorf("header %q should have been removed", name)
		}
	}
	if got := out.Header.Get("X-Forwarded-For"); got != "10.0.0.1" {
		t.Errorf("X-Forwarded-For = %q", got)
	}
	if diff := cmp.Diff([]string{"one", "two"}, out.Header.Values("X-Multi")); diff != "" {
		t.Errorf("X-Multi mismatch (-want +got):\n%s", diff)
	}
	// The inbound request is left untouched.
	if req.Header.Get("X-Hop") != "drop me" {
		t.Error("inbound headers were mutated")
	}
}

func TestTranslate_GetDropsBody(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	req := httptest.NewRequest("GET", "/v1beta/models", strings.NewReader("ignored"))
	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Body != nil {
		t.Errorf("Body = %q, want nil", out.Body)
	}
}

func TestTranslate_MalformedJSONForwardedVerbatim(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	raw := `{"contents": [`
	req := httptest.NewRequest("POST", "/v1beta/models/m:generateContent", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Body) != raw {
		t.Errorf("Body = %q, want %q", out.Body, raw)
	}
	if got := out.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestTranslate_NonJSONBodyKeepsContentType(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	req := httptest.NewRequest("POST", "/v1beta/files", strings.NewReader("raw bytes"))
	req.Header.Set("Content-Type", "application/octet-stream")

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Header.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if string(out.Body) != "raw bytes" {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestTranslate_PreservesEscapedPath(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example", "k1")

	req := httptest.NewRequest("GET", "/v1beta/tunedModels/a%2Fb:generateContent", nil)
	out, err := tr.Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.URL.EscapedPath(); got != "/v1beta/tunedModels/a%2Fb:generateContent" {
		t.Errorf("EscapedPath = %q", got)
	}
}

func TestTranslate_TargetBasePath(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example/base/", "k1")

	out, err := tr.Translate(httptest.NewRequest("GET", "/v1beta/models", nil))
	if err != nil {
		t.Fatal(err)
	}
	if out.URL.Path != "/base/v1beta/models" {
		t.Errorf("Path = %q, want /base/v1beta/models", out.URL.Path)
	}
}

func TestTranslate_NoKeys(t *testing.T) {
	tr := newTranslator(t, "https://upstream.example")

	_, err := tr.Translate(httptest.NewRequest("GET", "/v1beta/models", nil))
	if err == nil {
		t.Fatal("expected error with empty key store")
	}
	if kind := errors.KindOf(err); kind != errors.KindCredentialsExhausted {
		t.Errorf("KindOf = %q, want %q", kind, errors.KindCredentialsExhausted)
	}
	if !errors.Is(err, keys.ErrNoCredentials) {
		t.Error("error should wrap keys.ErrNoCredentials")
	}
	if status := errors.HTTPStatus(err); status != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", status)
	}
}

func TestOutbound_Apply(t *testing.T) {
	u, _ := url.Parse("https://upstream.example/v1beta/models?key=k1")
	out := &Outbound{
		Method: "POST",
		URL:    u,
		Header: http.Header{"X-Test": {"1"}},
		Body:   []byte("hello"),
	}

	req := httptest.NewRequest("POST", "/v1beta/models", nil)
	out.Apply(req)

	if req.Host != "upstream.example" {
		t.Errorf("Host = %q", req.Host)
	}
	if req.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", req.ContentLength)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != "hello" {
		t.Errorf("Body = %q", body)
	}
	replay, err := req.GetBody()
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(replay)
	if string(body) != "hello" {
		t.Errorf("GetBody = %q", body)
	}

	out.Body = nil
	out.Apply(req)
	if req.Body != http.NoBody || req.ContentLength != 0 {
		t.Errorf("empty body not applied: %v %d", req.Body, req.ContentLength)
	}
}
