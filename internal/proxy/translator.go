package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
)

// Placement says where the credential goes on the outbound request.
type Placement string

const (
	// PlacementQuery adds key=<credential> to the query string.
	PlacementQuery Placement = "query"
	// PlacementBearer sets Authorization: Bearer <credential>.
	PlacementBearer Placement = "bearer"
)

// KeyParam is the query parameter that carries the credential in query mode.
const KeyParam = "key"

// bearerSegments mark routes (OpenAI-compatible, embeddings) that expect a bearer token.
var bearerSegments = []string{"/openai/", "/embeddings"}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// PlacementFor picks the credential placement for an inbound path.
func PlacementFor(path string) Placement {
	for _, seg := range bearerSegments {
		if strings.Contains(path, seg) {
			return PlacementBearer
		}
	}
	return PlacementQuery
}

// KeySelector hands out the credential for the next forwarded request.
type KeySelector interface {
	Next() (keys.Credential, error)
}

// Outbound is everything derived from one inbound request before it is sent upstream.
type Outbound struct {
	Method     string
	URL        *url.URL
	Header     http.Header
	Body       []byte
	Credential keys.Credential
	Placement  Placement
}

// Apply writes the outbound URL, host, headers and body onto req.
func (o *Outbound) Apply(req *http.Request) {
	u := *o.URL
	req.URL = &u
	req.Host = o.URL.Host
	req.Header = o.Header

	if len(o.Body) == 0 {
		req.Body = http.NoBody
		req.ContentLength = 0
		req.GetBody = nil
		return
	}

	body := o.Body
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}

// Translator builds Outbound requests against a single upstream origin.
type Translator struct {
	target *url.URL
	keys   KeySelector
	logger *slog.Logger
}

// NewTranslator creates a translator for target that draws keys from sel.
func NewTranslator(target *url.URL, sel KeySelector, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{target: target, keys: sel, logger: logger}
}

// Translate derives the outbound request for r. The body is read before a
// key is selected so a failed read does not consume a rotation step.
func (t *Translator) Translate(r *http.Request) (*Outbound, error) {
	header := cleanHeaders(r.Header)

	body, err := t.readBody(r, header)
	if err != nil {
		return nil, err
	}

	cred, err := t.keys.Next()
	if err != nil {
		return nil, errors.CredentialsExhausted(err)
	}

	placement := PlacementFor(r.URL.Path)
	if placement == PlacementBearer {
		header.Set("Authorization", "Bearer "+cred.Key)
	}

	return &Outbound{
		Method:     r.Method,
		URL:        t.targetURL(r.URL, placement, cred.Key),
		Header:     header,
		Body:       body,
		Credential: cred,
		Placement:  placement,
	}, nil
}

// targetURL joins the upstream origin with the inbound path and rebuilds the query.
func (t *Translator) targetURL(in *url.URL, placement Placement, key string) *url.URL {
	u := &url.URL{
		Scheme: t.target.Scheme,
		Host:   t.target.Host,
		Path:   joinPath(t.target.Path, in.Path),
	}
	if in.RawPath != "" {
		u.RawPath = joinPath(t.target.EscapedPath(), in.RawPath)
	}

	q := in.Query()
	if placement == PlacementQuery {
		q.Set(KeyParam, key)
	}
	u.RawQuery = q.Encode()
	return u
}

func joinPath(base, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + path
}

// cleanHeaders clones in, keeping multi-value order, and drops the headers
// that must not reach the upstream: hop-by-hop headers (including any named
// by Connection), Host, Content-Length and Authorization.
func cleanHeaders(in http.Header) http.Header {
	h := in.Clone()
	if h == nil {
		h = make(http.Header)
	}

	for _, v := range headerValues(h, "Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				delHeader(h, name)
			}
		}
	}
	for _, name := range hopHeaders {
		delHeader(h, name)
	}
	delHeader(h, "Host")
	delHeader(h, "Content-Length")
	delHeader(h, "Authorization")
	return h
}

// headerValues returns all values of name regardless of how the key is cased.
func headerValues(h http.Header, name string) []string {
	var values []string
	for k, v := range h {
		if strings.EqualFold(k, name) {
			values = append(values, v...)
		}
	}
	return values
}

// delHeader removes name regardless of how the key is cased.
func delHeader(h http.Header, name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}

// readBody returns the body to forward. GET and HEAD never carry one.
// JSON bodies are checked but always forwarded byte for byte.
func (t *Translator) readBody(r *http.Request, header http.Header) ([]byte, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil, nil
	}

	var data []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ExitGeneralError, "failed to read request body", err)
		}
	}

	contentType := header.Get("Content-Type")
	if isJSON(contentType) {
		if len(data) > 0 && !gjson.ValidBytes(data) {
			t.logger.Warn("forwarding malformed request body",
				"error", errors.MalformedBody("JSON"),
				"content_type", contentType,
				"path", r.URL.Path,
				"size", len(data))
		}
		delHeader(header, "Content-Type")
		header.Set("Content-Type", "application/json")
	}

	return data, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
