package xapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- HMAC-SHA1 is mandated by OAuth 1.0a
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	oauthSignatureMethod = "HMAC-SHA1"
	oauthVersion         = "1.0"
)

// Credentials hold the OAuth 1.0a user-context secrets for the X API.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (c Credentials) Trimmed() Credentials {
	return Credentials{
		ConsumerKey:       strings.TrimSpace(c.ConsumerKey),
		ConsumerSecret:    strings.TrimSpace(c.ConsumerSecret),
		AccessToken:       strings.TrimSpace(c.AccessToken),
		AccessTokenSecret: strings.TrimSpace(c.AccessTokenSecret),
	}
}

// Validate reports every missing credential as a ConfigError.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ConsumerKey) == "" {
		missing = append(missing, "consumer_key")
	}
	if strings.TrimSpace(c.ConsumerSecret) == "" {
		missing = append(missing, "consumer_secret")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		missing = append(missing, "access_token")
	}
	if strings.TrimSpace(c.AccessTokenSecret) == "" {
		missing = append(missing, "access_token_secret")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// Signer produces OAuth 1.0a HMAC-SHA1 Authorization headers.
type Signer struct {
	Credentials Credentials
	Nonce       func() string
	Clock       func() time.Time
}

// NewSigner returns a signer using random nonces and the wall clock.
func NewSigner(creds Credentials) *Signer {
	return &Signer{Credentials: creds.Trimmed()}
}

// PercentEncode encodes s per RFC 3986: every byte outside A-Z a-z 0-9 - . _ ~
// becomes %XX with uppercase hex. Unlike JavaScript's encodeURIComponent this
// also escapes ! ' ( ) *.
func PercentEncode(s string) string {
	// QueryEscape leaves only the unreserved set alone; its one deviation is
	// encoding space as '+', and a literal '+' is always escaped as %2B.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// SignatureBase builds METHOD&enc(baseURL)&enc(sorted params).
func SignatureBase(method, baseURL string, params map[string]string) string {
	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(normalizedParams(params))
}

// AuthorizationHeader signs a request and renders the OAuth header value.
// params holds every query and form-body parameter taking part in the
// signature; the oauth_* protocol parameters are added here.
func (s *Signer) AuthorizationHeader(method, baseURL string, params map[string]string) string {
	oauth := s.protocolParams()

	all := make(map[string]string, len(params)+len(oauth))
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauth {
		all[k] = v
	}

	oauth["oauth_signature"] = s.signature(SignatureBase(method, baseURL, all))

	keys := sortedKeys(oauth)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, PercentEncode(k)+`="`+PercentEncode(oauth[k])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// Sign sets the Authorization header on req. Query parameters come from the
// request URL; form carries application/x-www-form-urlencoded body params and
// may be nil. JSON bodies never take part in the signature.
//
// Parameters are signed as a flat name to value map, so a name that repeats
// within or across the query and form is refused rather than signed with only
// one of its values.
func (s *Signer) Sign(req *http.Request, form url.Values) error {
	if req == nil || req.URL == nil {
		return errors.New("request url is required")
	}

	params := make(map[string]string)
	for _, source := range []url.Values{req.URL.Query(), form} {
		for k, values := range source {
			if len(values) == 0 {
				continue
			}
			if _, seen := params[k]; seen || len(values) > 1 {
				return fmt.Errorf("parameter %q is repeated; only single-valued parameters can be signed", k)
			}
			params[k] = values[0]
		}
	}

	req.Header.Set("Authorization", s.AuthorizationHeader(req.Method, BaseURL(req.URL), params))
	return nil
}

// BaseURL returns the signature base URI: lowercase scheme and host, default
// ports dropped, no query or fragment.
func BaseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func (s *Signer) protocolParams() map[string]string {
	return map[string]string{
		"oauth_consumer_key":     s.Credentials.ConsumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": oauthSignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.Credentials.AccessToken,
		"oauth_version":          oauthVersion,
	}
}

func (s *Signer) signature(base string) string {
	key := PercentEncode(s.Credentials.ConsumerSecret) + "&" + PercentEncode(s.Credentials.AccessTokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Signer) nonce() string {
	if s.Nonce != nil {
		return s.Nonce()
	}
	return randomNonce()
}

func (s *Signer) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func randomNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func normalizedParams(params map[string]string) string {
	keys := sortedKeys(params)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, PercentEncode(k)+"="+PercentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
