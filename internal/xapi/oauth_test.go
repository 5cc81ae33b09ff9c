package xapi

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- HMAC-SHA1 is mandated by OAuth 1.0a
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twitterDocSigner() *Signer {
	return &Signer{
		Credentials: Credentials{
			ConsumerKey:       "xvz1evFS4wEEPTGEFPHBog",
			ConsumerSecret:    "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
			AccessToken:       "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
			AccessTokenSecret: "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
		},
		Nonce: func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" },
		Clock: func() time.Time { return time.Unix(1318622958, 0) },
	}
}

func TestSignatureBaseMatchesPublishedVector(t *testing.T) {
	params := map[string]string{
		"include_entities":       "true",
		"status":                 "Hello Ladies + Gentlemen, a signed OAuth request!",
		"oauth_consumer_key":     "xvz1evFS4wEEPTGEFPHBog",
		"oauth_nonce":            "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1318622958",
		"oauth_token":            "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		"oauth_version":          "1.0",
	}

	want := "POST&https%3A%2F%2Fapi.twitter.com%2F1.1%2Fstatuses%2Fupdate.json&" +
		"include_entities%3Dtrue%26oauth_consumer_key%3Dxvz1evFS4wEEPTGEFPHBog%26" +
		"oauth_nonce%3DkYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg%26oauth_signature_method%3DHMAC-SHA1%26" +
		"oauth_timestamp%3D1318622958%26oauth_token%3D370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb%26" +
		"oauth_version%3D1.0%26status%3DHello%2520Ladies%2520%252B%2520Gentlemen%252C%2520a%2520signed%2520OAuth%2520request%2521"

	require.Equal(t, want, SignatureBase("post", "https://api.twitter.com/1.1/statuses/update.json", params))
}

func TestAuthorizationHeaderMatchesPublishedVector(t *testing.T) {
	signer := twitterDocSigner()

	header := signer.AuthorizationHeader(http.MethodPost, "https://api.twitter.com/1.1/statuses/update.json", map[string]string{
		"include_entities": "true",
		"status":           "Hello Ladies + Gentlemen, a signed OAuth request!",
	})

	require.True(t, strings.HasPrefix(header, "OAuth "))
	require.Contains(t, header, `oauth_signature="hCtSmYh%2BiHYCEqBWrE7C7hYmtUk%3D"`)
}

func TestSignUsesQueryAndFormParams(t *testing.T) {
	signer := twitterDocSigner()

	form := url.Values{}
	form.Set("status", "Hello Ladies + Gentlemen, a signed OAuth request!")
	req, err := http.NewRequest(http.MethodPost, "https://API.Twitter.com:443/1.1/statuses/update.json?include_entities=true", strings.NewReader(form.Encode()))
	require.NoError(t, err)

	require.NoError(t, signer.Sign(req, form))
	require.Contains(t, req.Header.Get("Authorization"), `oauth_signature="hCtSmYh%2BiHYCEqBWrE7C7hYmtUk%3D"`)
}

func TestSignRefusesRepeatedParams(t *testing.T) {
	signer := twitterDocSigner()

	req, err := http.NewRequest(http.MethodGet, "https://api.twitter.com/2/tweets?ids=1&ids=2", nil)
	require.NoError(t, err)
	require.ErrorContains(t, signer.Sign(req, nil), `"ids"`)
	require.Empty(t, req.Header.Get("Authorization"))

	form := url.Values{}
	form.Set("status", "hello")
	req, err = http.NewRequest(http.MethodPost, "https://api.twitter.com/1.1/statuses/update.json?status=dup", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	require.ErrorContains(t, signer.Sign(req, form), `"status"`)
}

func TestAuthorizationHeaderReservedCharacters(t *testing.T) {
	signer := &Signer{
		Credentials: Credentials{ConsumerKey: "ck", ConsumerSecret: "c s", AccessToken: "at", AccessTokenSecret: "a&s"},
		Nonce:       func() string { return "abc" },
		Clock:       func() time.Time { return time.Unix(1700000000, 0) },
	}

	header := signer.AuthorizationHeader(http.MethodGet, "https://api.example.com/2/search", map[string]string{
		"q": "a b!'()*~",
	})

	base := "GET&https%3A%2F%2Fapi.example.com%2F2%2Fsearch&" +
		"oauth_consumer_key%3Dck%26oauth_nonce%3Dabc%26oauth_signature_method%3DHMAC-SHA1%26" +
		"oauth_timestamp%3D1700000000%26oauth_token%3Dat%26oauth_version%3D1.0%26" +
		"q%3Da%2520b%2521%2527%2528%2529%252A~"
	mac := hmac.New(sha1.New, []byte("c%20s&a%26s"))
	_, _ = mac.Write([]byte(base))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Contains(t, header, `oauth_signature="`+url.QueryEscape(signature)+`"`)
}

func TestAuthorizationHeaderFormat(t *testing.T) {
	signer := twitterDocSigner()
	header := signer.AuthorizationHeader(http.MethodGet, "https://api.twitter.com/2/users/me", map[string]string{
		"user.fields": "name",
	})

	fields := strings.Split(strings.TrimPrefix(header, "OAuth "), ", ")
	require.Len(t, fields, 7)

	var keys []string
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(key, "oauth_"), key)
		assert.True(t, strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`), value)
		keys = append(keys, key)
	}
	require.IsIncreasing(t, keys)
	require.NotContains(t, header, "user.fields")
}

func TestSignerNonceIsFreshPerCall(t *testing.T) {
	signer := NewSigner(Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "ats"})

	first := signer.AuthorizationHeader(http.MethodGet, "https://api.twitter.com/2/users/me", nil)
	second := signer.AuthorizationHeader(http.MethodGet, "https://api.twitter.com/2/users/me", nil)
	require.NotEqual(t, first, second)
	require.Len(t, randomNonce(), 32)
}

func TestPercentEncodeEveryByte(t *testing.T) {
	for b := 0; b < 256; b++ {
		c := byte(b)
		got := PercentEncode(string([]byte{c}))
		unreserved := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~'
		if unreserved {
			require.Equal(t, string([]byte{c}), got, "byte %#x", c)
			continue
		}
		require.Equal(t, fmt.Sprintf("%%%02X", c), got, "byte %#x", c)
	}
}

func TestPercentEncodeUTF8(t *testing.T) {
	require.Equal(t, "%E2%98%83", PercentEncode("☃"))
	require.Equal(t, "a%20b%2Bc", PercentEncode("a b+c"))
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://API.Twitter.com/2/tweets?x=1":     "https://api.twitter.com/2/tweets",
		"HTTP://example.com:80/a":                  "http://example.com/a",
		"https://example.com:8443/a#frag":          "https://example.com:8443/a",
		"https://example.com":                      "https://example.com/",
		"http://127.0.0.1:51234/2/users/me?a=b&c=": "http://127.0.0.1:51234/2/users/me",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, BaseURL(u), raw)
	}
}

func TestCredentialsValidate(t *testing.T) {
	err := Credentials{ConsumerKey: "ck", AccessToken: " "}.Validate()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, []string{"consumer_secret", "access_token", "access_token_secret"}, cfgErr.Missing)
	require.NotContains(t, err.Error(), "ck")

	require.NoError(t, Credentials{ConsumerKey: "a", ConsumerSecret: "b", AccessToken: "c", AccessTokenSecret: "d"}.Validate())
}

func TestCredentialsTrimmed(t *testing.T) {
	creds := Credentials{ConsumerKey: " ck\n", ConsumerSecret: "\tcs", AccessToken: "at ", AccessTokenSecret: "ats"}.Trimmed()
	require.Equal(t, Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "ats"}, creds)
}
