package xapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndpointKey(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/2/users/1234567890/tweets", "/2/users/:id/tweets"},
		{"/2/users/12345/mentions?max_results=10", "/2/users/:id/mentions"},
		{"/2/users/1234/tweets", "/2/users/1234/tweets"},
		{"/2/users/me", "/2/users/me"},
		{"/2/tweets", "/2/tweets"},
		{"/2/tweets/99999a", "/2/tweets/99999a"},
		{"/2/tweets/1460323737035677698/liking_users", "/2/tweets/:id/liking_users"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, EndpointKey(tc.path), tc.path)
	}
}

func TestEndpointKeySharesBucketAcrossIDs(t *testing.T) {
	require.Equal(t, EndpointKey("/2/users/11111/tweets"), EndpointKey("/2/users/987654321/tweets"))
}
