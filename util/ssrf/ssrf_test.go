package ssrf

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicIPAddress(t *testing.T) {
	assert := assert.New(t)

	for _, s := range []string{"8.8.8.8", "93.184.216.34", "2606:4700::1111"} {
		assert.True(IsPublicIPAddress(netip.MustParseAddr(s)), s)
	}
	for _, s := range []string{"127.0.0.1", "10.1.2.3", "192.168.1.1", "169.254.169.254", "::1", "fe80::1", "::ffff:127.0.0.1"} {
		assert.False(IsPublicIPAddress(netip.MustParseAddr(s)), s)
	}
}

func TestPublicOnlyControl(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(PublicOnlyControl("tcp4", "8.8.8.8:443", nil))
	assert.Error(PublicOnlyControl("tcp4", "8.8.8.8:8080", nil))
	assert.Error(PublicOnlyControl("udp4", "8.8.8.8:443", nil))
	assert.Error(PublicOnlyControl("tcp4", "127.0.0.1:443", nil))
}

func TestPublicOnlyTransportRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	c := http.Client{Transport: PublicOnlyTransport()}
	_, err := c.Get(srv.URL)
	assert.Error(t, err)
}
