package openstack

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gammadia/harrier/hunt"
)

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(gophercloud.ErrDefault429{}))
	assert.True(t, isRateLimited(fmt.Errorf("wrapped: %w", gophercloud.ErrDefault429{})))
	assert.True(t, isRateLimited(gophercloud.ErrUnexpectedResponseCode{Actual: http.StatusTooManyRequests}))

	assert.False(t, isRateLimited(nil))
	assert.False(t, isRateLimited(errors.New("out of host capacity")))
	assert.False(t, isRateLimited(gophercloud.ErrDefault404{}))
	assert.False(t, isRateLimited(gophercloud.ErrUnexpectedResponseCode{Actual: http.StatusServiceUnavailable}))
}

func TestPickAddressPrefersAccessIP(t *testing.T) {
	server := &servers.Server{
		AccessIPv4: "203.0.113.1",
		Addresses: map[string]any{
			"private": []any{
				map[string]any{"version": 4.0, "addr": "10.0.0.5", "OS-EXT-IPS:type": "fixed"},
			},
		},
	}
	assert.Equal(t, "203.0.113.1", pickAddress(server))
}

func TestPickAddressPrefersFloatingOverFixed(t *testing.T) {
	server := &servers.Server{
		Addresses: map[string]any{
			"private": []any{
				map[string]any{"version": 4.0, "addr": "10.0.0.5", "OS-EXT-IPS:type": "fixed"},
				map[string]any{"version": 4.0, "addr": "203.0.113.9", "OS-EXT-IPS:type": "floating"},
			},
		},
	}
	assert.Equal(t, "203.0.113.9", pickAddress(server))
}

func TestPickAddressFallsBackToFixed(t *testing.T) {
	server := &servers.Server{
		Addresses: map[string]any{
			"private": []any{
				map[string]any{"version": 6.0, "addr": "2001:db8::1", "OS-EXT-IPS:type": "fixed"},
				map[string]any{"version": 4.0, "addr": "10.0.0.5", "OS-EXT-IPS:type": "fixed"},
			},
		},
	}
	assert.Equal(t, "10.0.0.5", pickAddress(server))
}

func TestPickAddressEmptyWhenNothingUsable(t *testing.T) {
	assert.Empty(t, pickAddress(&servers.Server{}))
	assert.Empty(t, pickAddress(&servers.Server{
		Addresses: map[string]any{
			"private": []any{
				map[string]any{"version": 6.0, "addr": "2001:db8::1"},
			},
		},
	}))
}

func TestPickFlavorSmallestSatisfying(t *testing.T) {
	all := []flavors.Flavor{
		{ID: "tiny", VCPUs: 1, RAM: 1024},
		{ID: "large", VCPUs: 8, RAM: 65536},
		{ID: "medium", VCPUs: 4, RAM: 24576},
		{ID: "medium-fat", VCPUs: 4, RAM: 32768},
	}

	id, err := pickFlavor(all, hunt.Shape{CPUs: 4, MemoryGB: 24})
	require.NoError(t, err)
	assert.Equal(t, "medium", id)

	id, err = pickFlavor(all, hunt.Shape{CPUs: 4, MemoryGB: 28})
	require.NoError(t, err)
	assert.Equal(t, "medium-fat", id)
}

func TestPickFlavorNoMatch(t *testing.T) {
	all := []flavors.Flavor{
		{ID: "tiny", VCPUs: 1, RAM: 1024},
	}

	_, err := pickFlavor(all, hunt.Shape{CPUs: 16, MemoryGB: 64})
	assert.ErrorContains(t, err, "no flavor offers")
}
