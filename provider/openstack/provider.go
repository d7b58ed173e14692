// Package openstack implements the hunt compute capability against an
// OpenStack cloud through gophercloud. Each account gets its own
// authenticated client built from the account's credentials.
package openstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gammadia/harrier/hunt"
	"github.com/gammadia/harrier/namegen"
	"github.com/gammadia/harrier/provider/internal"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/samber/lo"
)

type Connector struct {
	log *slog.Logger
}

// Connector implements hunt.ComputeConnector
var _ hunt.ComputeConnector = (*Connector)(nil)

func NewConnector(logger *slog.Logger) *Connector {
	return &Connector{log: logger}
}

// Connect authenticates one account and builds its compute client. When the
// account carries an SSH public key, a keypair named after the account is
// imported so launched instances are reachable.
func (c *Connector) Connect(ctx context.Context, account hunt.Account) (hunt.Compute, error) {
	domain := account.Credentials.Domain
	if domain == "" {
		domain = "Default"
	}

	provider, err := openstack.AuthenticatedClient(gophercloud.AuthOptions{
		IdentityEndpoint: account.Credentials.AuthURL,
		Username:         account.Credentials.Username,
		Password:         account.Credentials.Password,
		TenantName:       account.Credentials.Project,
		DomainName:       domain,
		AllowReauth:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate account '%s': %w", account.ID, err)
	}

	endpointOpts := gophercloud.EndpointOpts{Region: account.Credentials.Region}

	client, err := openstack.NewComputeV2(provider, endpointOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to get compute client for account '%s': %w", account.ID, err)
	}

	// Block storage is only used by the inventory surface; its absence must
	// not prevent the hunt itself.
	storage, err := openstack.NewBlockStorageV3(provider, endpointOpts)
	if err != nil {
		c.log.Debug("Block storage unavailable", "account", account.ID, "error", err)
		storage = nil
	}

	compute := &Compute{
		client:  client,
		storage: storage,
		log:     c.log.With("account", account.ID),
	}

	if account.Shape.SSHKey != "" {
		if compute.keyName, err = ensureKeypair(client, account); err != nil {
			return nil, err
		}
	}

	return compute, nil
}

// ensureKeypair imports the account's public key under a stable name,
// reusing the keypair when it already exists.
func ensureKeypair(client *gophercloud.ServiceClient, account hunt.Account) (string, error) {
	name := "harrier-" + account.ID

	_, err := keypairs.Get(client, name, nil).Extract()
	if err == nil {
		return name, nil
	}
	var notFound gophercloud.ErrDefault404
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("failed to look up keypair '%s': %w", name, err)
	}

	_, err = keypairs.Create(client, keypairs.CreateOpts{
		Name:      name,
		PublicKey: account.Shape.SSHKey,
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("failed to import keypair '%s': %w", name, err)
	}
	return name, nil
}

type Compute struct {
	client  *gophercloud.ServiceClient
	storage *gophercloud.ServiceClient
	log     *slog.Logger
	keyName string

	// flavorRef caches the resolved flavor; the shape never changes within a run.
	flavorOnce sync.Once
	flavorRef  string
	flavorErr  error
}

// Compute implements hunt.Compute and hunt.Inventory
var (
	_ hunt.Compute   = (*Compute)(nil)
	_ hunt.Inventory = (*Compute)(nil)
)

// ListZones returns the available availability zones, in provider order.
func (c *Compute) ListZones(ctx context.Context, account hunt.Account) ([]string, error) {
	pages, err := availabilityzones.List(c.client).AllPages()
	if err != nil {
		return nil, fmt.Errorf("failed to list availability zones: %w", err)
	}
	zones, err := availabilityzones.ExtractAvailabilityZones(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract availability zones: %w", err)
	}

	return lo.FilterMap(zones, func(zone availabilityzones.AvailabilityZone, _ int) (string, bool) {
		return zone.ZoneName, zone.ZoneState.Available
	}), nil
}

// LaunchAttempt makes one server creation attempt in the given zone.
// An HTTP 429 from the provider maps to RateLimited; every other error maps
// to AttemptFailed and is retried by the caller.
func (c *Compute) LaunchAttempt(ctx context.Context, account hunt.Account, zone string) hunt.AttemptResult {
	flavor, err := c.resolveFlavor(account.Shape)
	if err != nil {
		return hunt.AttemptFailed{Message: err.Error()}
	}

	name := account.Shape.DisplayName
	if name == "" {
		name = namegen.Instance()
	}

	var builder servers.CreateOptsBuilder = servers.CreateOpts{
		Name:             name,
		ImageRef:         account.Shape.Image,
		FlavorRef:        flavor,
		AvailabilityZone: zone,
		Networks:         []servers.Network{{UUID: account.Shape.Network}},
		Metadata: map[string]string{
			"harrier-account":     account.ID,
			"harrier-launched-at": time.Now().Format(time.RFC3339),
		},
	}
	if c.keyName != "" {
		builder = keypairs.CreateOptsExt{CreateOptsBuilder: builder, KeyName: c.keyName}
	}

	server, err := servers.Create(c.client, builder).Extract()
	if err != nil {
		if isRateLimited(err) {
			return hunt.RateLimited{Message: err.Error()}
		}
		return hunt.AttemptFailed{Message: err.Error()}
	}

	c.log.Debug("Server created", "server", server.ID, "name", name, "zone", zone)
	return hunt.Launched{ResourceID: server.ID}
}

// ResolveAddress polls the server until it reports an address. The caller
// bounds the overall wait; failures degrade to "pending" upstream.
func (c *Compute) ResolveAddress(ctx context.Context, resourceID string) (string, error) {
	return internal.RetryResult(ctx, 5, 3*time.Second, func() (string, error) {
		server, err := servers.Get(c.client, resourceID).Extract()
		if err != nil {
			return "", fmt.Errorf("failed to get server '%s': %w", resourceID, err)
		}
		if address := pickAddress(server); address != "" {
			return address, nil
		}
		return "", fmt.Errorf("server '%s' has no address yet", resourceID)
	})
}

// pickAddress prefers the access IP, then a floating IPv4, then a fixed IPv4.
func pickAddress(server *servers.Server) string {
	if server.AccessIPv4 != "" {
		return server.AccessIPv4
	}

	var fixed string
	for _, networkAddresses := range server.Addresses {
		list, ok := networkAddresses.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			address, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if version, _ := address["version"].(float64); version != 4 {
				continue
			}
			ip, _ := address["addr"].(string)
			if kind, _ := address["OS-EXT-IPS:type"].(string); kind == "floating" {
				return ip
			}
			if fixed == "" {
				fixed = ip
			}
		}
	}
	return fixed
}

// resolveFlavor returns the flavor reference to launch: the account's pinned
// flavor, or the smallest flavor satisfying the shape's CPU/memory request.
func (c *Compute) resolveFlavor(shape hunt.Shape) (string, error) {
	if shape.Flavor != "" {
		return shape.Flavor, nil
	}

	c.flavorOnce.Do(func() {
		pages, err := flavors.ListDetail(c.client, flavors.ListOpts{}).AllPages()
		if err != nil {
			c.flavorErr = fmt.Errorf("failed to list flavors: %w", err)
			return
		}
		all, err := flavors.ExtractFlavors(pages)
		if err != nil {
			c.flavorErr = fmt.Errorf("failed to extract flavors: %w", err)
			return
		}
		c.flavorRef, c.flavorErr = pickFlavor(all, shape)
	})
	return c.flavorRef, c.flavorErr
}

// pickFlavor selects the smallest flavor satisfying the shape, by vCPUs
// first and RAM second.
func pickFlavor(all []flavors.Flavor, shape hunt.Shape) (string, error) {
	candidates := lo.Filter(all, func(flavor flavors.Flavor, _ int) bool {
		return flavor.VCPUs >= shape.CPUs && flavor.RAM >= shape.MemoryGB*1024
	})
	if len(candidates) == 0 {
		return "", fmt.Errorf("no flavor offers %d CPUs and %d GB", shape.CPUs, shape.MemoryGB)
	}

	best := lo.MinBy(candidates, func(a, b flavors.Flavor) bool {
		if a.VCPUs != b.VCPUs {
			return a.VCPUs < b.VCPUs
		}
		return a.RAM < b.RAM
	})
	return best.ID, nil
}

// isRateLimited reports whether the provider rejected a call with HTTP 429.
func isRateLimited(err error) bool {
	var tooManyRequests gophercloud.ErrDefault429
	if errors.As(err, &tooManyRequests) {
		return true
	}
	var unexpected gophercloud.ErrUnexpectedResponseCode
	return errors.As(err, &unexpected) && unexpected.Actual == http.StatusTooManyRequests
}

type serverWithZone struct {
	servers.Server
	availabilityzones.ServerAvailabilityZoneExt
}

// ListInstances is the inventory view of the account's servers.
func (c *Compute) ListInstances(ctx context.Context) ([]hunt.Instance, error) {
	pages, err := servers.List(c.client, servers.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	var all []serverWithZone
	if err := servers.ExtractServersInto(pages, &all); err != nil {
		return nil, fmt.Errorf("failed to extract servers: %w", err)
	}

	return lo.Map(all, func(server serverWithZone, _ int) hunt.Instance {
		flavor, _ := server.Flavor["id"].(string)
		return hunt.Instance{
			ID:      server.ID,
			Name:    server.Name,
			Flavor:  flavor,
			Status:  server.Status,
			Zone:    server.AvailabilityZone,
			Created: server.Created,
		}
	}), nil
}

// ListVolumes is the inventory view of the account's block storage.
func (c *Compute) ListVolumes(ctx context.Context) ([]hunt.Volume, error) {
	if c.storage == nil {
		return nil, errors.New("block storage is not available for this account")
	}

	pages, err := volumes.List(c.storage, volumes.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	all, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract volumes: %w", err)
	}

	return lo.Map(all, func(volume volumes.Volume, _ int) hunt.Volume {
		return hunt.Volume{
			ID:     volume.ID,
			Name:   volume.Name,
			SizeGB: volume.Size,
			Status: volume.Status,
		}
	}), nil
}
