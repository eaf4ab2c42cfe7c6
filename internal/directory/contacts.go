package directory

import "github.com/tordoctor/doctor/internal/types"

// Contacts maps authority nicknames to notification destinations.
type Contacts struct {
	address map[string]string
	viaBCC  map[string]struct{}
}

// NewContacts copies the address table and the set of nicknames that must be
// contacted through bcc.
func NewContacts(address map[string]string, viaBCC []string) *Contacts {
	c := &Contacts{
		address: make(map[string]string, len(address)),
		viaBCC:  make(map[string]struct{}, len(viaBCC)),
	}
	for k, v := range address {
		c.address[k] = v
	}
	for _, n := range viaBCC {
		c.viaBCC[n] = struct{}{}
	}
	return c
}

// Destination returns where to reach the authority, or nil when no contact
// information is configured.
func (c *Contacts) Destination(nickname string) *types.Destination {
	addr, ok := c.address[nickname]
	if !ok || addr == "" {
		return nil
	}
	_, bcc := c.viaBCC[nickname]
	return &types.Destination{Address: addr, BCC: bcc}
}

// Destinations resolves every nickname. Nicknames without contact information
// are present with a nil value so operators can see who was not notified.
func (c *Contacts) Destinations(nicknames []string) map[string]*types.Destination {
	out := make(map[string]*types.Destination, len(nicknames))
	for _, n := range nicknames {
		out[n] = c.Destination(n)
	}
	return out
}
