package identity

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rigado/blemesh"
)

// Matcher holds the unicast addresses of nodes the caller expects to
// reconnect, e.g. right after provisioning, and matches advertised node
// identities against all of them. Candidates expire after the configured
// time. It is safe for concurrent use.
type Matcher struct {
	identityKey []byte
	candidates  *ttlcache.Cache[mesh.Address, struct{}]
	logger      mesh.Logger
}

// NewMatcher returns a Matcher for netKey. Candidates expire after ttl.
func NewMatcher(netKey [16]byte, ttl time.Duration) (*Matcher, error) {
	k, err := Key(netKey)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		identityKey: k,
		candidates: ttlcache.New[mesh.Address, struct{}](
			ttlcache.WithTTL[mesh.Address, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[mesh.Address, struct{}](),
		),
		logger: mesh.GetLogger().ChildLogger(map[string]interface{}{"component": "identity"}),
	}, nil
}

// Add registers a pending candidate, restarting its expiry.
func (m *Matcher) Add(addr mesh.Address) {
	m.candidates.Set(addr, struct{}{}, ttlcache.DefaultTTL)
}

func (m *Matcher) Remove(addr mesh.Address) {
	m.candidates.Delete(addr)
}

// Pending returns the live candidates.
func (m *Matcher) Pending() []mesh.Address {
	m.candidates.DeleteExpired()
	return m.candidates.Keys()
}

// Match checks a node identity payload against every live candidate. The
// matched candidate is removed.
func (m *Matcher) Match(payload []byte) (mesh.Address, bool) {
	if len(payload) != NodeIdentityLen || payload[0] != TypeNodeIdentity {
		return mesh.UnassignedAddress, false
	}

	for _, addr := range m.Pending() {
		ok, err := verifyWithKey(m.identityKey, payload, addr)
		if err != nil {
			m.logger.Debugf("match %v: %v", addr, err)
			continue
		}
		if ok {
			m.candidates.Delete(addr)
			m.logger.Infof("node identity matched %v", addr)
			return addr, true
		}
	}
	return mesh.UnassignedAddress, false
}
