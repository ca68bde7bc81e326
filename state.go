package mesh

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rigado/blemesh/crypto"
)

// MaxSequence is the largest 24-bit sequence number.
const MaxSequence = 0xFFFFFF

var (
	ErrNodeExists        = errors.New("node already provisioned")
	ErrNodeNotFound      = errors.New("node not found")
	ErrInvalidAddress    = errors.New("not a unicast address")
	ErrElementCount      = errors.New("element count must be positive")
	ErrUnicastExhausted  = errors.New("unicast address range exhausted")
	ErrSequenceExhausted = errors.New("sequence number space exhausted")
	ErrKeyIndex          = errors.New("key index exceeds 12 bits")
)

// AppKey is a named application key. Its position in NetworkConfig.AppKeys is
// its key index.
type AppKey struct {
	Name string
	Key  [16]byte
}

// NetworkConfig is the plain value form of the security context, used to
// construct a State and to persist it.
type NetworkConfig struct {
	MeshUUID uuid.UUID

	NetKey   [16]byte
	KeyIndex uint16
	IVIndex  uint32
	Flags    byte

	AppKeys []AppKey

	UnicastAddress Address
	NextUnicast    Address
	Sequence       uint32

	Nodes []ProvisionedNode
}

func (c NetworkConfig) clone() NetworkConfig {
	out := c
	out.AppKeys = append([]AppKey(nil), c.AppKeys...)
	out.Nodes = make([]ProvisionedNode, len(c.Nodes))
	for i, n := range c.Nodes {
		out.Nodes[i] = n.Clone()
	}
	return out
}

// Snapshot is an immutable copy of the security context at Version, together
// with the keys derived from the network key.
type Snapshot struct {
	NetworkConfig

	Version uint64

	NID           byte
	EncryptionKey []byte
	PrivacyKey    []byte
	NetworkID     []byte
}

// Node returns the registry entry for addr.
func (s Snapshot) Node(addr Address) (ProvisionedNode, bool) {
	for _, n := range s.Nodes {
		if n.UnicastAddress == addr {
			return n, true
		}
	}
	return ProvisionedNode{}, false
}

// State is the mesh security context: network secrets, key indices, IV index
// and the registry of provisioned nodes. It is safe for concurrent use. Every
// mutation bumps the version, and registry entries are only ever replaced
// whole.
type State struct {
	mu      sync.RWMutex
	cfg     NetworkConfig
	version uint64
	keys    crypto.NetworkKeys
	netID   []byte
}

// NewState validates cfg and derives the network keys.
func NewState(cfg NetworkConfig) (*State, error) {
	if cfg.KeyIndex > 0x0FFF {
		return nil, ErrKeyIndex
	}
	if !cfg.UnicastAddress.IsUnicast() {
		return nil, errors.Wrapf(ErrInvalidAddress, "provisioner address %v", cfg.UnicastAddress)
	}
	if cfg.NextUnicast == UnassignedAddress {
		cfg.NextUnicast = cfg.UnicastAddress + 1
	}
	// one past the last unicast address marks an exhausted allocator
	if !cfg.NextUnicast.IsUnicast() && cfg.NextUnicast != MaxUnicastAddress+1 {
		return nil, errors.Wrapf(ErrInvalidAddress, "next unicast %v", cfg.NextUnicast)
	}
	if cfg.Sequence > MaxSequence {
		return nil, ErrSequenceExhausted
	}
	if cfg.MeshUUID == uuid.Nil {
		cfg.MeshUUID = uuid.New()
	}

	seen := make(map[Address]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if !n.UnicastAddress.IsUnicast() {
			return nil, errors.Wrapf(ErrInvalidAddress, "node %v", n.UnicastAddress)
		}
		if seen[n.UnicastAddress] {
			return nil, errors.Wrapf(ErrNodeExists, "node %v", n.UnicastAddress)
		}
		seen[n.UnicastAddress] = true
	}

	keys, err := crypto.K2(cfg.NetKey[:], []byte{0x00})
	if err != nil {
		return nil, errors.Wrap(err, "k2")
	}
	netID, err := crypto.K3(cfg.NetKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "k3")
	}

	return &State{cfg: cfg.clone(), keys: keys, netID: netID}, nil
}

// GenerateState creates a fresh network with a random network key and one
// random app key named appKeyName at index 0.
func GenerateState(appKeyName string, provisioner Address) (*State, error) {
	cfg := NetworkConfig{
		MeshUUID:       uuid.New(),
		UnicastAddress: provisioner,
	}
	if _, err := rand.Read(cfg.NetKey[:]); err != nil {
		return nil, errors.Wrap(err, "netkey")
	}

	ak := AppKey{Name: appKeyName}
	if _, err := rand.Read(ak.Key[:]); err != nil {
		return nil, errors.Wrap(err, "appkey")
	}
	cfg.AppKeys = []AppKey{ak}

	return NewState(cfg)
}

// Version returns the current version. It changes on every mutation.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		NetworkConfig: s.cfg.clone(),
		Version:       s.version,
		NID:           s.keys.NID,
		EncryptionKey: append([]byte(nil), s.keys.EncryptionKey...),
		PrivacyKey:    append([]byte(nil), s.keys.PrivacyKey...),
		NetworkID:     append([]byte(nil), s.netID...),
	}
}

// Export returns the persistable form of the context.
func (s *State) Export() NetworkConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// NextSequence reserves and returns the next outbound sequence number.
func (s *State) NextSequence() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Sequence > MaxSequence {
		return 0, ErrSequenceExhausted
	}
	seq := s.cfg.Sequence
	s.cfg.Sequence++
	s.version++
	return seq, nil
}

// Node returns a copy of the registry entry for addr.
func (s *State) Node(addr Address) (ProvisionedNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(addr); i >= 0 {
		return s.cfg.Nodes[i].Clone(), true
	}
	return ProvisionedNode{}, false
}

// Nodes returns copies of all registry entries in registry order.
func (s *State) Nodes() []ProvisionedNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProvisionedNode, len(s.cfg.Nodes))
	for i, n := range s.cfg.Nodes {
		out[i] = n.Clone()
	}
	return out
}

// PutNode replaces the entry with the same unicast address, or adds it. The old
// entry is removed and the new one appended.
func (s *State) PutNode(n ProvisionedNode) error {
	if !n.UnicastAddress.IsUnicast() {
		return errors.Wrapf(ErrInvalidAddress, "node %v", n.UnicastAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(n.UnicastAddress)
	s.cfg.Nodes = append(s.cfg.Nodes, n.Clone())
	s.version++
	return nil
}

// AddProvisionedNode registers a node right after provisioning. Only the
// address, device key and name are known at that point.
func (s *State) AddProvisionedNode(addr Address, deviceKey [16]byte, name string) error {
	if !addr.IsUnicast() {
		return errors.Wrapf(ErrInvalidAddress, "node %v", addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(addr) >= 0 {
		return errors.Wrapf(ErrNodeExists, "node %v", addr)
	}
	s.cfg.Nodes = append(s.cfg.Nodes, ProvisionedNode{
		UnicastAddress: addr,
		DeviceKey:      deviceKey,
		Name:           name,
	})
	s.version++
	return nil
}

// RemoveNode drops the entry for addr and reports whether one existed.
func (s *State) RemoveNode(addr Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(addr) {
		return false
	}
	s.version++
	return true
}

// AllocateUnicast returns the address the next provisioned node should get.
// Once a node has taken 0x7FFF the allocator is exhausted.
func (s *State) AllocateUnicast() (Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.cfg.NextUnicast.IsUnicast() {
		return UnassignedAddress, ErrUnicastExhausted
	}
	return s.cfg.NextUnicast, nil
}

// CheckUnicastRange reports whether elements consecutive addresses starting
// at node are all unicast.
func CheckUnicastRange(node Address, elements int) error {
	if elements <= 0 {
		return ErrElementCount
	}
	if !node.IsUnicast() {
		return errors.Wrapf(ErrInvalidAddress, "node %v", node)
	}
	if int(node)+elements-1 > int(MaxUnicastAddress) {
		return errors.Wrapf(ErrUnicastExhausted, "node %v with %d elements", node, elements)
	}
	return nil
}

// AdvanceUnicast moves the allocator past a node occupying elements addresses
// starting at node. The allocator never moves backwards.
func (s *State) AdvanceUnicast(node Address, elements int) error {
	if err := CheckUnicastRange(node, elements); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if end := node + Address(elements); end > s.cfg.NextUnicast {
		s.cfg.NextUnicast = end
		s.version++
	}
	return nil
}

// AddAppKey appends an app key and returns its index.
func (s *State) AddAppKey(name string, key [16]byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.cfg.AppKeys)
	if idx > 0x0FFF {
		return 0, ErrKeyIndex
	}
	s.cfg.AppKeys = append(s.cfg.AppKeys, AppKey{Name: name, Key: key})
	s.version++
	return uint16(idx), nil
}

func (s *State) AppKey(index uint16) (AppKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(index) >= len(s.cfg.AppKeys) {
		return AppKey{}, false
	}
	return s.cfg.AppKeys[index], true
}

func (s *State) indexOf(addr Address) int {
	for i, n := range s.cfg.Nodes {
		if n.UnicastAddress == addr {
			return i
		}
	}
	return -1
}

func (s *State) removeLocked(addr Address) bool {
	i := s.indexOf(addr)
	if i < 0 {
		return false
	}
	s.cfg.Nodes = append(s.cfg.Nodes[:i:i], s.cfg.Nodes[i+1:]...)
	return true
}
