package mesh

// Transport is the proxy data channel of a connected node. Connecting and
// scanning stay with the caller; notifications from the Data Out
// characteristic are handed to the configurator.
type Transport interface {
	// Write writes b to the proxy Data In characteristic.
	Write(b []byte, withResponse bool) error

	// MaximumWriteLength returns the largest value a single write can carry.
	MaximumWriteLength(withResponse bool) int

	// Disconnect asks the central to drop the connection.
	Disconnect() error
}

// ProxyServiceUUID is the 16-bit UUID of the Mesh Proxy service.
const ProxyServiceUUID = 0x1828

// Proxy PDU message types (low 6 bits of the proxy header).
const (
	ProxyTypeNetwork       = 0x00
	ProxyTypeBeacon        = 0x01
	ProxyTypeConfiguration = 0x02
	ProxyTypeProvisioning  = 0x03
)
