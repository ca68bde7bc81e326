package mesh

import (
	"fmt"
)

// ModelID identifies a SIG model (16-bit) or a vendor model (company + 16-bit id).
type ModelID struct {
	CompanyID uint16 `json:"companyId,omitempty"`
	ID        uint16 `json:"id"`
	Vendor    bool   `json:"vendor,omitempty"`
}

func SIGModel(id uint16) ModelID {
	return ModelID{ID: id}
}

func VendorModel(companyID, id uint16) ModelID {
	return ModelID{CompanyID: companyID, ID: id, Vendor: true}
}

func (m ModelID) String() string {
	if m.Vendor {
		return fmt.Sprintf("%04X:%04X", m.CompanyID, m.ID)
	}
	return fmt.Sprintf("%04X", m.ID)
}

// Element is one addressable element of a node, as reported in composition data.
type Element struct {
	Location uint16    `json:"location"`
	Models   []ModelID `json:"models"`
}

// ProvisionedNode is a registry entry. Entries are values: to change one, copy
// it with Clone, modify the copy and hand it back to State.PutNode.
type ProvisionedNode struct {
	UnicastAddress Address
	Name           string
	DeviceKey      [16]byte

	CompanyID             uint16
	ProductID             uint16
	VersionID             uint16
	Features              uint16
	ReplayProtectionCount uint16
	Elements              []Element

	// AppKeys holds the indices of app keys the node has acknowledged.
	AppKeys []uint16
}

func (n ProvisionedNode) Clone() ProvisionedNode {
	c := n
	if n.Elements != nil {
		c.Elements = make([]Element, len(n.Elements))
		for i, e := range n.Elements {
			c.Elements[i] = Element{Location: e.Location, Models: append([]ModelID(nil), e.Models...)}
		}
	}
	if n.AppKeys != nil {
		c.AppKeys = append([]uint16(nil), n.AppKeys...)
	}
	return c
}

func (n ProvisionedNode) HasAppKey(index uint16) bool {
	for _, v := range n.AppKeys {
		if v == index {
			return true
		}
	}
	return false
}

// ModelCount returns the number of models across all elements.
func (n ProvisionedNode) ModelCount() int {
	c := 0
	for _, e := range n.Elements {
		c += len(e.Models)
	}
	return c
}
