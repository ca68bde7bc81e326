package configurator

import (
	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/message"
)

// Apply records the outcome of an exchange with node in the registry. Every
// update replaces the whole registry entry. Messages without registry
// effects are ignored.
func Apply(state *mesh.State, node mesh.Address, ev Event) error {
	if ev.Kind != EventMessage || ev.Message == nil {
		return nil
	}

	switch m := ev.Message.(type) {
	case message.AppKeyStatus:
		if m.Status != message.StatusSuccess {
			return nil
		}
		n, ok := state.Node(node)
		if !ok {
			return errors.Wrapf(mesh.ErrNodeNotFound, "%v", node)
		}
		if n.HasAppKey(m.AppKeyIndex) {
			return nil
		}
		n.AppKeys = append(n.AppKeys, m.AppKeyIndex)
		return state.PutNode(n)

	case message.CompositionDataStatus:
		n, ok := state.Node(node)
		if !ok {
			return errors.Wrapf(mesh.ErrNodeNotFound, "%v", node)
		}
		// the registry and the allocator change together or not at all
		if len(m.Elements) > 0 {
			if err := mesh.CheckUnicastRange(node, len(m.Elements)); err != nil {
				return err
			}
		}
		n.CompanyID = m.CompanyID
		n.ProductID = m.ProductID
		n.VersionID = m.VersionID
		n.ReplayProtectionCount = m.ReplayProtectionCount
		n.Features = m.Features
		n.Elements = m.Elements
		if err := state.PutNode(n); err != nil {
			return err
		}
		if len(m.Elements) == 0 {
			return nil
		}
		return state.AdvanceUnicast(node, len(m.Elements))

	case message.NodeResetStatus:
		state.RemoveNode(node)
		return nil
	}

	return nil
}
