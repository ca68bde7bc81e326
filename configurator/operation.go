package configurator

import (
	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/message"
)

// Operation is one configuration exchange. The set of operations is closed;
// the driver functions below switch over it.
type Operation interface {
	operation()
}

// AddAppKey sends the app key at AppKeyIndex, bound to the network key of
// the security context.
type AddAppKey struct {
	AppKeyIndex uint16
}

// CompositionDataGet reads a composition data page.
type CompositionDataGet struct {
	Page byte
}

type ModelAppBind struct {
	ElementAddress mesh.Address
	AppKeyIndex    uint16
	Model          mesh.ModelID
}

type ModelPublicationSet struct {
	message.Publication
}

type ModelSubscriptionAdd struct {
	message.Subscription
}

type ModelSubscriptionDelete struct {
	message.Subscription
}

type DefaultTTLGet struct{}

type DefaultTTLSet struct {
	TTL byte
}

// NodeReset removes the node from the network.
type NodeReset struct{}

func (AddAppKey) operation()               {}
func (CompositionDataGet) operation()      {}
func (ModelAppBind) operation()            {}
func (ModelPublicationSet) operation()     {}
func (ModelSubscriptionAdd) operation()    {}
func (ModelSubscriptionDelete) operation() {}
func (DefaultTTLGet) operation()           {}
func (DefaultTTLSet) operation()           {}
func (NodeReset) operation()               {}

var ErrUnknownOperation = errors.New("unknown operation")

// Name returns the display name of op.
func Name(op Operation) string {
	switch op.(type) {
	case AddAppKey:
		return "Add Application Key"
	case CompositionDataGet:
		return "Get Composition Data"
	case ModelAppBind:
		return "Bind Model to Application Key"
	case ModelPublicationSet:
		return "Set Model Publication"
	case ModelSubscriptionAdd:
		return "Add Model Subscription"
	case ModelSubscriptionDelete:
		return "Delete Model Subscription"
	case DefaultTTLGet:
		return "Get Default TTL"
	case DefaultTTLSet:
		return "Set Default TTL"
	case NodeReset:
		return "Reset Node"
	}
	return "unknown"
}

// request builds the access message for op.
func request(op Operation, state *mesh.State) (message.Message, error) {
	switch o := op.(type) {
	case AddAppKey:
		ak, ok := state.AppKey(o.AppKeyIndex)
		if !ok {
			return nil, errors.Errorf("no app key at index %d", o.AppKeyIndex)
		}
		return message.AppKeyAdd{
			NetKeyIndex: state.Snapshot().KeyIndex,
			AppKeyIndex: o.AppKeyIndex,
			AppKey:      ak.Key,
		}, nil
	case CompositionDataGet:
		return message.CompositionDataGet{Page: o.Page}, nil
	case ModelAppBind:
		return message.ModelAppBind{ElementAddress: o.ElementAddress, AppKeyIndex: o.AppKeyIndex, Model: o.Model}, nil
	case ModelPublicationSet:
		return message.ModelPublicationSet{Publication: o.Publication}, nil
	case ModelSubscriptionAdd:
		return message.ModelSubscriptionAdd{Subscription: o.Subscription}, nil
	case ModelSubscriptionDelete:
		return message.ModelSubscriptionDelete{Subscription: o.Subscription}, nil
	case DefaultTTLGet:
		return message.DefaultTTLGet{}, nil
	case DefaultTTLSet:
		return message.DefaultTTLSet{TTL: o.TTL}, nil
	case NodeReset:
		return message.NodeReset{}, nil
	}
	return nil, ErrUnknownOperation
}

// response returns the opcode of the status message that completes op.
func response(op Operation) message.Opcode {
	switch op.(type) {
	case AddAppKey:
		return message.OpAppKeyStatus
	case CompositionDataGet:
		return message.OpCompositionDataStatus
	case ModelAppBind:
		return message.OpModelAppStatus
	case ModelPublicationSet:
		return message.OpModelPublicationStatus
	case ModelSubscriptionAdd, ModelSubscriptionDelete:
		return message.OpModelSubscriptionStatus
	case DefaultTTLGet, DefaultTTLSet:
		return message.OpDefaultTTLStatus
	case NodeReset:
		return message.OpNodeResetStatus
	}
	return 0
}

// answers reports whether m is the status that completes op. Statuses that
// echo request fields must echo the ones op sent.
func answers(op Operation, m message.Message) bool {
	if m.Opcode() != response(op) {
		return false
	}

	switch o := op.(type) {
	case AddAppKey:
		s, ok := m.(message.AppKeyStatus)
		return ok && s.AppKeyIndex == o.AppKeyIndex
	case ModelAppBind:
		s, ok := m.(message.ModelAppStatus)
		return ok && s.ElementAddress == o.ElementAddress && s.Model == o.Model && s.AppKeyIndex == o.AppKeyIndex
	case ModelPublicationSet:
		s, ok := m.(message.ModelPublicationStatus)
		return ok && s.ElementAddress == o.ElementAddress && s.Model == o.Model
	case ModelSubscriptionAdd:
		s, ok := m.(message.ModelSubscriptionStatus)
		return ok && s.ElementAddress == o.ElementAddress && s.Model == o.Model
	case ModelSubscriptionDelete:
		s, ok := m.(message.ModelSubscriptionStatus)
		return ok && s.ElementAddress == o.ElementAddress && s.Model == o.Model
	}
	return true
}
