package message

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
)

type AppKeyAdd struct {
	NetKeyIndex uint16
	AppKeyIndex uint16
	AppKey      [16]byte
}

func (AppKeyAdd) Opcode() Opcode { return OpAppKeyAdd }

func (m AppKeyAdd) Marshal() ([]byte, error) {
	idx := PackKeyIndexes(m.NetKeyIndex, m.AppKeyIndex)
	return append(idx[:], m.AppKey[:]...), nil
}

func decodeAppKeyAdd(p []byte) (Message, error) {
	if len(p) != 19 {
		return nil, ErrShortMessage
	}
	m := AppKeyAdd{}
	m.NetKeyIndex, m.AppKeyIndex = UnpackKeyIndexes(p)
	copy(m.AppKey[:], p[3:])
	return m, nil
}

type AppKeyStatus struct {
	Status      Status
	NetKeyIndex uint16
	AppKeyIndex uint16
}

func (AppKeyStatus) Opcode() Opcode        { return OpAppKeyStatus }
func (m AppKeyStatus) StatusCode() Status { return m.Status }

func (m AppKeyStatus) Marshal() ([]byte, error) {
	idx := PackKeyIndexes(m.NetKeyIndex, m.AppKeyIndex)
	return append([]byte{byte(m.Status)}, idx[:]...), nil
}

func decodeAppKeyStatus(p []byte) (Message, error) {
	if len(p) != 4 {
		return nil, ErrShortMessage
	}
	m := AppKeyStatus{Status: Status(p[0])}
	m.NetKeyIndex, m.AppKeyIndex = UnpackKeyIndexes(p[1:])
	return m, nil
}

type CompositionDataGet struct {
	Page byte
}

func (CompositionDataGet) Opcode() Opcode { return OpCompositionDataGet }

func (m CompositionDataGet) Marshal() ([]byte, error) {
	return []byte{m.Page}, nil
}

func decodeCompositionDataGet(p []byte) (Message, error) {
	if len(p) != 1 {
		return nil, ErrShortMessage
	}
	return CompositionDataGet{Page: p[0]}, nil
}

// CompositionDataStatus carries composition data page 0.
type CompositionDataStatus struct {
	Page                  byte
	CompanyID             uint16
	ProductID             uint16
	VersionID             uint16
	ReplayProtectionCount uint16
	Features              uint16
	Elements              []mesh.Element
}

func (CompositionDataStatus) Opcode() Opcode { return OpCompositionDataStatus }

func (m CompositionDataStatus) Marshal() ([]byte, error) {
	b := make([]byte, 11)
	b[0] = m.Page
	binary.LittleEndian.PutUint16(b[1:], m.CompanyID)
	binary.LittleEndian.PutUint16(b[3:], m.ProductID)
	binary.LittleEndian.PutUint16(b[5:], m.VersionID)
	binary.LittleEndian.PutUint16(b[7:], m.ReplayProtectionCount)
	binary.LittleEndian.PutUint16(b[9:], m.Features)

	for _, e := range m.Elements {
		var sig, vnd []byte
		numS, numV := 0, 0
		for _, md := range e.Models {
			if md.Vendor {
				vnd = append(vnd, marshalModel(md)...)
				numV++
			} else {
				sig = append(sig, marshalModel(md)...)
				numS++
			}
		}
		if numS > 0xFF || numV > 0xFF {
			return nil, errors.Errorf("element %04x: too many models", e.Location)
		}

		hdr := make([]byte, 4)
		binary.LittleEndian.PutUint16(hdr, e.Location)
		hdr[2] = byte(numS)
		hdr[3] = byte(numV)
		b = append(b, hdr...)
		b = append(b, sig...)
		b = append(b, vnd...)
	}
	return b, nil
}

func decodeCompositionDataStatus(p []byte) (Message, error) {
	if len(p) < 11 {
		return nil, ErrShortMessage
	}
	m := CompositionDataStatus{
		Page:                  p[0],
		CompanyID:             binary.LittleEndian.Uint16(p[1:]),
		ProductID:             binary.LittleEndian.Uint16(p[3:]),
		VersionID:             binary.LittleEndian.Uint16(p[5:]),
		ReplayProtectionCount: binary.LittleEndian.Uint16(p[7:]),
		Features:              binary.LittleEndian.Uint16(p[9:]),
	}

	p = p[11:]
	for len(p) > 0 {
		if len(p) < 4 {
			return nil, ErrShortMessage
		}
		e := mesh.Element{Location: binary.LittleEndian.Uint16(p)}
		numS, numV := int(p[2]), int(p[3])
		p = p[4:]

		if len(p) < numS*2+numV*4 {
			return nil, ErrShortMessage
		}
		e.Models = make([]mesh.ModelID, 0, numS+numV)
		for i := 0; i < numS; i++ {
			e.Models = append(e.Models, mesh.SIGModel(binary.LittleEndian.Uint16(p)))
			p = p[2:]
		}
		for i := 0; i < numV; i++ {
			e.Models = append(e.Models, mesh.VendorModel(binary.LittleEndian.Uint16(p), binary.LittleEndian.Uint16(p[2:])))
			p = p[4:]
		}
		m.Elements = append(m.Elements, e)
	}
	return m, nil
}

type ModelAppBind struct {
	ElementAddress mesh.Address
	AppKeyIndex    uint16
	Model          mesh.ModelID
}

func (ModelAppBind) Opcode() Opcode { return OpModelAppBind }

func (m ModelAppBind) Marshal() ([]byte, error) {
	return marshalModelApp(m.ElementAddress, m.AppKeyIndex, m.Model), nil
}

func decodeModelAppBind(p []byte) (Message, error) {
	if len(p) < 4 {
		return nil, ErrShortMessage
	}
	md, err := unmarshalModel(p[4:])
	if err != nil {
		return nil, err
	}
	return ModelAppBind{
		ElementAddress: getAddress(p),
		AppKeyIndex:    binary.LittleEndian.Uint16(p[2:]) & 0x0FFF,
		Model:          md,
	}, nil
}

type ModelAppStatus struct {
	Status         Status
	ElementAddress mesh.Address
	AppKeyIndex    uint16
	Model          mesh.ModelID
}

func (ModelAppStatus) Opcode() Opcode        { return OpModelAppStatus }
func (m ModelAppStatus) StatusCode() Status { return m.Status }

func (m ModelAppStatus) Marshal() ([]byte, error) {
	return append([]byte{byte(m.Status)}, marshalModelApp(m.ElementAddress, m.AppKeyIndex, m.Model)...), nil
}

func decodeModelAppStatus(p []byte) (Message, error) {
	if len(p) < 1 {
		return nil, ErrShortMessage
	}
	b, err := decodeModelAppBind(p[1:])
	if err != nil {
		return nil, err
	}
	bind := b.(ModelAppBind)
	return ModelAppStatus{
		Status:         Status(p[0]),
		ElementAddress: bind.ElementAddress,
		AppKeyIndex:    bind.AppKeyIndex,
		Model:          bind.Model,
	}, nil
}

func marshalModelApp(elem mesh.Address, appKeyIndex uint16, md mesh.ModelID) []byte {
	b := make([]byte, 4)
	putAddress(b, elem)
	binary.LittleEndian.PutUint16(b[2:], appKeyIndex&0x0FFF)
	return append(b, marshalModel(md)...)
}

// Publication holds the publish parameters of a model.
type Publication struct {
	ElementAddress mesh.Address
	PublishAddress mesh.Address
	AppKeyIndex    uint16
	CredentialFlag bool
	TTL            byte
	Period         byte

	// RetransmitCount is 3 bits, RetransmitIntervalSteps 5 bits.
	RetransmitCount         byte
	RetransmitIntervalSteps byte

	Model mesh.ModelID
}

func (p Publication) marshal() []byte {
	b := make([]byte, 9)
	putAddress(b, p.ElementAddress)
	putAddress(b[2:], p.PublishAddress)
	v := p.AppKeyIndex & 0x0FFF
	if p.CredentialFlag {
		v |= 1 << 12
	}
	binary.LittleEndian.PutUint16(b[4:], v)
	b[6] = p.TTL
	b[7] = p.Period
	b[8] = p.RetransmitCount&0x07 | p.RetransmitIntervalSteps<<3
	return append(b, marshalModel(p.Model)...)
}

func unmarshalPublication(b []byte) (Publication, error) {
	if len(b) < 9 {
		return Publication{}, ErrShortMessage
	}
	md, err := unmarshalModel(b[9:])
	if err != nil {
		return Publication{}, err
	}
	v := binary.LittleEndian.Uint16(b[4:])
	return Publication{
		ElementAddress:          getAddress(b),
		PublishAddress:          getAddress(b[2:]),
		AppKeyIndex:             v & 0x0FFF,
		CredentialFlag:          v&(1<<12) != 0,
		TTL:                     b[6],
		Period:                  b[7],
		RetransmitCount:         b[8] & 0x07,
		RetransmitIntervalSteps: b[8] >> 3,
		Model:                   md,
	}, nil
}

type ModelPublicationSet struct {
	Publication
}

func (ModelPublicationSet) Opcode() Opcode { return OpModelPublicationSet }

func (m ModelPublicationSet) Marshal() ([]byte, error) {
	return m.Publication.marshal(), nil
}

func decodeModelPublicationSet(p []byte) (Message, error) {
	pub, err := unmarshalPublication(p)
	if err != nil {
		return nil, err
	}
	return ModelPublicationSet{pub}, nil
}

type ModelPublicationStatus struct {
	Status Status
	Publication
}

func (ModelPublicationStatus) Opcode() Opcode        { return OpModelPublicationStatus }
func (m ModelPublicationStatus) StatusCode() Status { return m.Status }

func (m ModelPublicationStatus) Marshal() ([]byte, error) {
	return append([]byte{byte(m.Status)}, m.Publication.marshal()...), nil
}

func decodeModelPublicationStatus(p []byte) (Message, error) {
	if len(p) < 1 {
		return nil, ErrShortMessage
	}
	pub, err := unmarshalPublication(p[1:])
	if err != nil {
		return nil, err
	}
	return ModelPublicationStatus{Status: Status(p[0]), Publication: pub}, nil
}

// Subscription names a subscription list entry of a model.
type Subscription struct {
	ElementAddress mesh.Address
	Address        mesh.Address
	Model          mesh.ModelID
}

func (s Subscription) marshal() []byte {
	b := make([]byte, 4)
	putAddress(b, s.ElementAddress)
	putAddress(b[2:], s.Address)
	return append(b, marshalModel(s.Model)...)
}

func unmarshalSubscription(b []byte) (Subscription, error) {
	if len(b) < 4 {
		return Subscription{}, ErrShortMessage
	}
	md, err := unmarshalModel(b[4:])
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{ElementAddress: getAddress(b), Address: getAddress(b[2:]), Model: md}, nil
}

type ModelSubscriptionAdd struct {
	Subscription
}

func (ModelSubscriptionAdd) Opcode() Opcode { return OpModelSubscriptionAdd }

func (m ModelSubscriptionAdd) Marshal() ([]byte, error) {
	return m.Subscription.marshal(), nil
}

func decodeModelSubscriptionAdd(p []byte) (Message, error) {
	s, err := unmarshalSubscription(p)
	if err != nil {
		return nil, err
	}
	return ModelSubscriptionAdd{s}, nil
}

type ModelSubscriptionDelete struct {
	Subscription
}

func (ModelSubscriptionDelete) Opcode() Opcode { return OpModelSubscriptionDelete }

func (m ModelSubscriptionDelete) Marshal() ([]byte, error) {
	return m.Subscription.marshal(), nil
}

func decodeModelSubscriptionDelete(p []byte) (Message, error) {
	s, err := unmarshalSubscription(p)
	if err != nil {
		return nil, err
	}
	return ModelSubscriptionDelete{s}, nil
}

type ModelSubscriptionStatus struct {
	Status Status
	Subscription
}

func (ModelSubscriptionStatus) Opcode() Opcode        { return OpModelSubscriptionStatus }
func (m ModelSubscriptionStatus) StatusCode() Status { return m.Status }

func (m ModelSubscriptionStatus) Marshal() ([]byte, error) {
	return append([]byte{byte(m.Status)}, m.Subscription.marshal()...), nil
}

func decodeModelSubscriptionStatus(p []byte) (Message, error) {
	if len(p) < 1 {
		return nil, ErrShortMessage
	}
	s, err := unmarshalSubscription(p[1:])
	if err != nil {
		return nil, err
	}
	return ModelSubscriptionStatus{Status: Status(p[0]), Subscription: s}, nil
}

type DefaultTTLGet struct{}

func (DefaultTTLGet) Opcode() Opcode           { return OpDefaultTTLGet }
func (DefaultTTLGet) Marshal() ([]byte, error) { return nil, nil }

func decodeDefaultTTLGet(p []byte) (Message, error) {
	if len(p) != 0 {
		return nil, errors.New("unexpected parameters")
	}
	return DefaultTTLGet{}, nil
}

type DefaultTTLSet struct {
	TTL byte
}

func (DefaultTTLSet) Opcode() Opcode { return OpDefaultTTLSet }

// Marshal rejects the prohibited values 0x01 and 0x80-0xFF.
func (m DefaultTTLSet) Marshal() ([]byte, error) {
	if m.TTL == 0x01 || m.TTL > 0x7F {
		return nil, errors.Errorf("prohibited ttl 0x%02x", m.TTL)
	}
	return []byte{m.TTL}, nil
}

func decodeDefaultTTLSet(p []byte) (Message, error) {
	if len(p) != 1 {
		return nil, ErrShortMessage
	}
	return DefaultTTLSet{TTL: p[0]}, nil
}

type DefaultTTLStatus struct {
	TTL byte
}

func (DefaultTTLStatus) Opcode() Opcode { return OpDefaultTTLStatus }

func (m DefaultTTLStatus) Marshal() ([]byte, error) {
	return []byte{m.TTL}, nil
}

func decodeDefaultTTLStatus(p []byte) (Message, error) {
	if len(p) != 1 {
		return nil, ErrShortMessage
	}
	return DefaultTTLStatus{TTL: p[0]}, nil
}

type NodeReset struct{}

func (NodeReset) Opcode() Opcode           { return OpNodeReset }
func (NodeReset) Marshal() ([]byte, error) { return nil, nil }

func decodeNodeReset(p []byte) (Message, error) {
	if len(p) != 0 {
		return nil, errors.New("unexpected parameters")
	}
	return NodeReset{}, nil
}

type NodeResetStatus struct{}

func (NodeResetStatus) Opcode() Opcode           { return OpNodeResetStatus }
func (NodeResetStatus) Marshal() ([]byte, error) { return nil, nil }

func decodeNodeResetStatus(p []byte) (Message, error) {
	if len(p) != 0 {
		return nil, errors.New("unexpected parameters")
	}
	return NodeResetStatus{}, nil
}
