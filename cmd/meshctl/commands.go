package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/configurator"
	"github.com/rigado/blemesh/identity"
	"github.com/rigado/blemesh/message"
	"github.com/rigado/blemesh/sar"
	"github.com/rigado/blemesh/store"
)

func cmdInit(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, err := mesh.GenerateState(cfg.Network.AppKeyName, cfg.ProvisionerAddress())
	if err != nil {
		return err
	}

	if err := store.New(cfg.StateFile).Save(s.Export(), c.Bool("force")); err != nil {
		return err
	}

	snap := s.Snapshot()
	fmt.Fprintf(c.App.Writer, "created network %s in %s\n", snap.MeshUUID, cfg.StateFile)
	return nil
}

func cmdShow(c *cli.Context) error {
	_, _, s, err := loadState(c)
	if err != nil {
		return err
	}

	snap := s.Snapshot()
	w := c.App.Writer
	fmt.Fprintf(w, "mesh:         %s\n", snap.MeshUUID)
	fmt.Fprintf(w, "net key:      index %d, NID 0x%02x, network id %x\n", snap.KeyIndex, snap.NID, snap.NetworkID)
	fmt.Fprintf(w, "iv index:     0x%08x (flags 0x%02x)\n", snap.IVIndex, snap.Flags)
	fmt.Fprintf(w, "provisioner:  %v, seq %d\n", snap.UnicastAddress, snap.Sequence)
	fmt.Fprintf(w, "next unicast: %v\n", snap.NextUnicast)
	for i, ak := range snap.AppKeys {
		fmt.Fprintf(w, "app key %d:    %s\n", i, ak.Name)
	}

	for _, n := range snap.Nodes {
		fmt.Fprintf(w, "node %v %q cid 0x%04x pid 0x%04x elements %d models %d app keys %v\n",
			n.UnicastAddress, n.Name, n.CompanyID, n.ProductID, len(n.Elements), n.ModelCount(), n.AppKeys)
	}
	return nil
}

func cmdAddNode(c *cli.Context) error {
	cfg, st, s, err := loadState(c)
	if err != nil {
		return err
	}

	addr, err := mesh.ParseAddress(c.String("address"))
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(c.String("device-key"))
	if err != nil || len(b) != 16 {
		return errors.New("device key must be 16 bytes of hex")
	}
	var dk [16]byte
	copy(dk[:], b)

	if err := s.AddProvisionedNode(addr, dk, c.String("name")); err != nil {
		return err
	}
	if err := st.Save(s.Export(), false); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "added %v to %s\n", addr, cfg.StateFile)
	return nil
}

func cmdPackKeyIndex(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("expected one key index", 2)
	}

	v, err := strconv.ParseUint(c.Args().First(), 0, 16)
	if err != nil || v > 0x0FFF {
		return errors.Wrap(mesh.ErrKeyIndex, c.Args().First())
	}

	b := mesh.PackKeyIndex(uint16(v))
	fmt.Fprintf(c.App.Writer, "%x\n", b[:])
	return nil
}

func cmdVerifyIdentity(c *cli.Context) error {
	_, _, s, err := loadState(c)
	if err != nil {
		return err
	}

	addr, err := mesh.ParseAddress(c.String("address"))
	if err != nil {
		return err
	}

	var payload []byte
	if raw := c.String("adv"); raw != "" {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return err
		}
		var ok bool
		if payload, ok = identity.FromAdvertisement(b); !ok {
			return errors.New("no proxy service data in advertisement")
		}
	} else if payload, err = hex.DecodeString(c.String("data")); err != nil {
		return err
	}

	ok, err := identity.Verify(s.Snapshot().NetKey, payload, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%v: %v\n", addr, ok)
	return nil
}

func cmdCompose(c *cli.Context) error {
	cfg, _, s, err := loadState(c)
	if err != nil {
		return err
	}

	node, err := mesh.ParseAddress(c.String("node"))
	if err != nil {
		return err
	}
	op, err := parseOperation(c, node)
	if err != nil {
		return err
	}

	mtu := cfg.Transport.MTU
	if c.Int("mtu") > 0 {
		mtu = c.Int("mtu")
	}
	t := &dryRunTransport{w: c.App.Writer, mtu: mtu}

	cf, err := configurator.New(t, node, s, op, cfg.EngineOptions()...)
	if err != nil {
		return err
	}
	defer cf.Close()

	fmt.Fprintf(c.App.Writer, "%s -> %v (mtu %d)\n", cf.Name(), node, mtu)
	return cf.Execute()
}

func parseOperation(c *cli.Context, node mesh.Address) (configurator.Operation, error) {
	element := node
	if e := c.String("element"); e != "" {
		var err error
		if element, err = mesh.ParseAddress(e); err != nil {
			return nil, err
		}
	}

	model := func() (mesh.ModelID, error) { return parseModel(c.String("model")) }
	idx := uint16(c.Int("app-key-index"))

	switch c.String("op") {
	case "add-app-key":
		return configurator.AddAppKey{AppKeyIndex: idx}, nil
	case "composition-get":
		return configurator.CompositionDataGet{}, nil
	case "bind":
		m, err := model()
		if err != nil {
			return nil, err
		}
		return configurator.ModelAppBind{ElementAddress: element, AppKeyIndex: idx, Model: m}, nil
	case "sub-add", "sub-delete":
		m, err := model()
		if err != nil {
			return nil, err
		}
		group, err := mesh.ParseAddress(c.String("group"))
		if err != nil {
			return nil, err
		}
		sub := message.Subscription{ElementAddress: element, Address: group, Model: m}
		if c.String("op") == "sub-add" {
			return configurator.ModelSubscriptionAdd{Subscription: sub}, nil
		}
		return configurator.ModelSubscriptionDelete{Subscription: sub}, nil
	case "ttl-get":
		return configurator.DefaultTTLGet{}, nil
	case "ttl-set":
		return configurator.DefaultTTLSet{TTL: uint8(c.Int("ttl"))}, nil
	case "reset":
		return configurator.NodeReset{}, nil
	}
	return nil, errors.Errorf("unknown operation %q", c.String("op"))
}

// parseModel accepts "1000" for SIG models and "0059:0001" for vendor models.
func parseModel(s string) (mesh.ModelID, error) {
	parts := strings.Split(s, ":")
	vals := make([]uint16, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimPrefix(p, "0x"), 16, 16)
		if err != nil {
			return mesh.ModelID{}, errors.Wrapf(err, "model %q", s)
		}
		vals[i] = uint16(v)
	}

	switch len(vals) {
	case 1:
		return mesh.SIGModel(vals[0]), nil
	case 2:
		return mesh.VendorModel(vals[0], vals[1]), nil
	}
	return mesh.ModelID{}, errors.Errorf("model %q", s)
}

func cmdSegment(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("expected one PDU", 2)
	}
	pdu, err := hex.DecodeString(c.Args().First())
	if err != nil {
		return err
	}

	segs, err := sar.Segment(pdu, c.Int("mtu"))
	if err != nil {
		return err
	}
	for _, s := range segs {
		fmt.Fprintf(c.App.Writer, "%-12v %x\n", sar.KindOf(s), s)
	}
	return nil
}
