// Package store keeps the security context in a JSON file. Keys are written
// as hex strings and addresses as four hex digits.
package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
)

var ErrNotFound = errors.New("no stored network")

type fileStore struct {
	filename string
	lock     sync.RWMutex
}

func New(filename string) mesh.StateStore {
	fs := fileStore{
		filename: filename,
	}

	return &fs
}

func (fs *fileStore) Save(cfg mesh.NetworkConfig, replace bool) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	existing, err := fs.loadExisting()
	if err != nil {
		return err
	}

	if existing != nil && existing.MeshUUID != cfg.MeshUUID.String() && !replace {
		return fmt.Errorf("%s already holds network %s", fs.filename, existing.MeshUUID)
	}

	return fs.store(encodeNetwork(cfg))
}

func (fs *fileStore) Load() (mesh.NetworkConfig, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	nf, err := fs.loadExisting()
	if err != nil {
		return mesh.NetworkConfig{}, err
	}
	if nf == nil {
		return mesh.NetworkConfig{}, errors.Wrap(ErrNotFound, fs.filename)
	}

	return decodeNetwork(nf)
}

func (fs *fileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	err := os.Remove(fs.filename)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (fs *fileStore) loadExisting() (*networkFile, error) {
	_, err := os.Stat(fs.filename)
	if os.IsNotExist(err) {
		return nil, nil
	}

	in, err := os.ReadFile(fs.filename)
	if err != nil {
		return nil, err
	}

	var nf networkFile
	err = jsoniter.Unmarshal(in, &nf)
	if err != nil {
		return nil, errors.Wrap(err, fs.filename)
	}

	return &nf, nil
}

func (fs *fileStore) store(nf networkFile) error {
	out, err := jsoniter.MarshalIndent(nf, "", "  ")
	if err != nil {
		return err
	}

	// holds the network and device keys
	return os.WriteFile(fs.filename, out, 0600)
}

type networkFile struct {
	MeshUUID       string       `json:"meshUUID"`
	NetKey         string       `json:"netKey"`
	NetKeyIndex    uint16       `json:"netKeyIndex"`
	IVIndex        uint32       `json:"ivIndex"`
	Flags          byte         `json:"flags"`
	AppKeys        []appKeyFile `json:"appKeys"`
	UnicastAddress string       `json:"unicastAddress"`
	NextUnicast    string       `json:"nextUnicast"`
	Sequence       uint32       `json:"sequence"`
	Nodes          []nodeFile   `json:"nodes"`
}

type appKeyFile struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type nodeFile struct {
	UnicastAddress string         `json:"unicastAddress"`
	Name           string         `json:"name"`
	DeviceKey      string         `json:"deviceKey"`
	CID            uint16         `json:"cid"`
	PID            uint16         `json:"pid"`
	VID            uint16         `json:"vid"`
	CRPL           uint16         `json:"crpl"`
	Features       uint16         `json:"features"`
	Elements       []mesh.Element `json:"elements,omitempty"`
	AppKeys        []uint16       `json:"appKeys,omitempty"`
}

func encodeNetwork(cfg mesh.NetworkConfig) networkFile {
	nf := networkFile{
		MeshUUID:       cfg.MeshUUID.String(),
		NetKey:         encodeKey(cfg.NetKey),
		NetKeyIndex:    cfg.KeyIndex,
		IVIndex:        cfg.IVIndex,
		Flags:          cfg.Flags,
		UnicastAddress: encodeAddress(cfg.UnicastAddress),
		NextUnicast:    encodeAddress(cfg.NextUnicast),
		Sequence:       cfg.Sequence,
		AppKeys:        []appKeyFile{},
		Nodes:          []nodeFile{},
	}

	for _, ak := range cfg.AppKeys {
		nf.AppKeys = append(nf.AppKeys, appKeyFile{Name: ak.Name, Key: encodeKey(ak.Key)})
	}

	for _, n := range cfg.Nodes {
		nf.Nodes = append(nf.Nodes, nodeFile{
			UnicastAddress: encodeAddress(n.UnicastAddress),
			Name:           n.Name,
			DeviceKey:      encodeKey(n.DeviceKey),
			CID:            n.CompanyID,
			PID:            n.ProductID,
			VID:            n.VersionID,
			CRPL:           n.ReplayProtectionCount,
			Features:       n.Features,
			Elements:       n.Elements,
			AppKeys:        n.AppKeys,
		})
	}

	return nf
}

func decodeNetwork(nf *networkFile) (mesh.NetworkConfig, error) {
	var cfg mesh.NetworkConfig
	var err error

	if cfg.MeshUUID, err = uuid.Parse(nf.MeshUUID); err != nil {
		return cfg, errors.Wrap(err, "meshUUID")
	}
	if cfg.NetKey, err = decodeKey(nf.NetKey); err != nil {
		return cfg, errors.Wrap(err, "netKey")
	}
	if cfg.UnicastAddress, err = mesh.ParseAddress(nf.UnicastAddress); err != nil {
		return cfg, errors.Wrap(err, "unicastAddress")
	}
	if nf.NextUnicast != "" {
		if cfg.NextUnicast, err = mesh.ParseAddress(nf.NextUnicast); err != nil {
			return cfg, errors.Wrap(err, "nextUnicast")
		}
	}
	cfg.KeyIndex = nf.NetKeyIndex
	cfg.IVIndex = nf.IVIndex
	cfg.Flags = nf.Flags
	cfg.Sequence = nf.Sequence

	for i, ak := range nf.AppKeys {
		k, err := decodeKey(ak.Key)
		if err != nil {
			return cfg, errors.Wrapf(err, "appKeys[%d]", i)
		}
		cfg.AppKeys = append(cfg.AppKeys, mesh.AppKey{Name: ak.Name, Key: k})
	}

	for i, n := range nf.Nodes {
		addr, err := mesh.ParseAddress(n.UnicastAddress)
		if err != nil {
			return cfg, errors.Wrapf(err, "nodes[%d]", i)
		}
		dk, err := decodeKey(n.DeviceKey)
		if err != nil {
			return cfg, errors.Wrapf(err, "nodes[%d] deviceKey", i)
		}
		cfg.Nodes = append(cfg.Nodes, mesh.ProvisionedNode{
			UnicastAddress:        addr,
			Name:                  n.Name,
			DeviceKey:             dk,
			CompanyID:             n.CID,
			ProductID:             n.PID,
			VersionID:             n.VID,
			ReplayProtectionCount: n.CRPL,
			Features:              n.Features,
			Elements:              n.Elements,
			AppKeys:               n.AppKeys,
		})
	}

	return cfg, nil
}

func encodeKey(k [16]byte) string {
	return hex.EncodeToString(k[:])
}

func decodeKey(s string) ([16]byte, error) {
	var k [16]byte
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("key length %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

func encodeAddress(a mesh.Address) string {
	return fmt.Sprintf("%04X", uint16(a))
}
