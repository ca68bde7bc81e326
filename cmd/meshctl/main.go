package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/config"
	"github.com/rigado/blemesh/store"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(w io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "meshctl"
	app.Usage = "manage a Bluetooth mesh network through a GATT proxy"
	app.Writer = w
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "config file (yaml)", EnvVar: "MESHCTL_CONFIG"},
		cli.StringFlag{Name: "state, s", Usage: "state file, overrides the config"},
		cli.BoolFlag{Name: "verbose, v", Usage: "log everything, overrides the configured level"},
	}

	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "create a new network with random keys",
			Action: cmdInit,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "force", Usage: "replace an existing network"},
			},
		},
		{
			Name:   "show",
			Usage:  "print the network and its nodes",
			Action: cmdShow,
		},
		{
			Name:   "add-node",
			Usage:  "record a node provisioned elsewhere",
			Action: cmdAddNode,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Usage: "unicast address"},
				cli.StringFlag{Name: "device-key, k", Usage: "device key (hex)"},
				cli.StringFlag{Name: "name, n", Usage: "node name"},
			},
		},
		{
			Name:      "pack-key-index",
			Usage:     "print the packed form of a 12-bit key index",
			ArgsUsage: "<index>",
			Action:    cmdPackKeyIndex,
		},
		{
			Name:   "verify-identity",
			Usage:  "check node identity service data against a unicast address",
			Action: cmdVerifyIdentity,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Usage: "candidate unicast address"},
				cli.StringFlag{Name: "data, d", Usage: "proxy service data (hex)"},
				cli.StringFlag{Name: "adv", Usage: "raw advertising data (hex), instead of --data"},
			},
		},
		{
			Name:   "compose",
			Usage:  "print the writes a configuration operation would produce",
			Action: cmdCompose,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "node, n", Usage: "node unicast address"},
				cli.StringFlag{Name: "op, o", Usage: "add-app-key | composition-get | bind | sub-add | sub-delete | ttl-get | ttl-set | reset"},
				cli.IntFlag{Name: "app-key-index", Usage: "app key index"},
				cli.StringFlag{Name: "element", Usage: "element address, defaults to the node address"},
				cli.StringFlag{Name: "model", Usage: "model id, xxxx or cccc:xxxx for vendor models"},
				cli.StringFlag{Name: "group", Usage: "subscription address"},
				cli.IntFlag{Name: "ttl", Value: mesh.DefaultTTL, Usage: "default TTL for ttl-set"},
				cli.IntFlag{Name: "mtu", Usage: "override the transport mtu"},
			},
		},
		{
			Name:      "segment",
			Usage:     "split a proxy PDU into writes",
			ArgsUsage: "<pdu hex>",
			Action:    cmdSegment,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "mtu", Value: 20},
			},
		},
	}

	return app
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if s := c.GlobalString("state"); s != "" {
		cfg.StateFile = s
	}
	if err := mesh.ConfigureLogger(cfg.LogOptions()); err != nil {
		return nil, err
	}
	if c.GlobalBool("verbose") {
		mesh.SetLogLevelMax()
	}
	return cfg, nil
}

func loadState(c *cli.Context) (*config.Config, mesh.StateStore, *mesh.State, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	st := store.New(cfg.StateFile)
	nc, err := st.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	s, err := mesh.NewState(nc)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, s, nil
}
