/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// wallet-cli is a thin command line front for the wallet core: it creates
// peer DID identities with PIN-wrapped keys and resolves DID documents. The
// DIDComm crypto engine is an external collaborator, so the protocol flows
// (mediation, forward, pickup) are not exposed here.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/trustbloc/edge-core/pkg/log"
	"github.com/urfave/cli/v2"

	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/store"
	"github.com/trustbloc/walletcore/pkg/vdr"
	"github.com/trustbloc/walletcore/pkg/vdr/peer"
)

var logger = log.New("walletcore/cli")

func main() {
	app := &cli.App{
		Name:  "wallet-cli",
		Usage: "identity tooling for the wallet core",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML config", Value: ""},
		},
		Commands: []*cli.Command{
			createIdentityCommand(),
			resolveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}

func createIdentityCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-identity",
		Usage: "generate a peer DID and wrap its keys under a PIN",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "method", Usage: "did:peer method (0-4)", Value: 2},
			&cli.StringFlag{Name: "pin", Usage: "wrapping PIN", Required: true},
			&cli.StringFlag{Name: "endpoint", Usage: "DIDCommMessaging endpoint URI"},
			&cli.StringFlag{Name: "routing-key", Usage: "mediator routing key for the service"},
		},
		Action: runCreateIdentity,
	}
}

func runCreateIdentity(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	method := peer.Method(c.Int("method"))

	var opts []peer.Option

	endpoint := c.String("endpoint")
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}

	if endpoint != "" {
		if routingKey := c.String("routing-key"); routingKey != "" {
			opts = append(opts, peer.WithMediatorRoutingKey(endpoint, routingKey))
		} else {
			opts = append(opts, peer.WithEndpoint(diddoc.Endpoint{
				URI:    endpoint,
				Accept: []string{"didcomm/v2"},
			}))
		}
	}

	ident, err := peer.Create(method, opts...)
	if err != nil {
		return err
	}

	record, err := store.WrapIdentity(pinlock.New(), c.String("pin"), ident)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"did":      ident.DID,
		"document": ident.Doc,
		"record":   record,
	})
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "resolve a DID to its normalized document",
		ArgsUsage: "<did>",
		Action:    runResolve,
	}
}

func runResolve(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one DID argument")
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	var opts []vdr.Opt
	if len(cfg.ProfileMarkers) > 0 {
		opts = append(opts, vdr.WithProfileMarkers(cfg.ProfileMarkers...))
	}

	doc, err := vdr.New(opts...).Resolve(c.Args().First())
	if err != nil {
		return err
	}

	if doc == nil {
		return fmt.Errorf("DID method not supported: %s", c.Args().First())
	}

	return printJSON(doc)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}
