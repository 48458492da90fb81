// Command xmssmt is a small CLI wrapper around the engine and its
// keystore, grown from the teacher's single-command xmssmt/main.go
// (which only listed algorithm names) into keygen/sign/verify/
// remaining subcommands.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/urfave/cli"

	"github.com/krontab/xmssmt"
	"github.com/krontab/xmssmt/keystore"
)

func cmdAlgs(c *cli.Context) error {
	for _, name := range xmssmt.ListNames() {
		fmt.Println(name)
	}
	return nil
}

func randombytes(buf []byte) int {
	if _, err := rand.Read(buf); err != nil {
		return 1
	}
	return 0
}

func cmdKeygen(c *cli.Context) error {
	name := c.Args().Get(0)
	keyPath := c.Args().Get(1)
	if name == "" || keyPath == "" {
		return cli.NewExitError("usage: xmssmt keygen <algorithm> <key-path>", 1)
	}
	bdsK := uint32(c.Uint("bds-k"))

	p, err := xmssmt.ParamsFromName2(name)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	ctx, err := xmssmt.NewContext(*p)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	ks, pk, err := keystore.Create(keyPath, ctx, bdsK, randombytes)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer ks.Close()

	pkBytes, merr := pk.MarshalBinary()
	if merr != nil {
		return cli.NewExitError(merr.Error(), 1)
	}
	pkPath := keyPath + ".pub"
	if werr := ioutil.WriteFile(pkPath, pkBytes, 0644); werr != nil {
		return cli.NewExitError(werr.Error(), 1)
	}
	fmt.Printf("wrote %s and %s\n", keyPath, pkPath)
	return nil
}

func cmdSign(c *cli.Context) error {
	keyPath := c.Args().Get(0)
	if keyPath == "" {
		return cli.NewExitError("usage: xmssmt sign <key-path> < message", 1)
	}
	msg, rerr := ioutil.ReadAll(os.Stdin)
	if rerr != nil {
		return cli.NewExitError(rerr.Error(), 1)
	}

	ks, err := keystore.Open(keyPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer ks.Close()

	sig, err := ks.Sign(msg)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(hex.EncodeToString(sig))
	return nil
}

func cmdVerify(c *cli.Context) error {
	pkPath := c.Args().Get(0)
	sigHex := c.Args().Get(1)
	if pkPath == "" || sigHex == "" {
		return cli.NewExitError("usage: xmssmt verify <pubkey-path> <hex-sig> < message", 1)
	}
	msg, rerr := ioutil.ReadAll(os.Stdin)
	if rerr != nil {
		return cli.NewExitError(rerr.Error(), 1)
	}
	sig, herr := hex.DecodeString(sigHex)
	if herr != nil {
		return cli.NewExitError(herr.Error(), 1)
	}
	pkBytes, rerr := ioutil.ReadFile(pkPath)
	if rerr != nil {
		return cli.NewExitError(rerr.Error(), 1)
	}
	pk, err := xmssmt.UnmarshalPublicKey(pkBytes)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := xmssmt.Verify(pk, msg, sig); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println("OK")
	return nil
}

func cmdRemaining(c *cli.Context) error {
	keyPath := c.Args().Get(0)
	if keyPath == "" {
		return cli.NewExitError("usage: xmssmt remaining <key-path>", 1)
	}
	ks, err := keystore.Open(keyPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer ks.Close()
	fmt.Println(ks.PrivateKey().RemainingSigs())
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "xmssmt"
	app.Usage = "XMSS[MT] stateful hash-based signatures (RFC 8391)"

	app.Commands = []cli.Command{
		{
			Name:   "algs",
			Usage:  "List XMSS[MT] instances",
			Action: cmdAlgs,
		},
		{
			Name:      "keygen",
			Usage:     "Generate a new key pair",
			ArgsUsage: "<algorithm> <key-path>",
			Flags: []cli.Flag{
				cli.UintFlag{Name: "bds-k", Value: 0, Usage: "BDS retain parameter"},
			},
			Action: cmdKeygen,
		},
		{
			Name:      "sign",
			Usage:     "Sign stdin with a keystore-backed key",
			ArgsUsage: "<key-path>",
			Action:    cmdSign,
		},
		{
			Name:      "verify",
			Usage:     "Verify a hex-encoded signature of stdin",
			ArgsUsage: "<pubkey-path> <hex-sig>",
			Action:    cmdVerify,
		},
		{
			Name:      "remaining",
			Usage:     "Print the number of signatures a key can still produce",
			ArgsUsage: "<key-path>",
			Action:    cmdRemaining,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
