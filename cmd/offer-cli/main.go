package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"offerchain/cmd/internal/passphrase"
	"offerchain/sdk"
)

const (
	envRPCURL    = "OFFER_RPC_URL"
	envRPCToken  = "OFFER_RPC_TOKEN"
	envProgramID = "OFFER_PROGRAM_ID"
)

type cli struct {
	endpoint   string
	token      string
	program    string
	passphrase func() (string, error)
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	c := &cli{
		endpoint:   defaultRPCEndpoint(),
		token:      strings.TrimSpace(os.Getenv(envRPCToken)),
		program:    strings.TrimSpace(os.Getenv(envProgramID)),
		passphrase: passphrase.NewSource(passphrase.EnvKeystorePass).Get,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	os.Exit(c.run(os.Args[1:]))
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(envRPCURL)); v != "" {
		return v
	}
	return "http://127.0.0.1:8899"
}

func (c *cli) client() *sdk.Client {
	return sdk.New(c.endpoint, sdk.WithBearerToken(c.token))
}

// applyGlobalFlags strips --rpc and --program from args.
func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var target *string
		var name string
		switch {
		case arg == "--rpc" || strings.HasPrefix(arg, "--rpc="):
			target, name = &c.endpoint, "--rpc"
		case arg == "--program" || strings.HasPrefix(arg, "--program="):
			target, name = &c.program, "--program"
		default:
			out = append(out, arg)
			continue
		}
		if value, ok := strings.CutPrefix(arg, name+"="); ok {
			*target = value
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %s", name)
		}
		*target = args[i+1]
		i++
	}
	return out, nil
}

func (c *cli) run(args []string) int {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return c.runKeygen(args[1:])
	case "address":
		return c.runAddress(args[1:])
	case "derive":
		return c.runDerive(args[1:])
	case "create":
		return c.runCreate(args[1:])
	case "accept", "approve", "withdraw", "cancel":
		return c.runTransition(args[0], args[1:])
	case "get":
		return c.runGet(args[1:])
	case "account":
		return c.runAccount(args[1:])
	case "events":
		return c.runEvents(args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(c.stdout, usage())
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  offer-cli [--rpc URL] [--program ID] <command> [flags]

Commands:
  keygen    Generate a key and write an encrypted keystore
  address   Print the address held in a keystore
  derive    Derive the offer address for a creator and offer id
  create    Create an offer and place the amount in custody
  accept    Accept an offer as its receiver
  approve   Approve completion as the offer creator
  withdraw  Withdraw the escrowed amount as the receiver
  cancel    Cancel an unaccepted offer and refund the creator
  get       Show an offer
  account   Show an account balance and nonce
  events    List indexed events for an offer
`)
}
