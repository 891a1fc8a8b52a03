package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/native/escrow"
	"offerchain/sdk"
)

const commandTimeout = 30 * time.Second

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) fail(msg string) int {
	fmt.Fprintf(c.stderr, "Error: %s\n", msg)
	return 1
}

func (c *cli) failErr(err error) int {
	var rpcErr *sdk.Error
	if errors.As(err, &rpcErr) {
		if data, ok := rpcErr.OfferError(); ok {
			fmt.Fprintf(c.stderr, "Error: %s (%s, %s)\n", rpcErr.Message, data.Name, data.Kind)
			return 1
		}
		fmt.Fprintf(c.stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	return c.fail(err.Error())
}

func (c *cli) printJSON(v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return c.fail(err.Error())
	}
	fmt.Fprintln(c.stdout, string(data))
	return 0
}

func (c *cli) programID() (crypto.Address, error) {
	if strings.TrimSpace(c.program) == "" {
		return crypto.Address{}, fmt.Errorf("--program or %s is required", envProgramID)
	}
	return crypto.DecodeAddress(strings.TrimSpace(c.program))
}

func (c *cli) loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := c.passphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func (c *cli) runKeygen(args []string) int {
	fs := c.newFlagSet("keygen")
	out := fs.String("out", "wallet.keystore", "keystore output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := c.passphrase()
	if err != nil {
		return c.fail(err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return c.fail(err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return c.fail(err.Error())
	}
	fmt.Fprintf(c.stdout, "%s\n", key.PubKey().Address())
	return 0
}

func (c *cli) runAddress(args []string) int {
	fs := c.newFlagSet("address")
	keyPath := fs.String("key", "", "keystore path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail(err.Error())
	}
	fmt.Fprintf(c.stdout, "%s\n", key.PubKey().Address())
	return 0
}

func (c *cli) runDerive(args []string) int {
	fs := c.newFlagSet("derive")
	creator := fs.String("creator", "", "creator address")
	offerID := fs.String("id", "", "offer id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	program, err := c.programID()
	if err != nil {
		return c.fail(err.Error())
	}
	creatorAddr, err := crypto.DecodeAddress(*creator)
	if err != nil {
		return c.fail("--creator: " + err.Error())
	}
	addr, bump, err := escrow.DeriveOfferAddress(program, creatorAddr, *offerID)
	if err != nil {
		return c.fail(err.Error())
	}
	return c.printJSON(map[string]interface{}{"address": addr.String(), "bump": bump})
}

func (c *cli) runCreate(args []string) int {
	fs := c.newFlagSet("create")
	keyPath := fs.String("key", "", "creator keystore path")
	offerID := fs.String("id", "", "offer id (at most 32 bytes)")
	amountStr := fs.String("amount", "", "amount in lamports")
	deliverables := fs.String("deliverables", "", "deliverables (at most 50 characters)")
	category := fs.String("category", "", "category (at most 50 characters)")
	description := fs.String("description", "", "description (at most 240 characters)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	amount, err := strconv.ParseUint(strings.TrimSpace(*amountStr), 10, 64)
	if err != nil {
		return c.fail("--amount must be an integer number of lamports")
	}
	program, err := c.programID()
	if err != nil {
		return c.fail(err.Error())
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail(err.Error())
	}
	ix, addr, err := escrow.NewCreateOfferInstruction(program, key.PubKey().Address(), escrow.CreateOfferArgs{
		Amount:       amount,
		OfferID:      *offerID,
		Deliverables: *deliverables,
		Category:     *category,
		Description:  *description,
	})
	if err != nil {
		return c.fail(err.Error())
	}
	fmt.Fprintf(c.stderr, "offer address %s\n", addr)
	return c.submit(key, ix)
}

func (c *cli) runTransition(name string, args []string) int {
	fs := c.newFlagSet(name)
	keyPath := fs.String("key", "", "signer keystore path")
	offer := fs.String("offer", "", "offer address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	program, err := c.programID()
	if err != nil {
		return c.fail(err.Error())
	}
	offerAddr, err := crypto.DecodeAddress(strings.TrimSpace(*offer))
	if err != nil {
		return c.fail("--offer: " + err.Error())
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail(err.Error())
	}
	signer := key.PubKey().Address()

	var ix types.Instruction
	switch name {
	case "accept":
		ix = escrow.NewAcceptOfferInstruction(program, offerAddr, signer)
	case "approve":
		ix = escrow.NewApproveCompletionInstruction(program, offerAddr, signer)
	case "withdraw":
		ix = escrow.NewWithdrawOfferInstruction(program, offerAddr, signer)
	case "cancel":
		ix = escrow.NewCancelOfferInstruction(program, offerAddr, signer)
	default:
		return c.fail("unknown transition " + name)
	}
	return c.submit(key, ix)
}

func (c *cli) submit(key *crypto.PrivateKey, ix types.Instruction) int {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	receipt, err := c.client().SignAndSend(ctx, key, ix)
	if err != nil {
		return c.failErr(err)
	}
	code := c.printJSON(receipt)
	if receipt.Status != types.ReceiptStatusSuccess {
		return 1
	}
	return code
}

func (c *cli) runGet(args []string) int {
	fs := c.newFlagSet("get")
	offer := fs.String("offer", "", "offer address")
	creator := fs.String("creator", "", "creator address (with --id)")
	offerID := fs.String("id", "", "offer id (with --creator)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client := c.client()
	if strings.TrimSpace(*offer) != "" {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(*offer))
		if err != nil {
			return c.fail("--offer: " + err.Error())
		}
		res, err := client.GetOffer(ctx, addr)
		if err != nil {
			return c.failErr(err)
		}
		return c.printJSON(res)
	}
	creatorAddr, err := crypto.DecodeAddress(strings.TrimSpace(*creator))
	if err != nil {
		return c.fail("--offer or --creator and --id are required")
	}
	res, err := client.GetOfferByID(ctx, creatorAddr, *offerID)
	if err != nil {
		return c.failErr(err)
	}
	return c.printJSON(res)
}

func (c *cli) runAccount(args []string) int {
	fs := c.newFlagSet("account")
	address := fs.String("address", "", "account address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(*address))
	if err != nil {
		return c.fail("--address: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := c.client().GetAccount(ctx, addr)
	if err != nil {
		return c.failErr(err)
	}
	return c.printJSON(res)
}

func (c *cli) runEvents(args []string) int {
	fs := c.newFlagSet("events")
	offer := fs.String("offer", "", "offer address")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(*offer))
	if err != nil {
		return c.fail("--offer: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := c.client().ListEvents(ctx, addr, *limit)
	if err != nil {
		return c.failErr(err)
	}
	return c.printJSON(res)
}
