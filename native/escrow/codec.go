package escrow

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"offerchain/crypto"
)

// DiscriminatorLength is the size of the type tag that prefixes account and
// instruction data.
const DiscriminatorLength = 8

// Discriminator is an 8-byte type tag.
type Discriminator [DiscriminatorLength]byte

func newDiscriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// OfferAccountDiscriminator tags offer account data.
var OfferAccountDiscriminator = newDiscriminator("account:Offer")

var (
	errOfferDataShort        = errors.New("escrow codec: account data shorter than discriminator")
	errOfferDataDiscriminant = errors.New("escrow codec: account data is not an offer")
	errOfferTrailingBytes    = errors.New("escrow codec: trailing bytes after offer")
)

// MarshalWithEncoder writes the offer fields in declaration order.
func (o Offer) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(o.Creator[:], false); err != nil {
		return err
	}
	if err := enc.WriteBool(o.Receiver != nil); err != nil {
		return err
	}
	if o.Receiver != nil {
		if err := enc.WriteBytes(o.Receiver[:], false); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(o.Amount, binary.LittleEndian); err != nil {
		return err
	}
	for _, flag := range []bool{o.Accepted, o.Completed, o.Withdrawn} {
		if err := enc.WriteBool(flag); err != nil {
			return err
		}
	}
	if err := writeString(enc, o.ID); err != nil {
		return err
	}
	if err := enc.WriteUint8(o.Bump); err != nil {
		return err
	}
	for _, s := range []string{o.Deliverables, o.Category, o.Description} {
		if err := writeString(enc, s); err != nil {
			return err
		}
	}
	return enc.WriteBool(o.Cancelled)
}

// UnmarshalWithDecoder reads the fields written by MarshalWithEncoder.
func (o *Offer) UnmarshalWithDecoder(dec *bin.Decoder) error {
	creator, err := readAddress(dec)
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	o.Creator = creator

	hasReceiver, err := dec.ReadBool()
	if err != nil {
		return fmt.Errorf("receiver tag: %w", err)
	}
	o.Receiver = nil
	if hasReceiver {
		receiver, err := readAddress(dec)
		if err != nil {
			return fmt.Errorf("receiver: %w", err)
		}
		o.Receiver = &receiver
	}

	if o.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	for _, flag := range []*bool{&o.Accepted, &o.Completed, &o.Withdrawn} {
		if *flag, err = dec.ReadBool(); err != nil {
			return fmt.Errorf("flags: %w", err)
		}
	}
	if o.ID, err = readString(dec); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if o.Bump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("bump: %w", err)
	}
	for _, field := range []*string{&o.Deliverables, &o.Category, &o.Description} {
		if *field, err = readString(dec); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	if o.Cancelled, err = dec.ReadBool(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readAddress(dec *bin.Decoder) (crypto.Address, error) {
	raw, err := dec.ReadNBytes(crypto.AddressLength)
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.NewAddress(raw)
}

// EncodeOffer serialises the offer as account data: discriminator followed by
// the Borsh body.
func EncodeOffer(o *Offer) ([]byte, error) {
	if o == nil {
		return nil, errors.New("escrow codec: nil offer")
	}
	buf := new(bytes.Buffer)
	buf.Write(OfferAccountDiscriminator[:])
	if err := o.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("escrow codec: encode offer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeOffer parses account data written by EncodeOffer.
func DecodeOffer(data []byte) (*Offer, error) {
	if len(data) < DiscriminatorLength {
		return nil, errOfferDataShort
	}
	if !bytes.Equal(data[:DiscriminatorLength], OfferAccountDiscriminator[:]) {
		return nil, errOfferDataDiscriminant
	}
	dec := bin.NewBorshDecoder(data[DiscriminatorLength:])
	offer := new(Offer)
	if err := offer.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("escrow codec: decode offer: %w", err)
	}
	if dec.Remaining() != 0 {
		return nil, errOfferTrailingBytes
	}
	return offer, nil
}
