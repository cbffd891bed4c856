package engine

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/pkg/crypto"
)

type OrderType uint8

const (
	OrderSell OrderType = iota
	OrderBuy
	OrderKillOrFill
)

// orderStride is the fixed wire size of one order record:
// sellAmount(32) buyAmount(32) executedAmount(32) sellToken(20)
// buyToken(20) tip(32) validTo(4) nonce(4) v(1) r(32) s(32).
const orderStride = 241

// Order is one trader's signed intent. Owner is never transmitted: it
// is always the address recovered from the signature over the order's
// digest, so a forged owner field is impossible by construction.
type Order struct {
	SellAmount     *big.Int
	BuyAmount      *big.Int
	ExecutedAmount *big.Int
	SellToken      common.Address
	BuyToken       common.Address
	Tip            *big.Int
	ValidTo        uint32
	Nonce          uint32
	Type           OrderType

	Owner common.Address // recovered, not decoded

	V byte
	R [32]byte
	S [32]byte
}

// packForDigest serializes the signed portion of the order. The
// executed amount is excluded: the operator chooses it per batch and it
// is bounded by the signed limits instead.
func (o *Order) packForDigest() []byte {
	buf := make([]byte, 0, 32+32+20+20+32+4+4+1)
	buf = appendUint256(buf, o.SellAmount)
	buf = appendUint256(buf, o.BuyAmount)
	buf = append(buf, o.SellToken.Bytes()...)
	buf = append(buf, o.BuyToken.Bytes()...)
	buf = appendUint256(buf, o.Tip)
	buf = binary.BigEndian.AppendUint32(buf, o.ValidTo)
	buf = binary.BigEndian.AppendUint32(buf, o.Nonce)
	// Non-default fill types carry a discriminant so a signature over a
	// plain sell order can never be replayed as kill-or-fill.
	if o.Type != OrderSell {
		buf = append(buf, byte(o.Type))
	}
	return buf
}

// Digest returns the domain-separated hash the trader signs.
func (o *Order) Digest(domain *crypto.Domain) common.Hash {
	return domain.Digest(o.packForDigest())
}

// Sign fills the order's signature fields and owner using the signer's key.
func (o *Order) Sign(domain *crypto.Domain, signer *crypto.Signer) error {
	sig, err := signer.Sign(o.Digest(domain).Bytes())
	if err != nil {
		return err
	}
	copy(o.R[:], sig[:32])
	copy(o.S[:], sig[32:64])
	o.V = sig[64] + 27
	o.Owner = signer.Address()
	return nil
}

// recoverOwner verifies the signature and returns the signing address.
func (o *Order) recoverOwner(domain *crypto.Domain) (common.Address, error) {
	sig := make([]byte, 65)
	copy(sig[:32], o.R[:])
	copy(sig[32:64], o.S[:])
	v := o.V
	if v >= 27 {
		v -= 27
	}
	sig[64] = v

	owner, err := crypto.RecoverAddress(o.Digest(domain).Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if owner == (common.Address{}) {
		return common.Address{}, ErrInvalidSignature
	}
	return owner, nil
}

// Encode serializes the order into its fixed 241-byte wire record.
func (o *Order) Encode() []byte {
	buf := make([]byte, 0, orderStride)
	buf = appendUint256(buf, o.SellAmount)
	buf = appendUint256(buf, o.BuyAmount)
	buf = appendUint256(buf, o.ExecutedAmount)
	buf = append(buf, o.SellToken.Bytes()...)
	buf = append(buf, o.BuyToken.Bytes()...)
	buf = appendUint256(buf, o.Tip)
	buf = binary.BigEndian.AppendUint32(buf, o.ValidTo)
	buf = binary.BigEndian.AppendUint32(buf, o.Nonce)
	buf = append(buf, o.V)
	buf = append(buf, o.R[:]...)
	buf = append(buf, o.S[:]...)
	return buf
}

// DecodeOrders parses fixed-stride order records and recovers each
// order's owner from its signature. types carries the fill type per
// record (nil means all plain sell orders); the wire record itself does
// not encode the type, so a mismatched claim changes the digest and the
// recovered owner, and the batch fails at the custody pull.
func DecodeOrders(data []byte, types []OrderType, domain *crypto.Domain) ([]Order, error) {
	if len(data)%orderStride != 0 {
		return nil, fmt.Errorf("%w: order stream length %d is not a multiple of %d",
			ErrMalformedInput, len(data), orderStride)
	}
	n := len(data) / orderStride
	if types != nil && len(types) != n {
		return nil, fmt.Errorf("%w: %d order types for %d orders", ErrMalformedInput, len(types), n)
	}

	r := newReader(data)
	orders := make([]Order, n)
	for i := range orders {
		o := &orders[i]
		var err error
		if o.SellAmount, err = r.uint256(); err != nil {
			return nil, err
		}
		if o.BuyAmount, err = r.uint256(); err != nil {
			return nil, err
		}
		if o.ExecutedAmount, err = r.uint256(); err != nil {
			return nil, err
		}
		if o.SellToken, err = r.address(); err != nil {
			return nil, err
		}
		if o.BuyToken, err = r.address(); err != nil {
			return nil, err
		}
		if o.Tip, err = r.uint256(); err != nil {
			return nil, err
		}
		if o.ValidTo, err = r.uint32be(); err != nil {
			return nil, err
		}
		if o.Nonce, err = r.uint32be(); err != nil {
			return nil, err
		}
		if o.V, err = r.byte(); err != nil {
			return nil, err
		}
		rb, err := r.take(32)
		if err != nil {
			return nil, err
		}
		copy(o.R[:], rb)
		sb, err := r.take(32)
		if err != nil {
			return nil, err
		}
		copy(o.S[:], sb)

		if types != nil {
			o.Type = types[i]
		}
		if o.Owner, err = o.recoverOwner(domain); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
	}
	return orders, nil
}

func appendUint256(buf []byte, v *big.Int) []byte {
	var word [32]byte
	if v != nil {
		v.FillBytes(word[:])
	}
	return append(buf, word[:]...)
}
