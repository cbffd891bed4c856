package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain binds signatures to one specific deployment. Its separator is
// mixed into every order digest, so a signature produced for one
// chain/engine pair can never be replayed against another.
//
// A Domain is constructed exactly once at startup and never mutated.
type Domain struct {
	tag       string
	chainID   *big.Int
	contract  common.Address
	separator common.Hash
}

// NewDomain derives the domain separator:
// keccak256(tag || chainID(32) || engineAddress(20)).
func NewDomain(tag string, chainID *big.Int, contract common.Address) *Domain {
	var chainBuf [32]byte
	chainID.FillBytes(chainBuf[:])

	sep := crypto.Keccak256Hash([]byte(tag), chainBuf[:], contract.Bytes())
	return &Domain{
		tag:       tag,
		chainID:   new(big.Int).Set(chainID),
		contract:  contract,
		separator: sep,
	}
}

func (d *Domain) Tag() string              { return d.tag }
func (d *Domain) ChainID() *big.Int        { return new(big.Int).Set(d.chainID) }
func (d *Domain) Contract() common.Address { return d.contract }

// Separator returns the 32-byte domain separator.
func (d *Domain) Separator() common.Hash { return d.separator }

// Digest hashes the domain separator over a packed message:
// keccak256(separator || packed).
func (d *Domain) Digest(packed []byte) common.Hash {
	return crypto.Keccak256Hash(d.separator.Bytes(), packed)
}
