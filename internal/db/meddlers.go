package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite

	meddler.Register("hash", HashMeddler{})
	meddler.Register("address", AddressMeddler{})
	meddler.Register("bigint", BigIntMeddler{})
}

// HashMeddler stores common.Hash and *common.Hash as hex text. A nil pointer is NULL.
type HashMeddler struct{}

func (h HashMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (h HashMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := nullString(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case **common.Hash:
		*ptr = nil
		if ns.Valid {
			hash := common.HexToHash(ns.String)
			*ptr = &hash
		}
	case *common.Hash:
		*ptr = common.Hash{}
		if ns.Valid {
			*ptr = common.HexToHash(ns.String)
		}
	default:
		return fmt.Errorf("expected *common.Hash or **common.Hash, got %T", fieldAddr)
	}
	return nil
}

func (h HashMeddler) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Hash:
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("expected common.Hash or *common.Hash, got %T", field)
	}
}

// AddressMeddler stores common.Address as lower-case hex text, so that equality
// lookups do not depend on checksum casing.
type AddressMeddler struct{}

func (a AddressMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (a AddressMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := nullString(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case **common.Address:
		*ptr = nil
		if ns.Valid {
			addr := common.HexToAddress(ns.String)
			*ptr = &addr
		}
	case *common.Address:
		*ptr = common.Address{}
		if ns.Valid {
			*ptr = common.HexToAddress(ns.String)
		}
	default:
		return fmt.Errorf("expected *common.Address or **common.Address, got %T", fieldAddr)
	}
	return nil
}

func (a AddressMeddler) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case *common.Address:
		if v == nil {
			return nil, nil
		}
		return AddressString(*v), nil
	case common.Address:
		return AddressString(v), nil
	default:
		return nil, fmt.Errorf("expected common.Address or *common.Address, got %T", field)
	}
}

// AddressString is the stored form of an address.
func AddressString(addr common.Address) string {
	return "0x" + common.Bytes2Hex(addr.Bytes())
}

// BigIntMeddler stores *big.Int as decimal text, for values that may exceed 64 bits.
type BigIntMeddler struct{}

func (b BigIntMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (b BigIntMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := nullString(scanTarget)
	if err != nil {
		return err
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	*ptr = nil
	if !ns.Valid {
		return nil
	}

	value, ok := new(big.Int).SetString(ns.String, 10)
	if !ok {
		return fmt.Errorf("invalid decimal integer %q", ns.String)
	}
	*ptr = value
	return nil
}

func (b BigIntMeddler) PreWrite(field any) (saveValue any, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

func nullString(scanTarget any) (*sql.NullString, error) {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return nil, fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}
	return ns, nil
}
