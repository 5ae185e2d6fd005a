package contract

import (
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

type InternalParams struct {
	// Src is zero address of basechain when not set
	Src       *address.Address
	Dst       *address.Address
	Amount    tlb.Coins
	Bounce    bool
	Bounced   bool
	CreatedAt uint32
	CreatedLT uint64
	// IHREnabled is inverted to keep ihr disabled by default
	IHREnabled bool
	IHRFee     tlb.Coins
	FwdFee     tlb.Coins
	StateInit  *tlb.StateInit
	Body       *cell.Cell
}

type ExternalInParams struct {
	Src       *address.Address
	Dst       *address.Address
	ImportFee tlb.Coins
	StateInit *tlb.StateInit
	Body      *cell.Cell
}

// Internal builds internal message with zero fees and times unless they are set.
func Internal(p InternalParams) *tlb.InternalMessage {
	src := p.Src
	if src == nil {
		src = address.NewAddress(0, 0, make([]byte, 32))
	}

	return &tlb.InternalMessage{
		IHRDisabled: !p.IHREnabled,
		Bounce:      p.Bounce,
		Bounced:     p.Bounced,
		SrcAddr:     src,
		DstAddr:     p.Dst,
		Amount:      coinsOrZero(p.Amount),
		IHRFee:      coinsOrZero(p.IHRFee),
		FwdFee:      coinsOrZero(p.FwdFee),
		CreatedLT:   p.CreatedLT,
		CreatedAt:   p.CreatedAt,
		StateInit:   p.StateInit,
		Body:        p.Body,
	}
}

func ExternalIn(p ExternalInParams) *tlb.ExternalMessage {
	return &tlb.ExternalMessage{
		SrcAddr:   p.Src,
		DstAddr:   p.Dst,
		ImportFee: coinsOrZero(p.ImportFee),
		StateInit: p.StateInit,
		Body:      p.Body,
	}
}

func coinsOrZero(c tlb.Coins) tlb.Coins {
	if c.Nano().Sign() == 0 {
		return tlb.MustFromTON("0")
	}
	return c
}
