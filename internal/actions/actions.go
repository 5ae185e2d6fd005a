package actions

import (
	"fmt"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	MagicSendMessage     = 0x0ec3c86d
	MagicReserveCurrency = 0x36e6b809
	MagicSetCode         = 0xad4de08e
)

// OutAction is one of SendMessage, ReserveCurrency, SetCode or Unknown.
type OutAction interface {
	isOutAction()
}

// action_send_msg#0ec3c86d mode:(## 8) out_msg:^(MessageRelaxed Any) = OutAction;
type SendMessage struct {
	Mode    uint8
	Message *tlb.Message
	// Raw is a message cell as it was emitted by contract
	Raw *cell.Cell
}

// action_reserve_currency#36e6b809 mode:(## 8) currency:CurrencyCollection = OutAction;
type ReserveCurrency struct {
	Mode     uint8
	Currency tlb.CurrencyCollection
}

// action_set_code#ad4de08e new_code:^Cell = OutAction;
type SetCode struct {
	NewCode *cell.Cell
}

// Unknown is an action which we cannot interpret, for example change library.
type Unknown struct {
	Magic uint32
}

func (SendMessage) isOutAction()     {}
func (ReserveCurrency) isOutAction() {}
func (SetCode) isOutAction()         {}
func (Unknown) isOutAction()         {}

// Parse decodes out actions list in order they were emitted by contract.
//
//	out_list_empty$_ = OutList 0;
//	out_list$_ {n:#} prev:^(OutList n) action:OutAction = OutList (n + 1);
func Parse(list *cell.Cell) ([]OutAction, error) {
	if list == nil {
		return []OutAction{}, nil
	}

	var res []OutAction
	node := list.BeginParse()
	for {
		prev, err := node.LoadRef()
		if err != nil {
			// empty list node, it has no refs
			break
		}

		act, err := parseAction(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse action %d from the end: %w", len(res), err)
		}
		res = append(res, act)
		node = prev
	}

	// list is built by prepending, so we walked it from the last action
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}

	if res == nil {
		res = []OutAction{}
	}
	return res, nil
}

func parseAction(s *cell.Slice) (OutAction, error) {
	magic, err := s.LoadUInt(32)
	if err != nil {
		return nil, fmt.Errorf("failed to load magic: %w", err)
	}

	switch magic {
	case MagicSendMessage:
		mode, err := s.LoadUInt(8)
		if err != nil {
			return nil, fmt.Errorf("failed to load send mode: %w", err)
		}

		raw, err := s.LoadRefCell()
		if err != nil {
			return nil, fmt.Errorf("failed to load message ref: %w", err)
		}

		var msg tlb.Message
		if err = tlb.LoadFromCell(&msg, raw.BeginParse()); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}

		return SendMessage{
			Mode:    uint8(mode),
			Message: &msg,
			Raw:     raw,
		}, nil
	case MagicReserveCurrency:
		mode, err := s.LoadUInt(8)
		if err != nil {
			return nil, fmt.Errorf("failed to load reserve mode: %w", err)
		}

		var cc tlb.CurrencyCollection
		if err = tlb.LoadFromCell(&cc, s); err != nil {
			return nil, fmt.Errorf("failed to parse currency collection: %w", err)
		}

		return ReserveCurrency{
			Mode:     uint8(mode),
			Currency: cc,
		}, nil
	case MagicSetCode:
		code, err := s.LoadRefCell()
		if err != nil {
			return nil, fmt.Errorf("failed to load new code: %w", err)
		}
		return SetCode{NewCode: code}, nil
	}
	return Unknown{Magic: uint32(magic)}, nil
}

// FindSetCode returns new code from the first set code action, nil if there is none.
func FindSetCode(list []OutAction) *cell.Cell {
	for _, a := range list {
		if sc, ok := a.(SetCode); ok {
			return sc.NewCode
		}
	}
	return nil
}
