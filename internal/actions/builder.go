package actions

import (
	"fmt"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// BuildList serializes actions to out list, first action becomes the deepest node.
// Unknown actions are not serializable.
func BuildList(list ...OutAction) (*cell.Cell, error) {
	node := cell.BeginCell().EndCell()
	for i, a := range list {
		b := cell.BeginCell().MustStoreRef(node)
		if err := storeAction(b, a); err != nil {
			return nil, fmt.Errorf("failed to store action %d: %w", i, err)
		}
		node = b.EndCell()
	}
	return node, nil
}

func storeAction(b *cell.Builder, a OutAction) error {
	switch x := a.(type) {
	case SendMessage:
		if x.Raw == nil {
			return fmt.Errorf("send message action has no raw message")
		}
		b.MustStoreUInt(MagicSendMessage, 32).
			MustStoreUInt(uint64(x.Mode), 8).
			MustStoreRef(x.Raw)
	case ReserveCurrency:
		b.MustStoreUInt(MagicReserveCurrency, 32).
			MustStoreUInt(uint64(x.Mode), 8)
		if err := b.StoreBigCoins(x.Currency.Coins.Nano()); err != nil {
			return err
		}
		var extra *cell.Cell
		if x.Currency.ExtraCurrencies != nil {
			extra = x.Currency.ExtraCurrencies.AsCell()
		}
		if err := b.StoreMaybeRef(extra); err != nil {
			return err
		}
	case SetCode:
		if x.NewCode == nil {
			return fmt.Errorf("set code action has no code")
		}
		b.MustStoreUInt(MagicSetCode, 32).
			MustStoreRef(x.NewCode)
	default:
		return fmt.Errorf("action %T cannot be serialized", a)
	}
	return nil
}
