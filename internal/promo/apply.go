package promo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// txQuery is the subset of pgx.Tx redemption needs; it keeps the helper
// usable from any transaction shape.
type txQuery interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RedeemTx increments used_count for a winning promo code inside the
// order-creation transaction. Validation happens before this call, but
// the usage limit is re-checked under the row lock so two concurrent
// checkouts cannot both take the last redemption.
func RedeemTx(ctx context.Context, tx txQuery, codeID int64) *Error {
	tag, err := tx.Exec(ctx, `
		update promo_codes
		set used_count = used_count + 1, updated_at = now()
		where id = $1
		  and is_active = true
		  and (usage_limit is null or used_count < usage_limit)
	`, codeID)
	if err != nil {
		return ValidationError(ErrPromoExhausted, "Promo code usage limit reached", nil)
	}
	if tag.RowsAffected() == 0 {
		return ValidationError(ErrPromoExhausted, "Promo code usage limit reached", nil)
	}
	return nil
}
