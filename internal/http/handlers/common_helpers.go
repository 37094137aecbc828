package handlers

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func textPtr(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func int4Ptr(value pgtype.Int4) *int32 {
	if !value.Valid {
		return nil
	}
	return &value.Int32
}

func int8Ptr(value pgtype.Int8) *int64 {
	if !value.Valid {
		return nil
	}
	return &value.Int64
}

func timePtr(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func numericPtr(value pgtype.Numeric) *float64 {
	if !value.Valid {
		return nil
	}
	f, _ := value.Float64Value()
	out := f.Float64
	return &out
}

func defaultStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
