package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

var errMissingParam = errors.New("missing path parameter")

func readPathString(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		return "", errMissingParam
	}
	return value, nil
}

func readPathInt64(r *http.Request, name string) (int64, error) {
	raw, err := readPathString(r, name)
	if err != nil {
		return 0, err
	}
	var out int64
	if _, err := fmt.Sscan(raw, &out); err != nil {
		return 0, err
	}
	return out, nil
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// computeOrderTotals applies the financial invariant shared by checkout,
// invoice edits and payments:
//
//	total = max(sub - discount, 0) + tax + fee
//	due   = max(total - paid, 0)
func computeOrderTotals(subTotal, discount, tax, fee, paid float64) (total float64, due float64) {
	total = round2(math.Max(subTotal-discount, 0) + tax + fee)
	due = round2(math.Max(total-paid, 0))
	return total, due
}
