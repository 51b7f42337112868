package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAmountInWords(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{0, "Zero Rupees Only"},
		{1, "One Rupees Only"},
		{19, "Nineteen Rupees Only"},
		{20, "Twenty Rupees Only"},
		{42, "Forty Two Rupees Only"},
		{100, "One Hundred Rupees Only"},
		{105, "One Hundred Five Rupees Only"},
		{1500, "One Thousand Five Hundred Rupees Only"},
		{123456, "One Lakh Twenty Three Thousand Four Hundred Fifty Six Rupees Only"},
		{10000000, "One Crore Rupees Only"},
		{12345678, "One Crore Twenty Three Lakh Forty Five Thousand Six Hundred Seventy Eight Rupees Only"},
	}
	for _, tc := range cases {
		got := AmountInWords(decimal.NewFromInt(tc.amount))
		require.Equal(t, tc.want, got, "amount %d", tc.amount)
	}
}

func TestAmountInWordsNegative(t *testing.T) {
	require.Equal(t, "Minus Five Hundred Rupees Only", AmountInWords(decimal.NewFromInt(-500)))
}

func TestAmountInWordsDropsPaise(t *testing.T) {
	require.Equal(t, "Ninety Nine Rupees Only", AmountInWords(decimal.RequireFromString("99.75")))
}
