package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WeiDecimals is the implied precision of fee and prize values.
const WeiDecimals = 18

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

func FormatFloat(f float64, decimals int) string {
	return AddCommas(fmt.Sprintf("%.*f", decimals, f))
}

// FormatPrice renders a wei amount for display: the value is zero-padded
// to 18 digits, prefixed with "0." and cut to five characters.
// Values of one ether or more lose their leading digits.
func FormatPrice(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < WeiDecimals {
		raw = strings.Repeat("0", WeiDecimals-len(raw)) + raw
	}
	return ("0." + raw)[:5]
}

// DollarValue multiplies a decimal price by a decimal amount and rounds the
// exact product to two places, halves away from zero.
func DollarValue(price, value string) (string, error) {
	p, ok := new(big.Rat).SetString(strings.TrimSpace(price))
	if !ok {
		return "", fmt.Errorf("invalid price %q", price)
	}
	v, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return "", fmt.Errorf("invalid amount %q", value)
	}
	return new(big.Rat).Mul(p, v).FloatString(2), nil
}

// ToWei converts an ether-denominated decimal string to wei.
func ToWei(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > WeiDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, WeiDecimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", WeiDecimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
	}
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return wei, nil
}

// FormatTimestamp renders unix seconds as a local date and time.
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04:05")
}

// ShortAddress abbreviates an address to 0x1234...abcd.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

func RatToFloat64(s string) float64 {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0
	}
	f, _ := r.Float64()
	return f
}
