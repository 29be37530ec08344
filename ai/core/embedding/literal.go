package embedding

import (
	"strconv"
	"strings"

	"github.com/hrygo/recruitsense/internal/errs"
)

// ToStoreLiteral renders vec in pgvector text form with six decimals per
// component, e.g. [0.123456,-0.500000].
func ToStoreLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseLiteral is the inverse of ToStoreLiteral.
func ParseLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, errs.InvalidInput("vector literal must be bracketed: %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errs.InvalidInput("invalid vector component %d: %q", i, p)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
