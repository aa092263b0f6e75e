package provisioning

import (
	"errors"
	"strings"
)

var ErrInvalidMAC = errors.New("invalid mac address")

// NormalizeMAC приводит MAC к виду AA:BB:CC:DD:EE:FF.
// Разделители ":", "-", "." допускаются в любом месте; регистр не важен.
func NormalizeMAC(raw string) (string, error) {
	hex := CompactMAC(raw)
	if len(hex) != 12 {
		return "", ErrInvalidMAC
	}
	for i := 0; i < len(hex); i++ {
		c := hex[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return "", ErrInvalidMAC
		}
	}
	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String(), nil
}

// CompactMAC — без разделителей, в верхнем регистре; для имён файлов.
func CompactMAC(raw string) string {
	return strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(raw)))
}
