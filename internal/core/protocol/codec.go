// Package protocol encodes and resolves the printable "KL-" tokens that
// identify an employee, unit and month on paper reports.
package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

const (
	Prefix = "KL-"

	// HashLength is the number of hex characters kept from the digest.
	HashLength = 12
)

var (
	ErrInvalidFormat    = errors.New("protocol: invalid format")
	ErrNotFound         = errors.New("protocol: not found")
	ErrInvalidReference = errors.New("protocol: referenced employee does not exist")
)

var (
	yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	shortHashRe = regexp.MustCompile(`^[0-9A-Z]{12}$`)
)

// Tuple is what a token stands for. UnitID may be empty.
type Tuple struct {
	EmployeeID string `json:"employeeId"`
	UnitID     string `json:"unitId"`
	YearMonth  string `json:"month"`
}

func (t Tuple) String() string {
	return t.EmployeeID + "." + t.UnitID + "." + t.YearMonth
}

// Validate checks the invariants every resolved tuple must hold.
func (t Tuple) Validate() error {
	if strings.TrimSpace(t.EmployeeID) == "" {
		return ErrInvalidFormat
	}
	if !yearMonthRe.MatchString(t.YearMonth) {
		return ErrInvalidFormat
	}
	return nil
}

// ShortHash is the first HashLength uppercase hex chars of sha256(tuple).
func ShortHash(t Tuple) string {
	sum := sha256.Sum256([]byte(t.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:HashLength]
}

// Encode returns the short form token for t.
func Encode(t Tuple) string {
	return Prefix + ShortHash(t)
}

// EncodeLegacy returns the older self-describing token, which carries the
// tuple as base64url text.
func EncodeLegacy(t Tuple) string {
	return Prefix + base64.RawURLEncoding.EncodeToString([]byte(t.String()))
}

// Parsed is a syntactically valid token. Exactly one of Tuple (legacy
// tokens) or Hash (short tokens) is meaningful.
type Parsed struct {
	Legacy bool
	Tuple  Tuple
	Hash   string
}

// Parse classifies a token without touching any data source.
func Parse(token string) (Parsed, error) {
	token = strings.TrimSpace(token)
	if len(token) <= len(Prefix) || !strings.EqualFold(token[:len(Prefix)], Prefix) {
		return Parsed{}, ErrInvalidFormat
	}
	body := token[len(Prefix):]

	if t, ok := decodeLegacy(body); ok {
		return Parsed{Legacy: true, Tuple: t}, nil
	}

	hash := strings.ToUpper(body)
	if !shortHashRe.MatchString(hash) {
		return Parsed{}, ErrInvalidFormat
	}
	return Parsed{Hash: hash}, nil
}

func decodeLegacy(body string) (Tuple, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body, "="))
	if err != nil {
		return Tuple{}, false
	}
	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 || !yearMonthRe.MatchString(parts[2]) {
		return Tuple{}, false
	}
	t := Tuple{EmployeeID: parts[0], UnitID: parts[1], YearMonth: parts[2]}
	if t.Validate() != nil {
		return Tuple{}, false
	}
	return t, true
}
