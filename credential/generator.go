// Package credential generates usernames and passwords for provisioned
// instances, replacing the reference implementation's secrets.choice-based
// generator with crypto/rand while keeping the same shape: a guaranteed mix
// of character classes, then a shuffled fill, with an alphabet an adapter
// can narrow via engine.CharsetConstraints.
package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/coralcp/dbaas/engine"
)

const (
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower   = "abcdefghijklmnopqrstuvwxyz"
	digits  = "0123456789"
	symbols = "!@#$%^&*()-_=+"
)

var adjectives = []string{
	"quick", "lazy", "happy", "clever", "brave", "calm", "wise", "bold",
	"bright", "cool", "fair", "fine", "free", "kind", "neat", "pure",
}

var nouns = []string{
	"fox", "cat", "dog", "owl", "lion", "bear", "wolf", "tiger",
	"eagle", "hawk", "raven", "crane", "swan", "dove", "crow", "lark",
}

func randIndex(n int) (int, error) {
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randChar(alphabet string) (byte, error) {
	i, err := randIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

// GenerateUsername produces an adjective_noun_NNN handle, human-readable
// enough to show back to an operator without leaking anything sensitive.
func GenerateUsername() (string, error) {
	ai, err := randIndex(len(adjectives))
	if err != nil {
		return "", err
	}
	ni, err := randIndex(len(nouns))
	if err != nil {
		return "", err
	}
	num, err := randIndex(1000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%d", adjectives[ai], nouns[ni], num), nil
}

// GeneratePassword builds a password respecting constraints: at least one
// uppercase, one lowercase, one digit, and (if allowed) one symbol, then
// fills to length and Fisher-Yates shuffles so the guaranteed characters
// aren't predictably front-loaded.
func GeneratePassword(constraints engine.CharsetConstraints) (string, error) {
	length := constraints.MaxLength
	if length <= 0 {
		length = 32
	}
	if constraints.MinLength > 0 && length < constraints.MinLength {
		length = constraints.MinLength
	}

	alphabet := upper + lower + digits
	guaranteed := []byte{}
	must := []string{upper, lower, digits}
	if constraints.AllowSymbols {
		alphabet += symbols
		must = append(must, symbols)
	}
	for _, ex := range constraints.ExcludeChars {
		alphabet = removeRune(alphabet, ex)
		for i := range must {
			must[i] = removeRune(must[i], ex)
		}
	}

	for _, class := range must {
		if class == "" {
			continue
		}
		c, err := randChar(class)
		if err != nil {
			return "", err
		}
		guaranteed = append(guaranteed, c)
	}

	for len(guaranteed) < length {
		c, err := randChar(alphabet)
		if err != nil {
			return "", err
		}
		guaranteed = append(guaranteed, c)
	}

	for i := len(guaranteed) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return "", err
		}
		guaranteed[i], guaranteed[j] = guaranteed[j], guaranteed[i]
	}

	return string(guaranteed), nil
}

func removeRune(s string, r rune) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c != r {
			out = append(out, c)
		}
	}
	return string(out)
}
