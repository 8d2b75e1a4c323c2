package generator

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// DefaultLength is used when no length is requested
const DefaultLength = 16

// Character sets
const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numbers   = "0123456789"
	symbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// Options configures generation. A nil class flag means "included".
type Options struct {
	Length    int   `json:"length" validate:"omitempty,min=4,max=128"`
	Uppercase *bool `json:"uppercase,omitempty"`
	Lowercase *bool `json:"lowercase,omitempty"`
	Numbers   *bool `json:"numbers,omitempty"`
	Symbols   *bool `json:"symbols,omitempty"`
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// classes returns the selected character sets. With nothing selected it
// falls back to letters and digits.
func (o Options) classes() []string {
	var sets []string
	if enabled(o.Lowercase) {
		sets = append(sets, lowercase)
	}
	if enabled(o.Uppercase) {
		sets = append(sets, uppercase)
	}
	if enabled(o.Numbers) {
		sets = append(sets, numbers)
	}
	if enabled(o.Symbols) {
		sets = append(sets, symbols)
	}
	if len(sets) == 0 {
		sets = []string{lowercase, uppercase, numbers}
	}
	return sets
}

// Generate creates a random password containing at least one character
// from every selected class.
func Generate(options Options) (string, error) {
	length := options.Length
	if length == 0 {
		length = DefaultLength
	}
	if length < 0 {
		return "", errors.New("password length must be positive")
	}

	sets := options.classes()
	if length < len(sets) {
		return "", errors.New("password length is shorter than the number of character classes")
	}

	charset := ""
	for _, set := range sets {
		charset += set
	}

	result := make([]byte, 0, length)
	for _, set := range sets {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		result = append(result, c)
	}
	for len(result) < length {
		c, err := pick(charset)
		if err != nil {
			return "", err
		}
		result = append(result, c)
	}

	if err := shuffle(result); err != nil {
		return "", err
	}
	return string(result), nil
}

func pick(set string) (byte, error) {
	idx, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[idx], nil
}

// shuffle is a Fisher-Yates shuffle over crypto/rand
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

// randomInt returns a uniform integer in [0, max)
func randomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
