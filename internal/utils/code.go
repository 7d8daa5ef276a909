package utils

import (
    "crypto/rand"
    "math/big"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // omit easily confused chars

// QRTokenLength gives 32 alphabet positions over 32 characters: 160 bits of
// entropy, far beyond guessable within a rotation window.
const QRTokenLength = 32

// GenerateCode returns a random token of n characters from codeAlphabet.
func GenerateCode(n int) (string, error) {
    if n <= 0 {
        n = QRTokenLength
    }
    b := make([]byte, n)
    for i := 0; i < n; i++ {
        idxBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
        if err != nil {
            return "", err
        }
        b[i] = codeAlphabet[idxBig.Int64()]
    }
    return string(b), nil
}
