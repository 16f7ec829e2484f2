package testing

import (
	"math/rand"
	"strings"
)

const charSet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString generates random string with 10 symbols length from lower- and uppercase alphabet
func RandString() string {
	var out strings.Builder
	for i := 0; i < 10; i++ {
		out.WriteByte(charSet[rand.Intn(len(charSet))])
	}
	return out.String()
}

// RandImages returns n random non-empty payloads standing in for encoded images
func RandImages(n int) [][]byte {
	images := make([][]byte, n)
	for i := range images {
		images[i] = make([]byte, 16+rand.Intn(48))
		rand.Read(images[i])
	}
	return images
}
