package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPublicID(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/image/upload/v1712345678/theaters/1/products/product_3_99.jpg":        "theaters/1/products/product_3_99",
		"https://res.cloudinary.com/demo/image/upload/c_fill,w_400/f_auto/v17/theaters/2/products/nachos.webp": "theaters/2/products/nachos",
		"https://res.cloudinary.com/demo/image/upload/popcorn.png":                                             "popcorn",
		"https://cdn.example.com/images/popcorn.png":                                                           "",
	}
	for url, want := range cases {
		assert.Equal(t, want, ExtractPublicID(url), url)
	}
	assert.Empty(t, ExtractPublicID(""))
}
