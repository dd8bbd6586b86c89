package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://desk.example.com/"})

	r := httptest.NewRequest("GET", "http://chatd.local/api/realtime", nil)
	assert.True(t, check(r), "no origin header")

	r.Header.Set("Origin", "https://desk.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	r.Header.Set("Origin", "http://chatd.local")
	assert.True(t, check(r), "same host")

	assert.True(t, originChecker([]string{"*"})(r))
}
