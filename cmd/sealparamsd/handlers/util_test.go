package handlers_test

import (
	"encoding/json"
	"testing"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("response is not JSON: %s\n%s", err, body)
	}
	return v
}
