package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCheckRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body["text"] != "テスト投稿です" {
			t.Errorf("text = %q", body["text"])
		}
		json.NewEncoder(w).Encode(map[string]any{"weightedLength": 14, "isValid": true})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	checker := NewLengthChecker(server.URL, 5*time.Second, logger)

	result, err := checker.Check(context.Background(), "テスト投稿です")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.WeightedLength != 14 || !result.Valid {
		t.Errorf("result = %+v, want weighted 14 and valid", result)
	}
}

func TestCheckRemoteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	checker := NewLengthChecker(server.URL, 5*time.Second, logger)

	if _, err := checker.Check(context.Background(), "テスト"); err == nil {
		t.Fatal("Check() should fail on a 500 response")
	}
}

func TestLocalCheck(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
		wantValid bool
	}{
		{"short_japanese", "こんにちは", 5, true},
		{"empty", "", 0, true},
		{"at_limit", strings.Repeat("a", 280), 280, true},
		{"over_limit", strings.Repeat("あ", 281), 281, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocalCheck(tt.text)
			if got.WeightedLength != tt.wantCount {
				t.Errorf("WeightedLength = %d, want %d", got.WeightedLength, tt.wantCount)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.wantValid)
			}
		})
	}
}

func TestExecuteDegradesToLocalCount(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	// Unroutable endpoint: the remote check fails immediately.
	checker := NewLengthChecker("http://127.0.0.1:1/check", 500*time.Millisecond, logger)

	payload, isError := checker.Execute(context.Background(), json.RawMessage(`{"text": "ローカル計測の投稿"}`))
	if !isError {
		t.Error("Execute should flag the degraded result as an error")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("degraded payload is not valid JSON: %v", err)
	}
	if result["weightedLength"] != float64(9) {
		t.Errorf("weightedLength = %v, want the local rune count 9", result["weightedLength"])
	}
	if _, ok := result["error"]; !ok {
		t.Error("degraded payload should carry an error field")
	}
}

func TestExecuteMalformedInput(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	checker := NewLengthChecker("http://127.0.0.1:1/check", 500*time.Millisecond, logger)

	payload, isError := checker.Execute(context.Background(), json.RawMessage(`not json`))
	if !isError {
		t.Error("malformed input should produce an error-flagged result")
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
}
