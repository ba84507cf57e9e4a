package jwtutil

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", time.Minute, "admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" || claims.Subject != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, _ := GenerateToken("secret", time.Minute, "admin", "admin")
	expired, _ := GenerateToken("secret", -time.Minute, "admin", "admin")
	tests := []struct {
		name, secret, token string
	}{
		{"wrong secret", "other", good},
		{"expired", "secret", expired},
		{"garbage", "secret", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.secret, tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
