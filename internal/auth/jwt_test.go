package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signToken(t *testing.T, secret string, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	svc := NewJWTService("test-secret")
	userID := uuid.New()
	signed := signToken(t, "test-secret", Claims{
		UserID: userID,
		Email:  "producer@example.com",
		Role:   "producer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}, jwt.SigningMethodHS256)

	claims, err := svc.Validate(signed)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Role != "producer" {
		t.Errorf("Role = %q, want producer", claims.Role)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService("right-secret")
	signed := signToken(t, "wrong-secret", Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256)

	if _, err := svc.Validate(signed); err != ErrInvalidToken {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret")
	signed := signToken(t, "test-secret", Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, jwt.SigningMethodHS256)

	if _, err := svc.Validate(signed); err != ErrInvalidToken {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret")
	if _, err := svc.Validate("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
}
