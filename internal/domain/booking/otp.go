package booking

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	// OTPTTL is how long a challenge stays valid.
	OTPTTL = 10 * time.Minute
	// MaxOTPAttempts is how many wrong codes retire a challenge.
	MaxOTPAttempts = 5
	otpDigits      = 6
)

var (
	otpSpace   = big.NewInt(1_000_000)
	otpPattern = regexp.MustCompile(`^\d{6}$`)
)

// Challenge is one issued OTP.
type Challenge struct {
	ID           uuid.UUID  `json:"id"`
	Phone        string     `json:"phone_number"`
	Code         string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Attempts     int        `json:"attempts"`
	Verified     bool       `json:"is_verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

func NewChallenge(phone, code string, now time.Time, ttl time.Duration) *Challenge {
	if ttl <= 0 {
		ttl = OTPTTL
	}
	return &Challenge{
		ID:        uuid.New(),
		Phone:     phone,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Live reports whether the challenge can still be verified at now.
func (c *Challenge) Live(now time.Time) bool {
	return !c.Verified && c.SupersededAt == nil && now.Before(c.ExpiresAt)
}

// miss records a wrong code and retires the challenge once the attempt
// budget is spent.
func (c *Challenge) miss(now time.Time) {
	c.Attempts++
	if c.Attempts >= MaxOTPAttempts && c.SupersededAt == nil {
		at := now
		c.SupersededAt = &at
	}
}

// Matches compares codes in constant time.
func (c *Challenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) == 1
}

// GenerateCode draws a uniformly random zero-padded six-digit code from r.
// A nil r uses crypto/rand.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// ValidCodeFormat reports whether s looks like an OTP.
func ValidCodeFormat(s string) bool {
	return otpPattern.MatchString(s)
}
