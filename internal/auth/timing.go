package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads authentication failures with a small randomized delay so
// the response time does not reveal which check rejected the attempt
// (unknown email, wrong password, provider-only account).
type TimingDelay struct {
	base   time.Duration
	random time.Duration
}

func NewTimingDelay(base, random time.Duration) *TimingDelay {
	return &TimingDelay{base: base, random: random}
}

// Wait sleeps on failure. Successful operations return immediately; their
// timing is dominated by bcrypt anyway.
func (td *TimingDelay) Wait(success bool) {
	if success {
		return
	}
	time.Sleep(td.base + randomJitter(td.random))
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return max / 2
	}
	n := binary.BigEndian.Uint64(buf[:])
	return time.Duration(n % uint64(max))
}
