package auth

import (
	"context"
	"crypto/md5"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OfflineUUID derives the deterministic UUID the game uses for offline
// players: MD5 of "OfflinePlayer:<name>" with the version nibble forced to 3
// and the IETF variant bits set, matching Java's nameUUIDFromBytes.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	u, _ := uuid.FromBytes(sum[:])
	return u
}

// OfflineStep synthesizes a local profile for a chosen username. It does no
// network work and always succeeds.
type OfflineStep struct {
	Username string
}

func (s *OfflineStep) Describe() string {
	return "Creating an offline profile."
}

func (s *OfflineStep) Perform(ctx context.Context, d *AccountData) StepResult {
	id := strings.ReplaceAll(OfflineUUID(s.Username).String(), "-", "")
	d.Profile = MinecraftProfile{
		ID:       id,
		Name:     s.Username,
		Capes:    map[string]Cape{},
		Validity: ValidityCertain,
	}
	d.YggdrasilToken = Token{
		IssueInstant: time.Now().UTC(),
		Token:        "offline",
		Extra:        map[string]string{"userName": s.Username},
		Validity:     ValidityCertain,
		Persistent:   true,
	}
	d.Entitlement = MinecraftEntitlement{
		OwnsMinecraft:    true,
		CanPlayMinecraft: true,
		Validity:         ValidityCertain,
	}
	return working("created offline profile")
}
