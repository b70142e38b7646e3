package otp

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RegenerateBackupCodes replaces every backup code. TOTP must be enabled.
func (g *Gate) RegenerateBackupCodes(state *State) ([]string, error) {
	if !state.TOTP.Enabled {
		return nil, ErrTOTPNotEnabled
	}
	codes, hashes, err := g.newBackupCodes()
	if err != nil {
		return nil, err
	}
	state.TOTP.BackupCodes = hashes
	return codes, nil
}

// ConsumeBackupCode marks the matching unused code as used.
func (g *Gate) ConsumeBackupCode(state *State, code string, now time.Time) bool {
	canonical := canonicalBackupCode(code)
	if canonical == "" {
		return false
	}
	for i := range state.TOTP.BackupCodes {
		entry := &state.TOTP.BackupCodes[i]
		if entry.UsedAt != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(canonical)) == nil {
			used := now
			entry.UsedAt = &used
			return true
		}
	}
	return false
}

func (g *Gate) newBackupCodes() ([]string, []BackupCode, error) {
	count := g.settings.BackupCodeCount
	codes := make([]string, 0, count)
	hashes := make([]BackupCode, 0, count)
	for i := 0; i < count; i++ {
		raw, err := randomBackupCode(g.settings.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), g.settings.BackupCodeCost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, formatBackupCode(raw))
		hashes = append(hashes, BackupCode{Hash: string(hash)})
	}
	return codes, hashes, nil
}

func randomBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func formatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

func canonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}
