package password

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		enc.EncodeToString(p.salt), enc.EncodeToString(p.key))
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

// decodeB64 accepts both padded and unpadded standard base64. Hashes made by
// other argon2 tools use either form.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, malformed("layout")
	}
	if parts[1] != algorithmID {
		return phc{}, malformed("algorithm " + parts[1])
	}
	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("version " + version)
	}

	var out phc
	if err := out.parseParams(parts[3]); err != nil {
		return phc{}, err
	}

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return phc{}, malformed("salt")
	}
	key, err := decodeB64(parts[5])
	if err != nil || len(key) < int(minKeyLength) {
		return phc{}, malformed("key")
	}
	out.salt, out.key = salt, key
	return out, nil
}

func (p *phc) parseParams(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return malformed("parameters")
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return malformed("memory")
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < 1 {
				return malformed("time")
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || v < 1 {
				return malformed("parallelism")
			}
			p.parallelism = uint8(v)
		default:
			return malformed("parameter " + name)
		}
	}
	if len(seen) != 3 {
		return malformed("parameters")
	}
	return nil
}
