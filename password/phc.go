package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrMalformedDigest is returned for a stored digest that cannot be decoded.
	ErrMalformedDigest = errors.New("password: malformed digest")
	// ErrUnsupportedDigest is returned for a well-formed digest of another algorithm or version.
	ErrUnsupportedDigest = errors.New("password: unsupported digest")
)

// digest is a decoded PHC string:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
type digest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d digest) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		d.memory, d.time, d.parallelism,
		base64.StdEncoding.EncodeToString(d.salt),
		base64.StdEncoding.EncodeToString(d.key),
	)
}

func decodeDigest(encoded string) (digest, error) {
	var d digest

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return d, ErrMalformedDigest
	}
	if fields[1] != algorithmID {
		return d, fmt.Errorf("%w: algorithm %q", ErrUnsupportedDigest, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return d, fmt.Errorf("%w: version field", ErrMalformedDigest)
	}
	if version != argon2.Version {
		return d, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedDigest, version)
	}

	var memory, time uint32
	var parallelism uint8
	n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", memory, time, parallelism) != fields[3] {
		return d, fmt.Errorf("%w: parameter field", ErrMalformedDigest)
	}
	if memory < minMemoryKiB || time < 1 || parallelism < 1 {
		return d, fmt.Errorf("%w: parameters below floor", ErrMalformedDigest)
	}

	salt, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil || len(salt) < minSaltLength {
		return d, fmt.Errorf("%w: salt", ErrMalformedDigest)
	}
	key, err := base64.StdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return d, fmt.Errorf("%w: key", ErrMalformedDigest)
	}

	d.memory = memory
	d.time = time
	d.parallelism = parallelism
	d.salt = salt
	d.key = key
	return d, nil
}
