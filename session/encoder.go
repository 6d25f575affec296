package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	sessionFormatVersion   = 1
	challengeFormatVersion = 1
	maxFieldLength         = 65535
)

var errFieldTooLong = errors.New("session field too long")

// Encode serializes s. SessionID is the Redis key and is not stored.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersion)

	if err := writeString(&buf, s.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.SecurityStamp); err != nil {
		return nil, err
	}
	buf.WriteByte(boolByte(s.Persistent))
	if err := binary.Write(&buf, binary.BigEndian, int64(s.Lifetime/time.Second)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record written by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion {
		return nil, fmt.Errorf("unsupported session format version %d", version)
	}

	s := &Session{}
	if s.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if s.SecurityStamp, err = readString(reader); err != nil {
		return nil, err
	}
	flag, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Persistent = flag == 1

	var lifetimeSeconds int64
	if err := binary.Read(reader, binary.BigEndian, &lifetimeSeconds); err != nil {
		return nil, err
	}
	s.Lifetime = time.Duration(lifetimeSeconds) * time.Second
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func encodeChallenge(c *Challenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeFormatVersion)
	buf.WriteByte(byte(c.Kind))
	buf.WriteByte(boolByte(c.RememberMe))

	if err := binary.Write(&buf, binary.BigEndian, c.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt); err != nil {
		return nil, err
	}
	for _, field := range []string{
		c.UserID, c.Provider, c.ProviderKey, c.Email, c.GivenName, c.FamilyName, c.ReturnURL,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeFormatVersion {
		return nil, fmt.Errorf("unsupported challenge format version %d", version)
	}

	c := &Challenge{}
	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	c.Kind = ChallengeKind(kind)
	remember, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	c.RememberMe = remember == 1

	if err := binary.Read(reader, binary.BigEndian, &c.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &c.ExpiresAt); err != nil {
		return nil, err
	}
	for _, field := range []*string{
		&c.UserID, &c.Provider, &c.ProviderKey, &c.Email, &c.GivenName, &c.FamilyName, &c.ReturnURL,
	} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxFieldLength {
		return errFieldTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
