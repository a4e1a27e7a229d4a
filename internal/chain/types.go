package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte block or state hash.
type Hash [32]byte

// ParseHash decodes a 0x-prefixed hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := decodeHex(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// BlockNumber is a block height. Nodes report it as a hex quantity.
type BlockNumber uint32

func (n BlockNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(n), 16))
}

func (n *BlockNumber) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	switch v := raw.(type) {
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
		if s == "" {
			return fmt.Errorf("block number: empty quantity %q", v)
		}
		parsed, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return fmt.Errorf("block number %q: %w", v, err)
		}
		*n = BlockNumber(parsed)
	case float64:
		if v < 0 || v > float64(^uint32(0)) || v != float64(uint32(v)) {
			return fmt.Errorf("block number %v out of range", v)
		}
		*n = BlockNumber(v)
	default:
		return fmt.Errorf("block number: unexpected %s", string(data))
	}
	return nil
}

// DigestItem is one SCALE-encoded digest log, kept opaque.
type DigestItem []byte

func (d DigestItem) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(d))
}

func (d *DigestItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("digest item: %w", err)
	}
	b, err := decodeHex(s)
	if err != nil {
		return fmt.Errorf("digest item: %w", err)
	}
	*d = b
	return nil
}

// Digest holds the header's log items.
type Digest struct {
	Logs []DigestItem `json:"logs"`
}

// Header is a Substrate block header as returned by chain_getHeader and
// chain_subscribeNewHeads.
type Header struct {
	ParentHash     Hash        `json:"parentHash"`
	Number         BlockNumber `json:"number"`
	StateRoot      Hash        `json:"stateRoot"`
	ExtrinsicsRoot Hash        `json:"extrinsicsRoot"`
	Digest         Digest      `json:"digest"`
}

// Encode returns the SCALE encoding of the header, the preimage of its hash.
func (h *Header) Encode() []byte {
	size := 3*len(Hash{}) + 5 + 5
	for _, item := range h.Digest.Logs {
		size += len(item)
	}
	out := make([]byte, 0, size)
	out = append(out, h.ParentHash[:]...)
	out = AppendCompact(out, uint64(h.Number))
	out = append(out, h.StateRoot[:]...)
	out = append(out, h.ExtrinsicsRoot[:]...)
	out = AppendCompact(out, uint64(len(h.Digest.Logs)))
	for _, item := range h.Digest.Logs {
		out = append(out, item...)
	}
	return out
}

// Hash computes the block hash: blake2b-256 over the encoded header.
func (h *Header) Hash() Hash {
	return blake2b.Sum256(h.Encode())
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("hex %q: missing 0x prefix", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("hex %q: %w", s, err)
	}
	return b, nil
}
