package discovery

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/mr-tron/base58"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Known launch program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// WSOL is the Wrapped SOL mint address.
const WSOL = "So11111111111111111111111111111111111111112"

const (
	programDataPrefix = "Program data: "
	raydiumInitLog    = "Program log: initialize2"
	maxBorshString    = 1 << 10
)

// createEventDiscriminator tags pump.fun CreateEvent records (Anchor event layout).
var createEventDiscriminator = func() []byte {
	sum := sha256.Sum256([]byte("event:CreateEvent"))
	return sum[:8]
}()

var errShortData = errors.New("short event data")

// LaunchEvent is a token launch observed in transaction logs.
type LaunchEvent struct {
	Source       domain.Source
	Mint         string // empty when NeedsMint
	Symbol       string
	Name         string
	URI          string
	BondingCurve string
	Creator      string
	Signature    string
	Slot         int64
	// NeedsMint is set for launches whose mint is not in the logs and must be
	// read from the transaction (Raydium pool initialization).
	NeedsMint bool
}

// Candidate converts the event to a dispatchable candidate.
func (e LaunchEvent) Candidate() domain.Candidate {
	return domain.Candidate{
		Address:   e.Mint,
		Symbol:    e.Symbol,
		Source:    e.Source,
		Signature: e.Signature,
	}
}

// ParseLaunches extracts launch events from one logs notification.
// Failed transactions yield nothing.
func ParseLaunches(n solana.LogNotification) []LaunchEvent {
	if n.Failed() {
		return nil
	}

	var (
		events []LaunchEvent
		stack  []string // invoked program per depth
	)
	current := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1]
	}

	for _, line := range n.Logs {
		if program, ok := invokedProgram(line); ok {
			stack = append(stack, program)
			continue
		}
		if isProgramExit(line, current()) {
			stack = stack[:len(stack)-1]
			continue
		}

		switch current() {
		case PumpFun:
			if !strings.HasPrefix(line, programDataPrefix) {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
			if err != nil {
				continue
			}
			ev, err := decodeCreateEvent(data)
			if err != nil {
				continue
			}
			ev.Signature = n.Signature
			ev.Slot = n.Slot
			events = append(events, ev)

		case RaydiumAMMV4:
			if strings.HasPrefix(line, raydiumInitLog) {
				events = append(events, LaunchEvent{
					Source:    domain.SourceRaydium,
					Signature: n.Signature,
					Slot:      n.Slot,
					NeedsMint: true,
				})
			}
		}
	}
	return events
}

// ResolveRaydiumMint picks the launched mint from a pool initialization:
// the first post-balance mint that is not wrapped SOL.
func ResolveRaydiumMint(tx *solana.Transaction) (string, bool) {
	if tx == nil || tx.Meta == nil {
		return "", false
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != "" && b.Mint != WSOL {
			return b.Mint, true
		}
	}
	return "", false
}

// invokedProgram matches "Program <id> invoke [n]".
func invokedProgram(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "Program ")
	if !ok {
		return "", false
	}
	id, tail, ok := strings.Cut(rest, " ")
	if !ok || !strings.HasPrefix(tail, "invoke") {
		return "", false
	}
	return id, true
}

// isProgramExit matches "Program <id> success" and "Program <id> failed...".
func isProgramExit(line, program string) bool {
	if program == "" {
		return false
	}
	prefix := "Program " + program + " "
	if !strings.HasPrefix(line, prefix) {
		return false
	}
	tail := line[len(prefix):]
	return tail == "success" || strings.HasPrefix(tail, "failed")
}

// decodeCreateEvent decodes a pump.fun CreateEvent:
// discriminator(8) | name | symbol | uri (borsh strings) | mint | bonding_curve | user (32 each).
// Trailing fields added by newer program versions are ignored.
func decodeCreateEvent(data []byte) (LaunchEvent, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], createEventDiscriminator) {
		return LaunchEvent{}, errors.New("not a create event")
	}
	r := borshReader{data: data[8:]}

	name, err := r.readString()
	if err != nil {
		return LaunchEvent{}, err
	}
	symbol, err := r.readString()
	if err != nil {
		return LaunchEvent{}, err
	}
	uri, err := r.readString()
	if err != nil {
		return LaunchEvent{}, err
	}
	mint, err := r.readPubkey()
	if err != nil {
		return LaunchEvent{}, err
	}
	curve, err := r.readPubkey()
	if err != nil {
		return LaunchEvent{}, err
	}
	user, err := r.readPubkey()
	if err != nil {
		return LaunchEvent{}, err
	}

	return LaunchEvent{
		Source:       domain.SourcePumpFun,
		Mint:         mint,
		Symbol:       strings.TrimSpace(symbol),
		Name:         name,
		URI:          uri,
		BondingCurve: curve,
		Creator:      user,
	}, nil
}

type borshReader struct {
	data []byte
	off  int
}

func (r *borshReader) readString() (string, error) {
	if r.off+4 > len(r.data) {
		return "", errShortData
	}
	n := int(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	if n > maxBorshString || r.off+n > len(r.data) {
		return "", errShortData
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *borshReader) readPubkey() (string, error) {
	if r.off+32 > len(r.data) {
		return "", errShortData
	}
	key := base58.Encode(r.data[r.off : r.off+32])
	r.off += 32
	return key, nil
}
