package gateway

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-sniper/internal/domain"
)

// PurchaseBuilder turns a candidate and an amount into the instructions of
// one acquisition transaction paid by payer.
type PurchaseBuilder interface {
	Build(payer solana.PublicKey, candidate domain.Candidate, lamports uint64) ([]solana.Instruction, error)
}

// TransferBuilder pays the amount to Destination with a system transfer.
// When Destination is zero the candidate address itself receives the funds.
type TransferBuilder struct {
	Destination solana.PublicKey
}

var _ PurchaseBuilder = TransferBuilder{}

// Build implements PurchaseBuilder.
func (b TransferBuilder) Build(payer solana.PublicKey, candidate domain.Candidate, lamports uint64) ([]solana.Instruction, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrSubmissionRejected)
	}

	to := b.Destination
	if to.IsZero() {
		pk, err := solana.PublicKeyFromBase58(candidate.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate address %q: %v", ErrSubmissionRejected, candidate.Address, err)
		}
		to = pk
	}

	return []solana.Instruction{
		system.NewTransferInstruction(lamports, payer, to).Build(),
	}, nil
}
