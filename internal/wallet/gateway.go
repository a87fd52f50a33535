package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/xtrenches/trenchbot/internal/domain"
)

const (
	// LamportsPerSol converts between lamports and whole SOL.
	LamportsPerSol = 1_000_000_000

	confirmPollInterval = 2 * time.Second
	confirmTimeout      = 45 * time.Second

	// topHoldersLimit caps how many of the largest accounts TopHolders
	// reports.
	topHoldersLimit = 10
)

// Gateway wraps a Solana RPC client with the operations the bot needs:
// balance queries, SOL transfers, and submitting pre-built swap transactions.
type Gateway struct {
	rpc    *rpc.Client
	logger *slog.Logger
}

// NewGateway creates a Gateway against the given RPC endpoint.
func NewGateway(rpcURL string, logger *slog.Logger) *Gateway {
	return &Gateway{
		rpc:    rpc.New(rpcURL),
		logger: logger.With(slog.String("component", "solana")),
	}
}

// SolBalance returns the SOL balance of an address.
func (g *Gateway) SolBalance(ctx context.Context, address string) (float64, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("solana: invalid address %q: %w", address, err)
	}

	out, err := g.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("solana: get balance: %w", err)
	}
	return float64(out.Value) / LamportsPerSol, nil
}

// TokenBalance returns the owner's balance of an SPL token as both UI amount
// and raw units. A missing token account reads as zero, matching how a
// wallet that never held the token behaves.
func (g *Gateway) TokenBalance(ctx context.Context, owner, mint string) (float64, uint64, error) {
	ownerPk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: invalid owner %q: %w", owner, err)
	}
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: invalid mint %q: %w", mint, err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(ownerPk, mintPk)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: derive token account: %w", err)
	}

	out, err := g.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		g.logger.DebugContext(ctx, "token balance unavailable, treating as zero",
			slog.String("owner", owner),
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
		return 0, 0, nil
	}
	if out.Value == nil {
		return 0, 0, nil
	}

	var ui float64
	if out.Value.UiAmount != nil {
		ui = *out.Value.UiAmount
	}
	var raw uint64
	_, _ = fmt.Sscan(out.Value.Amount, &raw)
	return ui, raw, nil
}

// TopHolders returns the mint's largest token accounts, each with its share
// of the combined balance across the accounts the cluster reports. On fresh
// launches the first entry is typically the deployer's bag.
func (g *Gateway) TopHolders(ctx context.Context, mint string) ([]domain.TokenHolder, error) {
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("solana: invalid mint %q: %w", mint, err)
	}

	out, err := g.rpc.GetTokenLargestAccounts(ctx, mintPk, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("solana: token largest accounts: %w", err)
	}

	var total float64
	amounts := make([]float64, len(out.Value))
	for i, acc := range out.Value {
		var raw uint64
		_, _ = fmt.Sscan(acc.Amount, &raw)
		amounts[i] = float64(raw)
		total += amounts[i]
	}
	if total == 0 {
		return nil, nil
	}

	n := len(out.Value)
	if n > topHoldersLimit {
		n = topHoldersLimit
	}
	holders := make([]domain.TokenHolder, 0, n)
	for i := 0; i < n; i++ {
		holders = append(holders, domain.TokenHolder{
			Address:    out.Value[i].Address.String(),
			Percentage: amounts[i] / total * 100,
		})
	}
	return holders, nil
}

// TransferSol sends SOL from the signer to a destination address and waits
// for confirmation.
func (g *Gateway) TransferSol(ctx context.Context, from solana.PrivateKey, to string, amountSol float64) (string, error) {
	toPk, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("solana: invalid destination %q: %w", to, err)
	}
	lamports := uint64(amountSol * LamportsPerSol)
	if lamports == 0 {
		return "", fmt.Errorf("solana: transfer amount too small")
	}

	bh, err := g.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("solana: latest blockhash: %w", err)
	}

	ix := system.NewTransferInstruction(lamports, from.PublicKey(), toPk).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		bh.Value.Blockhash,
		solana.TransactionPayer(from.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("solana: build transfer: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from.PublicKey()) {
			return &from
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("solana: sign transfer: %w", err)
	}

	sig, err := g.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("solana: send transfer: %w", err)
	}

	if err := g.confirm(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// SignAndSend deserializes a base64 transaction (as returned by the Jupiter
// swap API), signs it with the given key, submits it, and waits until the
// cluster reports it confirmed. It makes exactly one attempt; retry policy
// belongs to the caller.
func (g *Gateway) SignAndSend(ctx context.Context, txBase64 string, signer solana.PrivateKey) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("solana: decode transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("solana: deserialize transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("solana: sign transaction: %w", err)
	}

	sig, err := g.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}

	if err := g.confirm(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// confirm polls signature status until the transaction is confirmed or
// finalized, the transaction fails on chain, or the timeout elapses.
func (g *Gateway) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		out, err := g.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("solana: transaction %s failed on chain: %v", sig, st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
