// Package stub provides an in-memory rpc.Client that executes the System,
// Token-2022, token-metadata and associated-token-account instructions the
// console submits. It is meant for tests.
package stub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/rpc"
	"solana-token-console/internal/token2022"
)

// Rent parameters of the default cluster configuration.
const (
	LamportsPerByteYear    = 3480
	ExemptionYears         = 2
	AccountStorageOverhead = 128
	SignatureFee           = 5000
)

// Rent returns the rent-exempt minimum for an account of size bytes.
func Rent(size int) uint64 {
	return uint64(size+AccountStorageOverhead) * LamportsPerByteYear * ExemptionYears
}

type account struct {
	lamports uint64
	owner    solana.PublicKey
	data     []byte
}

func (a *account) clone() *account {
	return &account{lamports: a.lamports, owner: a.owner, data: append([]byte(nil), a.data...)}
}

// Ledger implements rpc.Client over in-memory state. Transactions apply
// atomically: a failing instruction leaves every account unchanged.
type Ledger struct {
	mu          sync.Mutex
	accounts    map[solana.PublicKey]*account
	statuses    map[string]*rpc.SignatureStatus
	calls       map[string]int
	accountErrs map[solana.PublicKey]error
	sendErr     error
	hold        bool

	blockhash solana.Hash
	recent    map[solana.Hash]uint64 // blockhash -> last valid block height
	height    uint64
	slot      uint64
	epoch     uint64
	lifetime  uint64
}

var _ rpc.Client = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:    make(map[solana.PublicKey]*account),
		statuses:    make(map[string]*rpc.SignatureStatus),
		calls:       make(map[string]int),
		accountErrs: make(map[solana.PublicKey]error),
		blockhash:   solana.Hash(sha256.Sum256([]byte("ledger genesis"))),
		height:      1000,
		slot:        1000,
		lifetime:    150,
		recent:      make(map[solana.Hash]uint64),
	}
}

// Fund credits lamports to a system-owned account.
func (l *Ledger) Fund(pk solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[pk]
	if !ok {
		acc = &account{owner: solana.SystemProgramID}
		l.accounts[pk] = acc
	}
	acc.lamports += lamports
}

// SetAccount stores an arbitrary account, replacing any existing one.
func (l *Ledger) SetAccount(pk, owner solana.PublicKey, lamports uint64, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[pk] = &account{lamports: lamports, owner: owner, data: append([]byte(nil), data...)}
}

// AccountData returns a copy of an account's data and whether it exists.
func (l *Ledger) AccountData(pk solana.PublicKey) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[pk]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), acc.data...), true
}

// Balance returns an account's lamports.
func (l *Ledger) Balance(pk solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[pk]; ok {
		return acc.lamports
	}
	return 0
}

// FailAccount makes GetAccountInfo for pk return err. A nil err clears it.
func (l *Ledger) FailAccount(pk solana.PublicKey, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.accountErrs, pk)
		return
	}
	l.accountErrs[pk] = err
}

// FailSend makes SendTransaction return err without applying anything.
func (l *Ledger) FailSend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// HoldConfirmations keeps applied transactions invisible to
// GetSignatureStatuses until released.
func (l *Ledger) HoldConfirmations(hold bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hold = hold
}

// AdvanceBlockHeight moves the chain forward by n blocks.
func (l *Ledger) AdvanceBlockHeight(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	l.slot += n
}

// AdvanceEpoch moves the ledger forward by n epochs.
func (l *Ledger) AdvanceEpoch(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch += n
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// TotalCalls returns the number of RPC invocations of any method.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes every call counter.
func (l *Ledger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = make(map[string]int)
}

func (l *Ledger) info(acc *account) *rpc.AccountInfo {
	return &rpc.AccountInfo{
		Lamports: acc.lamports,
		Owner:    acc.owner.String(),
		Data:     append([]byte(nil), acc.data...),
	}
}

// GetAccountInfo returns nil, nil for unknown accounts.
func (l *Ledger) GetAccountInfo(ctx context.Context, pubkey string) (*rpc.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getAccountInfo"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pk, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return nil, &rpc.Error{Code: -32602, Message: "Invalid param: " + err.Error()}
	}
	if err := l.accountErrs[pk]; err != nil {
		return nil, err
	}
	acc, ok := l.accounts[pk]
	if !ok {
		return nil, nil
	}
	return l.info(acc), nil
}

// GetTokenAccountsByOwner returns token accounts under programID whose owner
// field matches, ordered by address.
func (l *Ledger) GetTokenAccountsByOwner(ctx context.Context, owner, programID string) ([]rpc.KeyedAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getTokenAccountsByOwner"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ownerPK, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, &rpc.Error{Code: -32602, Message: "Invalid param: " + err.Error()}
	}
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, &rpc.Error{Code: -32602, Message: "Invalid param: " + err.Error()}
	}

	var out []rpc.KeyedAccount
	for pk, acc := range l.accounts {
		if !acc.owner.Equals(program) || len(acc.data) < token2022.AccountSize {
			continue
		}
		if len(acc.data) > token2022.AccountSize && token2022.AccountType(acc.data[token2022.AccountSize]) != token2022.AccountTypeAccount {
			continue
		}
		tok, err := token2022.DecodeAccount(acc.data)
		if err != nil || !tok.Owner.Equals(ownerPK) {
			continue
		}
		out = append(out, rpc.KeyedAccount{Pubkey: pk.String(), Account: *l.info(acc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

// GetMinimumBalanceForRentExemption implements rpc.Client.
func (l *Ledger) GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getMinimumBalanceForRentExemption"]++
	return Rent(size), ctx.Err()
}

// GetLatestBlockhash implements rpc.Client.
func (l *Ledger) GetLatestBlockhash(ctx context.Context, commitment rpc.Commitment) (*rpc.Blockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getLatestBlockhash"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lastValid := l.height + l.lifetime
	if _, ok := l.recent[l.blockhash]; !ok {
		l.recent[l.blockhash] = lastValid
	}
	return &rpc.Blockhash{
		Blockhash:            l.blockhash.String(),
		LastValidBlockHeight: l.recent[l.blockhash],
	}, nil
}

// GetEpochInfo implements rpc.Client.
func (l *Ledger) GetEpochInfo(ctx context.Context, commitment rpc.Commitment) (*rpc.EpochInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getEpochInfo"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &rpc.EpochInfo{Epoch: l.epoch, AbsoluteSlot: l.slot, BlockHeight: l.height}, nil
}

// GetBlockHeight implements rpc.Client.
func (l *Ledger) GetBlockHeight(ctx context.Context, commitment rpc.Commitment) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getBlockHeight"]++
	return l.height, ctx.Err()
}

// GetSignatureStatuses implements rpc.Client.
func (l *Ledger) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*rpc.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["getSignatureStatuses"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*rpc.SignatureStatus, len(signatures))
	if l.hold {
		return out, nil
	}
	for i, sig := range signatures {
		if st, ok := l.statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// SendTransaction verifies and applies a wire-format transaction.
func (l *Ledger) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["sendTransaction"]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.sendErr != nil {
		return "", l.sendErr
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", &rpc.Error{Code: -32602, Message: "failed to deserialize transaction: " + err.Error()}
	}
	if err := l.verify(tx); err != nil {
		return "", err
	}

	sig := tx.Signatures[0].String()
	if _, dup := l.statuses[sig]; dup {
		return "", simulationError(errors.New("AlreadyProcessed"))
	}

	state := make(map[solana.PublicKey]*account, len(l.accounts))
	for pk, acc := range l.accounts {
		state[pk] = acc.clone()
	}
	x := &executor{tx: tx, state: state, epoch: l.epoch}
	if err := x.chargeFee(); err != nil {
		return "", simulationError(err)
	}
	for i, ix := range tx.Message.Instructions {
		if err := x.execute(ix); err != nil {
			return "", simulationError(fmt.Errorf("instruction %d: %w", i, err))
		}
	}

	l.accounts = state
	l.slot++
	l.height++
	// Each landed transaction produces a new blockhash.
	l.blockhash = solana.Hash(sha256.Sum256(l.blockhash[:]))
	l.statuses[sig] = &rpc.SignatureStatus{
		Slot:               l.slot,
		ConfirmationStatus: rpc.CommitmentConfirmed,
	}
	return sig, nil
}

func simulationError(err error) error {
	return &rpc.Error{Code: -32002, Message: "Transaction simulation failed: " + err.Error()}
}

func (l *Ledger) verify(tx *solana.Transaction) error {
	lastValid, ok := l.recent[tx.Message.RecentBlockhash]
	if !ok || l.height > lastValid {
		return simulationError(errors.New("Blockhash not found"))
	}
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n == 0 || len(tx.Signatures) < n || len(tx.Message.AccountKeys) < n {
		return &rpc.Error{Code: -32602, Message: "missing signatures"}
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return &rpc.Error{Code: -32602, Message: "encode message: " + err.Error()}
	}
	for i := 0; i < n; i++ {
		if !tx.Signatures[i].Verify(tx.Message.AccountKeys[i], msg) {
			return &rpc.Error{Code: -32003, Message: "Transaction signature verification failure"}
		}
	}
	return nil
}

// executor applies instructions to a cloned state.
type executor struct {
	tx    *solana.Transaction
	state map[solana.PublicKey]*account
	epoch uint64
}

func (x *executor) isSigner(pk solana.PublicKey) bool {
	n := int(x.tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(x.tx.Message.AccountKeys); i++ {
		if x.tx.Message.AccountKeys[i].Equals(pk) {
			return true
		}
	}
	return false
}

func (x *executor) chargeFee() error {
	payer := x.state[x.tx.Message.AccountKeys[0]]
	fee := uint64(SignatureFee) * uint64(x.tx.Message.Header.NumRequiredSignatures)
	if payer == nil || payer.lamports < fee {
		return errors.New("insufficient funds for fee")
	}
	payer.lamports -= fee
	return nil
}

func (x *executor) execute(ix solana.CompiledInstruction) error {
	keys := x.tx.Message.AccountKeys
	if int(ix.ProgramIDIndex) >= len(keys) {
		return errors.New("program index out of range")
	}
	accounts := make([]solana.PublicKey, len(ix.Accounts))
	for i, idx := range ix.Accounts {
		if int(idx) >= len(keys) {
			return errors.New("account index out of range")
		}
		accounts[i] = keys[idx]
	}

	program := keys[ix.ProgramIDIndex]
	switch {
	case program.Equals(solana.SystemProgramID):
		return x.system(accounts, ix.Data)
	case program.Equals(token2022.ProgramID):
		return x.token(accounts, ix.Data)
	case program.Equals(token2022.AssociatedTokenProgram):
		return x.associated(accounts)
	default:
		return fmt.Errorf("unsupported program %s", program)
	}
}

func need(accounts []solana.PublicKey, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("expected %d accounts, got %d", n, len(accounts))
	}
	return nil
}

func (x *executor) debit(pk solana.PublicKey, lamports uint64) error {
	acc := x.state[pk]
	if acc == nil || acc.lamports < lamports {
		return fmt.Errorf("insufficient lamports in %s", pk)
	}
	acc.lamports -= lamports
	return nil
}

func (x *executor) credit(pk solana.PublicKey, lamports uint64) {
	acc, ok := x.state[pk]
	if !ok {
		acc = &account{owner: solana.SystemProgramID}
		x.state[pk] = acc
	}
	acc.lamports += lamports
}

func (x *executor) system(accounts []solana.PublicKey, data []byte) error {
	if len(data) < 4 {
		return errors.New("system: short instruction")
	}
	switch binary.LittleEndian.Uint32(data) {
	case 0: // CreateAccount
		if err := need(accounts, 2); err != nil {
			return err
		}
		if len(data) < 4+8+8+32 {
			return errors.New("system: short create account")
		}
		from, to := accounts[0], accounts[1]
		if !x.isSigner(from) || !x.isSigner(to) {
			return errors.New("system: create account requires both signatures")
		}
		if existing, ok := x.state[to]; ok && (existing.lamports > 0 || len(existing.data) > 0) {
			return fmt.Errorf("system: account %s already in use", to)
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		space := binary.LittleEndian.Uint64(data[12:])
		owner := solana.PublicKeyFromBytes(data[20:52])
		if err := x.debit(from, lamports); err != nil {
			return err
		}
		x.state[to] = &account{lamports: lamports, owner: owner, data: make([]byte, space)}
		return nil
	case 2: // Transfer
		if err := need(accounts, 2); err != nil {
			return err
		}
		if len(data) < 12 {
			return errors.New("system: short transfer")
		}
		if !x.isSigner(accounts[0]) {
			return errors.New("system: transfer source must sign")
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		if err := x.debit(accounts[0], lamports); err != nil {
			return err
		}
		x.credit(accounts[1], lamports)
		return nil
	default:
		return fmt.Errorf("system: unsupported instruction %d", binary.LittleEndian.Uint32(data))
	}
}

// ensureRent fails when an account's lamports no longer cover its size.
func ensureRent(pk solana.PublicKey, acc *account) error {
	if acc.lamports < Rent(len(acc.data)) {
		return fmt.Errorf("account %s: insufficient funds for rent", pk)
	}
	return nil
}
