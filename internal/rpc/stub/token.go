package stub

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/token2022"
)

// reader is a sticky-error instruction data reader.
type reader struct {
	dec *bin.Decoder
	err error
}

func newReader(data []byte) *reader {
	return &reader{dec: bin.NewBinDecoder(data)}
}

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(bin.LE)
	r.err = err
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	r.err = err
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.err = err
	return v
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.dec.Remaining() {
		r.err = fmt.Errorf("want %d bytes, have %d", n, r.dec.Remaining())
		return nil
	}
	v, err := r.dec.ReadNBytes(n)
	r.err = err
	return v
}

func (r *reader) pubkey() solana.PublicKey {
	b := r.bytes(32)
	if b == nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *reader) str() string {
	return string(r.bytes(int(r.u32())))
}

// option reads an instruction-form COption<Pubkey>.
func (r *reader) option() *solana.PublicKey {
	if r.u8() == 0 {
		return nil
	}
	pk := r.pubkey()
	return &pk
}

// mintState is a decoded mint with its raw extension list.
type mintState struct {
	pk   solana.PublicKey
	acc  *account
	mint *token2022.Mint
	exts []token2022.Extension
}

func (x *executor) loadMint(pk solana.PublicKey) (*mintState, error) {
	acc, ok := x.state[pk]
	if !ok || !acc.owner.Equals(token2022.ProgramID) {
		return nil, fmt.Errorf("mint %s: not owned by token program", pk)
	}
	if len(acc.data) > token2022.AccountSize && acc.data[token2022.AccountSize] == byte(token2022.AccountTypeAccount) {
		return nil, fmt.Errorf("mint %s: is a token account", pk)
	}
	m, err := token2022.DecodeMint(pk, acc.data)
	if err != nil {
		return nil, err
	}
	exts, err := token2022.ParseExtensions(acc.data)
	if err != nil {
		return nil, err
	}
	return &mintState{pk: pk, acc: acc, mint: m, exts: exts}, nil
}

func (s *mintState) has(typ token2022.ExtensionType) bool {
	for _, e := range s.exts {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func (s *mintState) set(typ token2022.ExtensionType, value []byte) {
	for i, e := range s.exts {
		if e.Type == typ {
			s.exts[i].Value = value
			return
		}
	}
	s.exts = append(s.exts, token2022.Extension{Type: typ, Value: value})
}

// store writes the mint back. With resize the account takes the exact
// encoded length; otherwise the encoding must fit the allocation.
func (s *mintState) store(resize bool) error {
	base := token2022.EncodeMintBase(s.mint)
	data := base
	if len(s.exts) > 0 || len(s.acc.data) > token2022.MintSize {
		data = token2022.EncodeExtended(base, token2022.AccountTypeMint, s.exts)
	}
	switch {
	case resize:
		s.acc.data = data
		return ensureRent(s.pk, s.acc)
	case len(data) > len(s.acc.data):
		return fmt.Errorf("mint %s: account too small for extensions", s.pk)
	default:
		copy(s.acc.data, data)
		return nil
	}
}

func (x *executor) token(accounts []solana.PublicKey, data []byte) error {
	if len(data) >= 8 {
		switch {
		case bytes.Equal(data[:8], token2022.DiscriminatorInitialize[:]):
			return x.initializeMetadata(accounts, data[8:])
		case bytes.Equal(data[:8], token2022.DiscriminatorUpdateField[:]):
			return x.updateField(accounts, data[8:])
		}
	}
	if len(data) == 0 {
		return errors.New("token: empty instruction")
	}
	if err := need(accounts, 1); err != nil {
		return err
	}

	switch data[0] {
	case token2022.InstructionInitializeMint:
		return x.initializeMint(accounts, data[1:])
	case token2022.InstructionMintTo:
		return x.mintTo(accounts, data[1:])
	case token2022.InstructionTransferFeeExtension:
		if len(data) < 2 {
			return errors.New("token: short transfer fee instruction")
		}
		switch data[1] {
		case token2022.TransferFeeInitializeConfig:
			return x.initializeTransferFee(accounts, data[2:])
		case token2022.TransferFeeSetTransferFee:
			return x.setTransferFee(accounts, data[2:])
		}
	case token2022.InstructionMetadataPointerExtension:
		if len(data) >= 2 && data[1] == token2022.MetadataPointerInitialize {
			return x.initializeMetadataPointer(accounts, data[2:])
		}
	}
	return fmt.Errorf("token: unsupported instruction %v", data[:min(2, len(data))])
}

func (x *executor) uninitializedMint(pk solana.PublicKey) (*mintState, error) {
	s, err := x.loadMint(pk)
	if err != nil {
		return nil, err
	}
	if s.mint.IsInitialized {
		return nil, fmt.Errorf("mint %s: already initialized", pk)
	}
	return s, nil
}

func (x *executor) initializeMetadataPointer(accounts []solana.PublicKey, data []byte) error {
	s, err := x.uninitializedMint(accounts[0])
	if err != nil {
		return err
	}
	r := newReader(data)
	authority := r.pubkey()
	address := r.pubkey()
	if r.err != nil {
		return fmt.Errorf("metadata pointer: %w", r.err)
	}
	p := &token2022.MetadataPointer{Authority: &authority, MetadataAddress: &address}
	s.set(token2022.ExtensionMetadataPointer, p.Encode())
	return s.store(false)
}

func (x *executor) initializeTransferFee(accounts []solana.PublicKey, data []byte) error {
	s, err := x.uninitializedMint(accounts[0])
	if err != nil {
		return err
	}
	r := newReader(data)
	cfg := &token2022.TransferFeeConfig{
		ConfigAuthority:   r.option(),
		WithdrawAuthority: r.option(),
	}
	fee := token2022.TransferFee{Epoch: x.epoch, FeeBasisPoints: r.u16(), MaximumFee: r.u64()}
	if r.err != nil {
		return fmt.Errorf("transfer fee config: %w", r.err)
	}
	if fee.FeeBasisPoints > 10_000 {
		return errors.New("transfer fee config: basis points exceed maximum")
	}
	cfg.Older, cfg.Newer = fee, fee
	s.set(token2022.ExtensionTransferFeeConfig, cfg.Encode())
	return s.store(false)
}

func (x *executor) setTransferFee(accounts []solana.PublicKey, data []byte) error {
	if err := need(accounts, 2); err != nil {
		return err
	}
	s, err := x.loadMint(accounts[0])
	if err != nil {
		return err
	}
	cfg := s.mint.TransferFee
	if cfg == nil {
		return errors.New("set transfer fee: mint has no transfer fee config")
	}
	authority := accounts[1]
	if cfg.ConfigAuthority == nil || !cfg.ConfigAuthority.Equals(authority) || !x.isSigner(authority) {
		return errors.New("set transfer fee: owner does not match")
	}
	r := newReader(data)
	// A new fee takes effect two epochs later.
	fee := token2022.TransferFee{Epoch: x.epoch + 2, FeeBasisPoints: r.u16(), MaximumFee: r.u64()}
	if r.err != nil {
		return fmt.Errorf("set transfer fee: %w", r.err)
	}
	if fee.FeeBasisPoints > 10_000 {
		return errors.New("set transfer fee: basis points exceed maximum")
	}
	if x.epoch >= cfg.Newer.Epoch {
		cfg.Older = cfg.Newer
	}
	cfg.Newer = fee
	s.set(token2022.ExtensionTransferFeeConfig, cfg.Encode())
	return s.store(false)
}

func (x *executor) initializeMint(accounts []solana.PublicKey, data []byte) error {
	s, err := x.uninitializedMint(accounts[0])
	if err != nil {
		return err
	}
	r := newReader(data)
	decimals := r.u8()
	authority := r.pubkey()
	freeze := r.option()
	if r.err != nil {
		return fmt.Errorf("initialize mint: %w", r.err)
	}

	types := make([]token2022.ExtensionType, 0, len(s.exts))
	for _, e := range s.exts {
		types = append(types, e.Type)
	}
	want, err := token2022.MintLen(types...)
	if err != nil {
		return err
	}
	if len(s.acc.data) != want {
		return fmt.Errorf("initialize mint: account is %d bytes, extensions need %d", len(s.acc.data), want)
	}
	if err := ensureRent(s.pk, s.acc); err != nil {
		return err
	}

	s.mint.Decimals = decimals
	s.mint.MintAuthority = &authority
	s.mint.FreezeAuthority = freeze
	s.mint.IsInitialized = true
	return s.store(false)
}

func (x *executor) mintTo(accounts []solana.PublicKey, data []byte) error {
	if err := need(accounts, 3); err != nil {
		return err
	}
	s, err := x.loadMint(accounts[0])
	if err != nil {
		return err
	}
	authority := accounts[2]
	if !s.mint.IsInitialized || s.mint.MintAuthority == nil || !s.mint.MintAuthority.Equals(authority) || !x.isSigner(authority) {
		return errors.New("mint to: owner does not match")
	}
	r := newReader(data)
	amount := r.u64()
	if r.err != nil {
		return fmt.Errorf("mint to: %w", r.err)
	}

	dest, ok := x.state[accounts[1]]
	if !ok || !dest.owner.Equals(token2022.ProgramID) {
		return fmt.Errorf("mint to: destination %s is not a token account", accounts[1])
	}
	tok, err := token2022.DecodeAccount(dest.data)
	if err != nil {
		return err
	}
	if !tok.Mint.Equals(s.pk) {
		return errors.New("mint to: account mint mismatch")
	}

	tok.Amount += amount
	s.mint.Supply += amount
	copy(dest.data, token2022.EncodeAccountBase(tok))
	return s.store(false)
}

func (x *executor) initializeMetadata(accounts []solana.PublicKey, data []byte) error {
	if err := need(accounts, 4); err != nil {
		return err
	}
	metadata, updateAuthority, mintPK, mintAuthority := accounts[0], accounts[1], accounts[2], accounts[3]
	if !metadata.Equals(mintPK) {
		return errors.New("initialize metadata: only mint-embedded metadata is supported")
	}
	s, err := x.loadMint(mintPK)
	if err != nil {
		return err
	}
	if !s.mint.IsInitialized {
		return errors.New("initialize metadata: mint not initialized")
	}
	if s.mint.MintAuthority == nil || !s.mint.MintAuthority.Equals(mintAuthority) || !x.isSigner(mintAuthority) {
		return errors.New("initialize metadata: incorrect mint authority")
	}
	p := s.mint.MetadataPointer
	if p == nil || p.MetadataAddress == nil || !p.MetadataAddress.Equals(metadata) {
		return errors.New("initialize metadata: metadata pointer mismatch")
	}
	if s.has(token2022.ExtensionTokenMetadata) {
		return errors.New("initialize metadata: already initialized")
	}

	r := newReader(data)
	m := &token2022.TokenMetadata{
		UpdateAuthority: &updateAuthority,
		Mint:            mintPK,
		Name:            r.str(),
		Symbol:          r.str(),
		URI:             r.str(),
	}
	if r.err != nil {
		return fmt.Errorf("initialize metadata: %w", r.err)
	}
	s.set(token2022.ExtensionTokenMetadata, m.Pack())
	return s.store(true)
}

func (x *executor) updateField(accounts []solana.PublicKey, data []byte) error {
	if err := need(accounts, 2); err != nil {
		return err
	}
	s, err := x.loadMint(accounts[0])
	if err != nil {
		return err
	}
	m := s.mint.Metadata
	if m == nil {
		return errors.New("update field: metadata not initialized")
	}
	authority := accounts[1]
	if m.UpdateAuthority == nil || !m.UpdateAuthority.Equals(authority) || !x.isSigner(authority) {
		return errors.New("update field: incorrect update authority")
	}

	r := newReader(data)
	field := token2022.MetadataField(r.u8())
	value := r.str()
	if r.err != nil {
		return fmt.Errorf("update field: %w", r.err)
	}
	switch field {
	case token2022.FieldName:
		m.Name = value
	case token2022.FieldSymbol:
		m.Symbol = value
	case token2022.FieldURI:
		m.URI = value
	default:
		return fmt.Errorf("update field: unsupported field %d", field)
	}
	s.set(token2022.ExtensionTokenMetadata, m.Pack())
	return s.store(true)
}

func (x *executor) associated(accounts []solana.PublicKey) error {
	if err := need(accounts, 4); err != nil {
		return err
	}
	payer, ata, owner, mintPK := accounts[0], accounts[1], accounts[2], accounts[3]
	if !x.isSigner(payer) {
		return errors.New("associated: payer must sign")
	}
	want, err := token2022.FindAssociatedTokenAddress(owner, mintPK)
	if err != nil {
		return err
	}
	if !want.Equals(ata) {
		return errors.New("associated: address does not match seed derivation")
	}
	if _, exists := x.state[ata]; exists {
		return fmt.Errorf("associated: account %s already in use", ata)
	}
	s, err := x.loadMint(mintPK)
	if err != nil {
		return err
	}
	if !s.mint.IsInitialized {
		return errors.New("associated: mint not initialized")
	}

	exts := []token2022.Extension{{Type: token2022.ExtensionImmutableOwner, Value: []byte{}}}
	if s.has(token2022.ExtensionTransferFeeConfig) {
		exts = append(exts, token2022.Extension{Type: token2022.ExtensionTransferFeeAmount, Value: make([]byte, 8)})
	}
	data := token2022.EncodeExtended(token2022.EncodeAccountBase(&token2022.Account{Mint: mintPK, Owner: owner}), token2022.AccountTypeAccount, exts)

	rent := Rent(len(data))
	if err := x.debit(payer, rent); err != nil {
		return err
	}
	x.state[ata] = &account{lamports: rent, owner: token2022.ProgramID, data: data}
	return nil
}
