package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// keyringKey is where the passphrase-encrypted identity is kept in the
// wrapped store.
const keyringKey = "keyring.age"

// AgeStore encrypts blobs at rest with an X25519 identity. The identity is
// generated on first use and stored in the wrapped store, encrypted with a
// passphrase through age's scrypt recipient.
type AgeStore struct {
	inner    Store
	identity *age.X25519Identity
}

var _ Store = (*AgeStore)(nil)

// AgeOptions tune passphrase hashing. WorkFactor zero keeps age's default.
type AgeOptions struct {
	WorkFactor int
}

// OpenAgeStore unlocks the keyring in inner with passphrase, creating it if
// absent.
func OpenAgeStore(ctx context.Context, inner Store, passphrase string, opts AgeOptions) (*AgeStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}

	var sealed bytes.Buffer
	err := inner.Get(ctx, keyringKey, &sealed)
	switch {
	case errors.Is(err, ErrNotFound):
		identity, err := setupKeyring(ctx, inner, passphrase, opts)
		if err != nil {
			return nil, err
		}
		return &AgeStore{inner: inner, identity: identity}, nil
	case err != nil:
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	identity, err := unlockKeyring(sealed.Bytes(), passphrase, opts)
	if err != nil {
		return nil, err
	}
	return &AgeStore{inner: inner, identity: identity}, nil
}

func setupKeyring(ctx context.Context, inner Store, passphrase string, opts AgeOptions) (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if opts.WorkFactor > 0 {
		recipient.SetWorkFactor(opts.WorkFactor)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return nil, fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	if err := inner.Put(ctx, keyringKey, bytes.NewReader(sealed.Bytes()), int64(sealed.Len())); err != nil {
		return nil, fmt.Errorf("storing keyring: %w", err)
	}
	return identity, nil
}

func unlockKeyring(sealed []byte, passphrase string, opts AgeOptions) (*age.X25519Identity, error) {
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	if opts.WorkFactor > 0 {
		scrypt.SetMaxWorkFactor(opts.WorkFactor)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	keyData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(keyData)))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return identity, nil
}

// Recipient returns the public key blobs are encrypted to.
func (a *AgeStore) Recipient() string {
	return a.identity.Recipient().String()
}

func (a *AgeStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, a.identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return a.inner.Put(ctx, key, bytes.NewReader(sealed.Bytes()), int64(sealed.Len()))
}

func (a *AgeStore) Get(ctx context.Context, key string, w io.Writer) error {
	var sealed bytes.Buffer
	if err := a.inner.Get(ctx, key, &sealed); err != nil {
		return err
	}
	r, err := age.Decrypt(&sealed, a.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
