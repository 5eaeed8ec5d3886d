package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/pkg/provider"
)

// EnvAgeIdentity names an identity file used when the URI has none.
const EnvAgeIdentity = "SECRETSPEC_AGE_IDENTITY"

// AgeConfig describes an age-encrypted secrets file.
type AgeConfig struct {
	Path         string
	IdentityFile string
	// Recipients are extra public keys the file is encrypted to, in
	// addition to the recipients of the loaded identities.
	Recipients []string
	Armor      bool
}

// AgeProvider keeps every secret in one age-encrypted JSON object keyed by
// {project}/{profile}/{key}. Each write decrypts, updates and re-encrypts
// the whole file.
type AgeProvider struct {
	config AgeConfig
	logger *logging.Logger

	mu         sync.Mutex
	identities []age.Identity
}

// NewAgeProvider creates an age provider. The identity file is read on
// first use.
func NewAgeProvider(config AgeConfig) *AgeProvider {
	return &AgeProvider{config: config, logger: logging.New(false, false)}
}

// NewAgeProviderWithIdentities creates an age provider with identities
// already loaded.
func NewAgeProviderWithIdentities(config AgeConfig, identities ...age.Identity) *AgeProvider {
	p := NewAgeProvider(config)
	p.identities = identities
	return p
}

// NewAgeProviderFactory handles age:path?identity=&recipient=&armor=
func NewAgeProviderFactory(u provider.URI) (provider.Provider, error) {
	config := AgeConfig{
		Path:         expandHome(u.Location()),
		IdentityFile: expandHome(u.Param("identity")),
		Recipients:   u.Query["recipient"],
		Armor:        u.Param("armor") == "true",
	}
	if config.Path == "" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "a file path is required (age:secrets.age)"}
	}
	if config.IdentityFile == "" {
		config.IdentityFile = expandHome(os.Getenv(EnvAgeIdentity))
	}
	if len(config.Recipients) > 0 {
		if _, err := age.ParseRecipients(strings.NewReader(strings.Join(config.Recipients, "\n"))); err != nil {
			return nil, provider.InvalidURIError{URI: u.String(), Reason: "invalid recipient", Err: err}
		}
	}
	return NewAgeProvider(config), nil
}

func (p *AgeProvider) Name() string { return "age" }

func (p *AgeProvider) Description() string {
	return "An age-encrypted JSON file (" + p.config.Path + ")"
}

func (p *AgeProvider) AllowsSet() bool { return true }

func (p *AgeProvider) loadIdentities() ([]age.Identity, error) {
	if p.identities != nil {
		return p.identities, nil
	}
	if p.config.IdentityFile == "" {
		return nil, provider.UnavailableError{
			Provider: p.Name(),
			Message:  "no identity; pass ?identity= or set " + EnvAgeIdentity,
		}
	}

	f, err := os.Open(p.config.IdentityFile)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Message: "failed to read identity", Err: err}
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, provider.UnavailableError{Provider: p.Name(), Message: "invalid identity file " + p.config.IdentityFile, Err: err}
	}
	p.identities = identities
	return identities, nil
}

func (p *AgeProvider) recipients(identities []age.Identity) ([]age.Recipient, error) {
	var recipients []age.Recipient
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			recipients = append(recipients, x.Recipient())
		}
	}
	if len(p.config.Recipients) > 0 {
		extra, err := age.ParseRecipients(strings.NewReader(strings.Join(p.config.Recipients, "\n")))
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, extra...)
	}
	if len(recipients) == 0 {
		return nil, errors.New("no X25519 identity or recipient to encrypt to")
	}
	return recipients, nil
}

// read decrypts the file. A missing file holds no secrets.
func (p *AgeProvider) read(identities []age.Identity) (map[string]string, error) {
	data, err := os.ReadFile(p.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.config.Path, err)
	}

	var src io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(armor.Header)) {
		src = armor.NewReader(bytes.NewReader(data))
	}
	r, err := age.Decrypt(src, identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, provider.UnavailableError{Provider: p.Name(), Message: "no identity matches " + p.config.Path, Err: err}
		}
		return nil, fmt.Errorf("failed to decrypt %s: %w", p.config.Path, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", p.config.Path, err)
	}

	secrets := map[string]string{}
	if len(bytes.TrimSpace(plaintext)) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("%s does not contain a JSON object: %w", p.config.Path, err)
	}
	return secrets, nil
}

func (p *AgeProvider) write(secrets map[string]string, recipients []age.Recipient) error {
	plaintext, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	var dst io.WriteCloser = nopWriteCloser{&buf}
	if p.config.Armor {
		dst = armor.NewWriter(&buf)
	}
	w, err := age.Encrypt(dst, recipients...)
	if err != nil {
		return err
	}
	if _, err := w.Write(plaintext); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return writeFileAtomic(p.config.Path, buf.Bytes())
}

// Get decrypts the file and looks up addr.
func (p *AgeProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identities, err := p.loadIdentities()
	if err != nil {
		return "", false, err
	}
	secrets, err := p.read(identities)
	if err != nil {
		return "", false, err
	}
	value, ok := secrets[addr.Path()]
	return value, ok, nil
}

// Set re-encrypts the file with addr updated.
func (p *AgeProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	identities, err := p.loadIdentities()
	if err != nil {
		return err
	}
	secrets, err := p.read(identities)
	if err != nil {
		return err
	}
	recipients, err := p.recipients(identities)
	if err != nil {
		return provider.WriteRejectedError{Provider: p.Name(), Key: addr.Key, Err: err}
	}

	secrets[addr.Path()] = value
	p.logger.Debug("age set %s in %s = %s", addr.Path(), p.config.Path, logging.Secret(value))

	if err := p.write(secrets, recipients); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return provider.WriteRejectedError{Provider: p.Name(), Key: addr.Key, Err: err}
		}
		return fmt.Errorf("failed to write %s: %w", p.config.Path, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
