package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// EnvOnePasswordToken is read when a onepassword+token URI carries no token.
const EnvOnePasswordToken = "OP_SERVICE_ACCOUNT_TOKEN"

// DefaultOnePasswordVault is used when the URI names no vault.
const DefaultOnePasswordVault = "Private"

// OnePasswordConfig selects the account, vault and credentials used by op.
type OnePasswordConfig struct {
	Account string
	Vault   string
	// Token is a service account token. When set, op runs with
	// OP_SERVICE_ACCOUNT_TOKEN instead of the interactive session.
	Token string
}

// OnePasswordProvider stores each secret as a Password item titled
// "secretspec/{project}/{profile}/{key}" in one vault.
type OnePasswordProvider struct {
	name     string
	config   OnePasswordConfig
	executor pkgexec.CommandExecutor
	logger   *logging.Logger
}

// NewOnePasswordProvider creates a new 1Password provider instance
func NewOnePasswordProvider(config OnePasswordConfig) *OnePasswordProvider {
	return NewOnePasswordProviderWithExecutor(config, pkgexec.DefaultExecutor())
}

// NewOnePasswordProviderWithExecutor creates a 1Password provider that runs
// op through executor.
func NewOnePasswordProviderWithExecutor(config OnePasswordConfig, executor pkgexec.CommandExecutor) *OnePasswordProvider {
	if config.Vault == "" {
		config.Vault = DefaultOnePasswordVault
	}
	name := "onepassword"
	if config.Token != "" {
		name = "onepassword+token"
	}
	return &OnePasswordProvider{
		name:     name,
		config:   config,
		executor: executor,
		logger:   logging.New(false, false),
	}
}

// NewOnePasswordProviderFactory handles onepassword://[account@]vault and
// onepassword+token://:token@vault.
func NewOnePasswordProviderFactory(u provider.URI) (provider.Provider, error) {
	config := OnePasswordConfig{
		Account: u.User,
		Vault:   u.Host,
	}
	// onepassword://vault/Production names the vault in the path.
	if path := strings.Trim(u.Path, "/"); path != "" {
		config.Vault = path
	}

	if u.Scheme == "onepassword+token" {
		config.Token = u.Password
		if config.Token == "" {
			config.Token = os.Getenv(EnvOnePasswordToken)
		}
		if config.Token == "" {
			return nil, provider.InvalidURIError{
				URI:    u.String(),
				Reason: "onepassword+token needs a token in the URI or " + EnvOnePasswordToken,
			}
		}
		config.Account = ""
	}
	return NewOnePasswordProvider(config), nil
}

func (op *OnePasswordProvider) Name() string {
	return op.name
}

func (op *OnePasswordProvider) Description() string {
	if op.config.Token != "" {
		return "1Password service account (vault " + op.config.Vault + ")"
	}
	return "1Password via the op CLI (vault " + op.config.Vault + ")"
}

func (op *OnePasswordProvider) AllowsSet() bool {
	return true
}

// ItemTitle returns the title of the item holding addr.
func (op *OnePasswordProvider) ItemTitle(addr provider.Address) string {
	return "secretspec/" + addr.Path()
}

// Get reads the password field of the item for addr.
func (op *OnePasswordProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	item, err := op.getItem(ctx, op.ItemTitle(addr))
	if err != nil || item == nil {
		return "", false, err
	}
	value, ok := item.secretValue()
	return value, ok, nil
}

// Set updates the item's password field, creating the item if needed. The
// item is piped to op as JSON on stdin so the value never appears in
// arguments.
func (op *OnePasswordProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	title := op.ItemTitle(addr)
	item, err := op.getItem(ctx, title)
	if err != nil {
		return err
	}

	var (
		args     []string
		template []byte
	)
	if item != nil {
		template, err = item.withSecretValue(value)
		args = []string{"item", "edit", item.ID, "--vault", op.config.Vault, "--format", "json"}
	} else {
		template, err = newOnePasswordTemplate(title, value)
		args = []string{"item", "create", "--vault", op.config.Vault, "--format", "json"}
	}
	if err != nil {
		return fmt.Errorf("failed to encode 1Password item: %w", err)
	}
	op.logger.Debug("op %s %s = %s", args[1], title, logging.Secret(value))

	_, stderr, err := op.run(ctx, template, args...)
	if err != nil {
		if mentions(stderr, "permission", "forbidden", "read-only", "not allowed") {
			return provider.WriteRejectedError{Provider: op.name, Key: addr.Key, Err: &CLIError{Tool: "op", Op: args[1], Stderr: string(stderr), Err: err}}
		}
		return cliFailure(op.name, "op", "item "+args[1], stderr, err, onePasswordAuthMarkers...)
	}
	return nil
}

var onePasswordAuthMarkers = []string{
	"not currently signed in",
	"you are not signed in",
	"session expired",
	"authorization prompt dismissed",
	"no accounts configured",
	"invalid bearer token",
	"unauthorized",
}

func (op *OnePasswordProvider) getItem(ctx context.Context, title string) (*OnePasswordItem, error) {
	stdout, stderr, err := op.run(ctx, nil, "item", "get", title, "--vault", op.config.Vault, "--format", "json")
	if err != nil {
		if mentions(stderr, "isn't an item", "not found", "no item found") {
			return nil, nil
		}
		return nil, cliFailure(op.name, "op", "item get", stderr, err, onePasswordAuthMarkers...)
	}

	var item OnePasswordItem
	if err := json.Unmarshal(stdout, &item); err != nil {
		return nil, fmt.Errorf("failed to parse 1Password response: %w", err)
	}
	item.raw = stdout
	return &item, nil
}

func (op *OnePasswordProvider) run(ctx context.Context, stdin []byte, args ...string) ([]byte, []byte, error) {
	if op.config.Account != "" {
		args = append(args, "--account", op.config.Account)
	}
	cmd := pkgexec.Command{Name: "op", Args: args, Stdin: stdin}
	if op.config.Token != "" {
		cmd.Env = []string{EnvOnePasswordToken + "=" + op.config.Token}
	}
	return op.executor.Run(ctx, cmd)
}

// OnePasswordItem represents the structure returned by 1Password CLI
type OnePasswordItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Vault    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"vault"`
	Fields []OnePasswordField `json:"fields"`

	// raw is the item as op printed it, kept so edits send back every
	// field the CLI returned.
	raw []byte
}

type OnePasswordField struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

// secretValue returns the password field, falling back to the first
// concealed field for items created by hand.
func (item *OnePasswordItem) secretValue() (string, bool) {
	if i := secretFieldIndex(item.Fields); i >= 0 {
		return item.Fields[i].Value, true
	}
	return "", false
}

func secretFieldIndex(fields []OnePasswordField) int {
	for i, field := range fields {
		if field.ID == "password" || field.Purpose == "PASSWORD" || strings.EqualFold(field.Label, "password") {
			return i
		}
	}
	for i, field := range fields {
		if field.Type == "CONCEALED" {
			return i
		}
	}
	return -1
}

func passwordField(value string) map[string]any {
	return map[string]any{
		"id":      "password",
		"type":    "CONCEALED",
		"purpose": "PASSWORD",
		"label":   "password",
		"value":   value,
	}
}

// newOnePasswordTemplate builds the item template op item create reads from
// stdin.
func newOnePasswordTemplate(title, value string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"title":    title,
		"category": "PASSWORD",
		"tags":     []string{"secretspec"},
		"fields":   []any{passwordField(value)},
	})
}

// withSecretValue returns the item JSON with its secret field set to value,
// adding a password field when the item has none. Fields this package does
// not model are carried through unchanged.
func (item *OnePasswordItem) withSecretValue(value string) ([]byte, error) {
	doc := map[string]any{}
	if len(item.raw) > 0 {
		if err := json.Unmarshal(item.raw, &doc); err != nil {
			return nil, err
		}
	}
	fields, _ := doc["fields"].([]any)
	if i := secretFieldIndex(item.Fields); i >= 0 && i < len(fields) {
		if field, ok := fields[i].(map[string]any); ok {
			field["value"] = value
			return json.Marshal(doc)
		}
	}
	doc["fields"] = append(fields, passwordField(value))
	return json.Marshal(doc)
}
