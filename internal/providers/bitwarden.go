package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultBitwardenFolder is the item name prefix used when the URI sets no
// folder format. {project} and {profile} are substituted.
const DefaultBitwardenFolder = "secretspec/{project}/{profile}"

// BitwardenConfig holds the settings parsed from a bitwarden:// URI.
type BitwardenConfig struct {
	Organization string
	Collection   string
	Server       string
	// Folder is the item name prefix format, see DefaultBitwardenFolder.
	Folder string
	// ItemType is the type of newly created items. Zero means login.
	ItemType BitwardenItemType
	// Field forces the item field that is read and written.
	Field string
}

// ApplyEnv overrides the configuration with the BITWARDEN_* environment
// variables.
func (c *BitwardenConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("BITWARDEN_ORGANIZATION"); ok && v != "" {
		c.Organization = v
	}
	if v, ok := lookup("BITWARDEN_COLLECTION"); ok && v != "" {
		c.Collection = v
	}
	if v, ok := lookup("BITWARDEN_DEFAULT_TYPE"); ok {
		if t, ok := ParseBitwardenItemType(v); ok {
			c.ItemType = t
		}
	}
	if v, ok := lookup("BITWARDEN_DEFAULT_FIELD"); ok && v != "" {
		c.Field = v
	}
}

// BitwardenProvider stores secrets as items in a Bitwarden Password Manager
// vault through the bw CLI. Items are named {folder}/{key}; the value lives
// in the field appropriate for the item type.
type BitwardenProvider struct {
	config   BitwardenConfig
	executor pkgexec.CommandExecutor
	logger   *logging.Logger
}

// NewBitwardenProvider creates a new Bitwarden provider
func NewBitwardenProvider(config BitwardenConfig) *BitwardenProvider {
	return NewBitwardenProviderWithExecutor(config, pkgexec.DefaultExecutor())
}

// NewBitwardenProviderWithExecutor creates a Bitwarden provider that runs
// bw through executor.
func NewBitwardenProviderWithExecutor(config BitwardenConfig, executor pkgexec.CommandExecutor) *BitwardenProvider {
	if config.Folder == "" {
		config.Folder = DefaultBitwardenFolder
	}
	if config.ItemType == 0 {
		config.ItemType = BitwardenLogin
	}
	return &BitwardenProvider{
		config:   config,
		executor: executor,
		logger:   logging.New(false, false),
	}
}

// NewBitwardenProviderFactory handles
// bitwarden://[org@]collection?org=&collection=&server=&folder=&type=&field=
func NewBitwardenProviderFactory(u provider.URI) (provider.Provider, error) {
	var cfg BitwardenConfig
	if u.Host != "" && u.Host != "localhost" {
		cfg.Collection = u.Host
		cfg.Organization = u.User
	}
	for _, name := range []string{"org", "organization"} {
		if v := u.Param(name); v != "" {
			cfg.Organization = v
		}
	}
	if v := u.Param("collection"); v != "" {
		cfg.Collection = v
	}
	cfg.Server = u.Param("server")
	cfg.Folder = u.Param("folder")
	cfg.Field = u.Param("field")
	if v := u.Param("type"); v != "" {
		t, ok := ParseBitwardenItemType(v)
		if !ok {
			return nil, provider.InvalidURIError{URI: u.Raw, Reason: fmt.Sprintf("unknown bitwarden item type %q", v)}
		}
		cfg.ItemType = t
	}
	cfg.ApplyEnv(os.LookupEnv)
	return NewBitwardenProvider(cfg), nil
}

func (bw *BitwardenProvider) Name() string { return "bitwarden" }

func (bw *BitwardenProvider) Description() string {
	return "Bitwarden Password Manager via the bw CLI"
}

func (bw *BitwardenProvider) AllowsSet() bool { return true }

// ItemName returns the vault item name used for addr.
func (bw *BitwardenProvider) ItemName(addr provider.Address) string {
	folder := strings.NewReplacer("{project}", addr.Project, "{profile}", addr.Profile).Replace(bw.config.Folder)
	return folder + "/" + addr.Key
}

var bitwardenAuthMarkers = []string{
	"You are not logged in",
	"Vault is locked",
	"Session key is invalid",
}

// Get finds the item for addr and extracts the value for its type. The
// namespaced item wins; otherwise an unmanaged item named exactly like the
// key, then one whose name contains it, is used.
func (bw *BitwardenProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	if err := bw.checkUnlocked(ctx); err != nil {
		return "", false, err
	}
	items, err := bw.search(ctx, addr.Key)
	if err != nil {
		return "", false, err
	}
	item := bw.match(items, addr, true)
	if item == nil {
		return "", false, nil
	}
	value, ok := item.extract(addr.Key, bw.config.Field)
	return value, ok, nil
}

// Set updates the namespaced item for addr or creates it. Unmanaged items
// that only resemble the key are never modified.
func (bw *BitwardenProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	if err := bw.checkUnlocked(ctx); err != nil {
		return err
	}
	items, err := bw.search(ctx, addr.Key)
	if err != nil {
		return err
	}

	if item := bw.match(items, addr, false); item != nil {
		bw.logger.Debug("bw edit item %s (%s) = %s", item.ID, item.Name, logging.Secret(value))
		raw, err := bw.getRawItem(ctx, item.ID)
		if err != nil {
			return err
		}
		field := bw.targetField(item.Type, addr.Key)
		if err := setItemField(raw, item.Type, field, value); err != nil {
			return err
		}
		return bw.write(ctx, addr, "edit", raw, "item", item.ID)
	}

	raw := bw.newItem(addr)
	if err := setItemField(raw, bw.config.ItemType, bw.targetField(bw.config.ItemType, addr.Key), value); err != nil {
		return err
	}
	bw.logger.Debug("bw create item %s = %s", bw.ItemName(addr), logging.Secret(value))
	return bw.write(ctx, addr, "create", raw, "item")
}

func (bw *BitwardenProvider) targetField(t BitwardenItemType, key string) string {
	if bw.config.Field != "" {
		return bw.config.Field
	}
	return t.DefaultField(key)
}

func (bw *BitwardenProvider) match(items []BitwardenItem, addr provider.Address, fuzzy bool) *BitwardenItem {
	name := bw.ItemName(addr)
	for i := range items {
		if items[i].Name == name {
			return &items[i]
		}
	}
	if !fuzzy {
		return nil
	}
	for i := range items {
		if !items[i].managed() && items[i].Name == addr.Key {
			return &items[i]
		}
	}
	for i := range items {
		if !items[i].managed() && containsFold(items[i].Name, addr.Key) {
			return &items[i]
		}
	}
	return nil
}

func (bw *BitwardenProvider) checkUnlocked(ctx context.Context) error {
	stdout, err := bw.run(ctx, "status", nil, "status")
	if err != nil {
		return err
	}
	var status BitwardenStatus
	if err := json.Unmarshal(stdout, &status); err != nil {
		return fmt.Errorf("failed to parse bitwarden status: %w", err)
	}
	switch status.Status {
	case "unlocked":
		return nil
	case "unauthenticated":
		return provider.UnavailableError{Provider: bw.Name(), Message: "not logged in. Run: bw login"}
	case "locked":
		return provider.UnavailableError{Provider: bw.Name(), Message: "vault is locked. Run: bw unlock and export BW_SESSION"}
	default:
		return provider.UnavailableError{Provider: bw.Name(), Message: fmt.Sprintf("unknown status: %s", status.Status)}
	}
}

func (bw *BitwardenProvider) search(ctx context.Context, key string) ([]BitwardenItem, error) {
	args := []string{"list", "items", "--search", key}
	if bw.config.Organization != "" {
		args = append(args, "--organizationid", bw.config.Organization)
	}
	if bw.config.Collection != "" {
		args = append(args, "--collectionid", bw.config.Collection)
	}
	stdout, err := bw.run(ctx, "list", nil, args...)
	if err != nil {
		return nil, err
	}
	var items []BitwardenItem
	if err := json.Unmarshal(stdout, &items); err != nil {
		return nil, fmt.Errorf("failed to parse bitwarden items: %w", err)
	}
	return items, nil
}

func (bw *BitwardenProvider) getRawItem(ctx context.Context, id string) (map[string]any, error) {
	stdout, err := bw.run(ctx, "get", nil, "get", "item", id)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bitwarden item: %w", err)
	}
	return raw, nil
}

func (bw *BitwardenProvider) newItem(addr provider.Address) map[string]any {
	item := map[string]any{
		"type":   int(bw.config.ItemType),
		"name":   bw.ItemName(addr),
		"notes":  managedSecretNote + addr.Path(),
		"fields": []any{},
	}
	if bw.config.Organization != "" {
		item["organizationId"] = bw.config.Organization
	}
	if bw.config.Collection != "" {
		item["collectionIds"] = []any{bw.config.Collection}
	}
	switch bw.config.ItemType {
	case BitwardenLogin:
		item["login"] = map[string]any{"uris": []any{}}
	case BitwardenSecureNote:
		item["secureNote"] = map[string]any{"type": 0}
	}
	return item
}

// write sends an item to bw create/edit. The JSON is passed base64-encoded
// on stdin, the form bw expects, so the value never appears in arguments.
func (bw *BitwardenProvider) write(ctx context.Context, addr provider.Address, op string, item map[string]any, args ...string) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode bitwarden item: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err = bw.run(ctx, op, []byte(encoded), append([]string{op}, args...)...)
	if err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) && mentions([]byte(cliErr.Stderr), "permission", "not allowed", "read-only") {
			return provider.WriteRejectedError{Provider: bw.Name(), Key: addr.Key, Err: err}
		}
		return err
	}
	return nil
}

func (bw *BitwardenProvider) run(ctx context.Context, op string, stdin []byte, args ...string) ([]byte, error) {
	cmd := pkgexec.Command{Name: "bw", Args: args, Stdin: stdin}
	if bw.config.Server != "" {
		cmd.Env = append(cmd.Env, "BW_SERVER="+bw.config.Server)
	}
	stdout, stderr, err := bw.executor.Run(ctx, cmd)
	if err != nil {
		return nil, cliFailure(bw.Name(), "bw", op, stderr, err, bitwardenAuthMarkers...)
	}
	return stdout, nil
}

// Bitwarden data structures

// BitwardenStatus represents the status response from 'bw status'
type BitwardenStatus struct {
	Status    string `json:"status"`
	LastSync  string `json:"lastSync"`
	UserEmail string `json:"userEmail"`
	UserID    string `json:"userId"`
}

// BitwardenItemType represents the type of Bitwarden item
type BitwardenItemType int

const (
	BitwardenLogin      BitwardenItemType = 1
	BitwardenSecureNote BitwardenItemType = 2
	BitwardenCard       BitwardenItemType = 3
	BitwardenIdentity   BitwardenItemType = 4
	BitwardenSSHKey     BitwardenItemType = 5
)

// ParseBitwardenItemType accepts the item type names used in URIs and
// BITWARDEN_DEFAULT_TYPE.
func ParseBitwardenItemType(s string) (BitwardenItemType, bool) {
	switch strings.ToLower(s) {
	case "login":
		return BitwardenLogin, true
	case "securenote", "secure_note", "note":
		return BitwardenSecureNote, true
	case "card":
		return BitwardenCard, true
	case "identity":
		return BitwardenIdentity, true
	case "sshkey", "ssh_key", "ssh":
		return BitwardenSSHKey, true
	}
	return 0, false
}

func (t BitwardenItemType) String() string {
	switch t {
	case BitwardenLogin:
		return "login"
	case BitwardenSecureNote:
		return "securenote"
	case BitwardenCard:
		return "card"
	case BitwardenIdentity:
		return "identity"
	case BitwardenSSHKey:
		return "sshkey"
	}
	return fmt.Sprintf("type-%d", int(t))
}

// DefaultField picks the field a value is written to for a key, using the
// same hints Get uses when reading. Secure notes always use the custom
// field "value".
func (t BitwardenItemType) DefaultField(key string) string {
	layout := bitwardenLayouts[t]
	if field := layout.hinted(key); field != "" {
		return field
	}
	if len(layout.defaults) > 0 {
		return layout.defaults[0]
	}
	return "value"
}

// BitwardenItem represents a Bitwarden vault item
type BitwardenItem struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organizationId"`
	FolderID       string            `json:"folderId"`
	Type           BitwardenItemType `json:"type"`
	Name           string            `json:"name"`
	Notes          string            `json:"notes"`
	Fields         []BitwardenField  `json:"fields"`
	CollectionIDs  []string          `json:"collectionIds"`
	RevisionDate   string            `json:"revisionDate"`

	Login    map[string]any `json:"login"`
	Card     map[string]any `json:"card"`
	Identity map[string]any `json:"identity"`
	SSHKey   map[string]any `json:"sshKey"`
}

// BitwardenField represents a custom field in a Bitwarden item
type BitwardenField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Custom field types.
const (
	BitwardenFieldText   = 0
	BitwardenFieldHidden = 1
)

// BitwardenFieldType returns hidden for field names that look sensitive.
func BitwardenFieldType(name string) int {
	for _, marker := range []string{"password", "secret", "token", "key", "value", "code", "cvv", "cvc"} {
		if containsFold(name, marker) {
			return BitwardenFieldHidden
		}
	}
	return BitwardenFieldText
}

func (item *BitwardenItem) managed() bool {
	return strings.HasPrefix(item.Notes, managedSecretNote)
}

func (item *BitwardenItem) section() map[string]any {
	switch item.Type {
	case BitwardenLogin:
		return item.Login
	case BitwardenCard:
		return item.Card
	case BitwardenIdentity:
		return item.Identity
	case BitwardenSSHKey:
		return item.SSHKey
	}
	return nil
}

func (item *BitwardenItem) builtin(jsonKey string) (string, bool) {
	v, ok := item.section()[jsonKey].(string)
	return v, ok && v != ""
}

// custom finds a custom field by exact name, then by substring, ignoring
// case in both passes.
func (item *BitwardenItem) custom(name string) (string, bool) {
	for _, f := range item.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	for _, f := range item.Fields {
		if containsFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// extract returns the secret value held by the item. A forced field is
// authoritative. Otherwise the key is used as a hint for which built-in
// field to read before falling back to the type's defaults and custom
// fields.
func (item *BitwardenItem) extract(hint, field string) (string, bool) {
	layout := bitwardenLayouts[item.Type]

	if item.Type == BitwardenSecureNote {
		if field != "" {
			if v, ok := item.custom(field); ok {
				return v, true
			}
		}
		for _, name := range []string{"value", hint} {
			if v, ok := item.custom(name); ok {
				return v, true
			}
		}
		return item.Notes, item.Notes != ""
	}

	if field != "" {
		if key, ok := layout.resolve(field); ok {
			return item.builtin(key)
		}
		return item.custom(field)
	}

	if key := layout.hinted(hint); key != "" {
		if v, ok := item.builtin(key); ok {
			return v, true
		}
	}
	for _, key := range layout.defaults {
		if v, ok := item.builtin(key); ok {
			return v, true
		}
	}
	return item.custom(hint)
}

// setItemField writes value into a raw item document. Built-in fields go
// into the type's section; anything else becomes a custom field.
func setItemField(raw map[string]any, t BitwardenItemType, field, value string) error {
	layout, ok := bitwardenLayouts[t]
	if !ok {
		return fmt.Errorf("unsupported bitwarden item type %d", int(t))
	}
	if key, ok := layout.resolve(field); ok {
		section, _ := raw[layout.section].(map[string]any)
		if section == nil {
			section = map[string]any{}
		}
		section[key] = value
		raw[layout.section] = section
		return nil
	}

	fields, _ := raw["fields"].([]any)
	for _, f := range fields {
		m, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); strings.EqualFold(name, field) {
			m["value"] = value
			raw["fields"] = fields
			return nil
		}
	}
	raw["fields"] = append(fields, map[string]any{
		"name":  field,
		"value": value,
		"type":  BitwardenFieldType(field),
	})
	return nil
}

type bitwardenHint struct {
	markers []string
	field   string
}

// bitwardenLayout describes where an item type keeps its values: the JSON
// section, the accepted field aliases, key hints and default fields.
type bitwardenLayout struct {
	section  string
	fields   map[string]string
	hints    []bitwardenHint
	defaults []string
}

// resolve maps a field alias or JSON key to the JSON key of a built-in
// field.
func (l bitwardenLayout) resolve(field string) (string, bool) {
	if key, ok := l.fields[strings.ToLower(field)]; ok {
		return key, true
	}
	for _, key := range l.fields {
		if strings.EqualFold(key, field) {
			return key, true
		}
	}
	return "", false
}

func (l bitwardenLayout) hinted(key string) string {
	for _, h := range l.hints {
		for _, m := range h.markers {
			if containsFold(key, m) {
				return h.field
			}
		}
	}
	return ""
}

var bitwardenLayouts = map[BitwardenItemType]bitwardenLayout{
	BitwardenLogin: {
		section: "login",
		fields:  map[string]string{"password": "password", "username": "username", "totp": "totp"},
		hints: []bitwardenHint{
			{[]string{"password", "pass", "secret", "token"}, "password"},
			{[]string{"user", "login"}, "username"},
			{[]string{"totp", "2fa", "mfa"}, "totp"},
		},
		defaults: []string{"password", "username"},
	},
	BitwardenSecureNote: {},
	BitwardenCard: {
		section: "card",
		fields: map[string]string{
			"number": "number", "code": "code", "cvv": "code", "cvc": "code",
			"cardholder": "cardholderName", "name": "cardholderName", "brand": "brand",
			"expmonth": "expMonth", "exp_month": "expMonth", "expyear": "expYear", "exp_year": "expYear",
		},
		hints: []bitwardenHint{
			{[]string{"number", "card"}, "number"},
			{[]string{"code", "cvv", "cvc"}, "code"},
			{[]string{"cardholder", "name"}, "cardholderName"},
		},
		defaults: []string{"number"},
	},
	BitwardenIdentity: {
		section: "identity",
		fields: map[string]string{
			"email": "email", "username": "username", "phone": "phone",
			"firstname": "firstName", "first_name": "firstName",
			"lastname": "lastName", "last_name": "lastName", "company": "company",
		},
		hints: []bitwardenHint{
			{[]string{"email", "mail"}, "email"},
			{[]string{"phone", "tel"}, "phone"},
			{[]string{"user", "login"}, "username"},
		},
		defaults: []string{"email", "username"},
	},
	BitwardenSSHKey: {
		section: "sshKey",
		fields: map[string]string{
			"private_key": "privateKey", "privatekey": "privateKey", "private": "privateKey",
			"public_key": "publicKey", "publickey": "publicKey", "public": "publicKey",
			"fingerprint": "keyFingerprint", "key_fingerprint": "keyFingerprint",
		},
		hints: []bitwardenHint{
			{[]string{"public", "pub"}, "publicKey"},
			{[]string{"fingerprint", "finger"}, "keyFingerprint"},
		},
		defaults: []string{"privateKey"},
	},
}
