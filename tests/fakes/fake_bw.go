package fakes

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FakeBitwardenCLI simulates the bw commands used by the Bitwarden
// provider: status, list items, get item, create item and edit item.
// Items are kept as raw JSON documents so tests can seed any item type.
type FakeBitwardenCLI struct {
	fakeCLI

	// Status is reported by `bw status`. Defaults to "unlocked".
	Status string

	// Items holds the vault, keyed by item id.
	Items map[string]map[string]any

	// ReadOnly makes create and edit fail with a permission error.
	ReadOnly bool

	nextID int
}

// NewFakeBitwardenCLI creates an unlocked, empty vault.
func NewFakeBitwardenCLI() *FakeBitwardenCLI {
	f := &FakeBitwardenCLI{Status: "unlocked", Items: map[string]map[string]any{}}
	f.tool = "bw"
	f.handler = f.handle
	return f
}

// AddItem seeds an item and returns its id.
func (f *FakeBitwardenCLI) AddItem(item map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store(item)
}

// ItemByName returns the first item with the given name.
func (f *FakeBitwardenCLI) ItemByName(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.Items {
		if item["name"] == name {
			return item
		}
	}
	return nil
}

func (f *FakeBitwardenCLI) store(item map[string]any) string {
	f.nextID++
	id := fmt.Sprintf("bw-%04d", f.nextID)
	item["id"] = id
	f.Items[id] = item
	return id
}

func (f *FakeBitwardenCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	pos, flags := splitArgs(args, "--search", "--organizationid", "--collectionid", "--session")
	if len(pos) == 0 {
		return failure("Usage: bw [options] [command]")
	}

	if pos[0] == "status" {
		return jsonOutput(map[string]string{"status": f.Status})
	}
	if f.Status != "unlocked" {
		return failure("Vault is locked.")
	}
	if len(pos) < 2 || pos[1] != "item" && pos[1] != "items" {
		return failure("Invalid command")
	}

	switch pos[0] {
	case "list":
		out := []map[string]any{}
		search := strings.ToLower(flags["--search"])
		for _, item := range f.Items {
			name, _ := item["name"].(string)
			if search != "" && !strings.Contains(strings.ToLower(name), search) {
				continue
			}
			if org := flags["--organizationid"]; org != "" && item["organizationId"] != org {
				continue
			}
			out = append(out, item)
		}
		return jsonOutput(out)

	case "get":
		if len(pos) < 3 {
			return failure("`id` argument is required.")
		}
		item, ok := f.Items[pos[2]]
		if !ok {
			return failure("Not found.")
		}
		return jsonOutput(item)

	case "create", "edit":
		if f.ReadOnly {
			return failure("You do not have permission to edit this item.")
		}
		item, err := decodeBitwardenItem(stdin)
		if err != nil {
			return failure(err.Error())
		}
		if pos[0] == "create" {
			f.store(item)
			return jsonOutput(item)
		}
		if len(pos) < 3 {
			return failure("`id` argument is required.")
		}
		if _, ok := f.Items[pos[2]]; !ok {
			return failure("Not found.")
		}
		item["id"] = pos[2]
		f.Items[pos[2]] = item
		return jsonOutput(item)
	}
	return failure("Invalid command: " + pos[0])
}

func jsonOutput(v any) ([]byte, []byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}

var errBadEncodedItem = errors.New("Error parsing the encoded request data.")

func decodeBitwardenItem(stdin []byte) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(stdin)))
	if err != nil {
		return nil, errBadEncodedItem
	}
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, errBadEncodedItem
	}
	return item, nil
}
