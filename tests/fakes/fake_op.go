package fakes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FakeOnePasswordCLI simulates the subset of `op` used by the 1Password
// provider: item get, item create and item edit on password items.
type FakeOnePasswordCLI struct {
	fakeCLI

	// Items maps vault -> title -> password.
	Items map[string]map[string]string

	// SignedOut makes every command fail with the CLI's sign-in error.
	SignedOut bool

	// RequireToken, when set, rejects commands that do not carry
	// OP_SERVICE_ACCOUNT_TOKEN with this value.
	RequireToken string
}

// NewFakeOnePasswordCLI creates an op fake with no items.
func NewFakeOnePasswordCLI() *FakeOnePasswordCLI {
	f := &FakeOnePasswordCLI{Items: map[string]map[string]string{}}
	f.tool = "op"
	f.handler = f.handle
	return f
}

func (f *FakeOnePasswordCLI) handle(args []string, stdin []byte, env []string) ([]byte, []byte, error) {
	if f.SignedOut {
		return failure("[ERROR] 2024/01/15 10:30:00 You are not currently signed in. Please run `op signin --help` for instructions")
	}
	if f.RequireToken != "" {
		if tok, _ := envValue(env, "OP_SERVICE_ACCOUNT_TOKEN"); tok != f.RequireToken {
			return failure("[ERROR] 2024/01/15 10:30:00 invalid bearer token")
		}
	}

	pos, flags := splitArgs(args, "--vault", "--format", "--account")
	if len(pos) < 2 || pos[0] != "item" {
		return failure(fmt.Sprintf("[ERROR] unknown command %q", strings.Join(args, " ")))
	}
	vault := flags["--vault"]
	items := f.Items[vault]

	switch pos[1] {
	case "get":
		title := pos[2]
		value, ok := items[title]
		if !ok {
			return failure(fmt.Sprintf("[ERROR] 2024/01/15 10:30:00 %q isn't an item in the %q vault. Specify the item with its UUID, name, or domain.", title, vault))
		}
		out, _ := json.Marshal(map[string]interface{}{
			"id":       itemID(title),
			"title":    title,
			"category": "PASSWORD",
			"vault":    map[string]string{"id": "v-" + vault, "name": vault},
			"fields": []map[string]string{
				{"id": "password", "type": "CONCEALED", "purpose": "PASSWORD", "label": "password", "value": value},
			},
		})
		return out, nil, nil

	case "create":
		tpl, err := parseItemTemplate(stdin)
		if err != nil {
			return failure("[ERROR] 2024/01/15 10:30:00 " + err.Error())
		}
		if items == nil {
			items = map[string]string{}
			f.Items[vault] = items
		}
		items[tpl.Title] = tpl.password()
		return []byte("{}"), nil, nil

	case "edit":
		tpl, err := parseItemTemplate(stdin)
		if err != nil {
			return failure("[ERROR] 2024/01/15 10:30:00 " + err.Error())
		}
		id := pos[2]
		for title := range items {
			if itemID(title) == id {
				items[title] = tpl.password()
				return []byte("{}"), nil, nil
			}
		}
		return failure(fmt.Sprintf("[ERROR] %q isn't an item in the %q vault", id, vault))
	}
	return failure("[ERROR] unknown item subcommand " + pos[1])
}

func itemID(title string) string {
	return fmt.Sprintf("id-%x", title)
}

type itemTemplate struct {
	Title  string `json:"title"`
	Fields []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"fields"`
}

func parseItemTemplate(stdin []byte) (*itemTemplate, error) {
	if len(stdin) == 0 {
		return nil, errors.New("expected an item template on stdin")
	}
	var tpl itemTemplate
	if err := json.Unmarshal(stdin, &tpl); err != nil {
		return nil, fmt.Errorf("invalid item template: %w", err)
	}
	return &tpl, nil
}

func (t *itemTemplate) password() string {
	for _, field := range t.Fields {
		if field.ID == "password" {
			return field.Value
		}
	}
	return ""
}
