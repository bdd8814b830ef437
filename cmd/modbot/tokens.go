package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Credentials file contents. Env vars take precedence over the file.
type Tokens struct {
	Discord string `json:"discord"`
	// Google service account key, used for the Vertex AI classifier
	Google json.RawMessage `json:"google,omitempty"`
	Hive   string          `json:"hive,omitempty"`
}

// Reads the tokens file (a missing file is fine if env vars cover it), applies env overrides, and checks the classifier backend has what it needs.
func loadTokens(path, classifier string) (*Tokens, error) {
	var tok Tokens
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// env only
	case err != nil:
		return nil, fmt.Errorf("reading tokens file: %w", err)
	default:
		if err := json.Unmarshal(b, &tok); err != nil {
			return nil, fmt.Errorf("parsing tokens file %s: %w", path, err)
		}
	}

	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		tok.Discord = v
	}
	if v := os.Getenv("HIVE_API_TOKEN"); v != "" {
		tok.Hive = v
	}

	if tok.Discord == "" {
		return nil, fmt.Errorf("no discord token in %s or DISCORD_TOKEN", path)
	}
	switch classifier {
	case "vertex":
		if len(tok.Google) == 0 || string(tok.Google) == "null" {
			return nil, fmt.Errorf("no 'google' credentials found in %s", path)
		}
	case "hive":
		if tok.Hive == "" {
			return nil, fmt.Errorf("no hive token in %s or HIVE_API_TOKEN", path)
		}
	case "none":
	default:
		return nil, fmt.Errorf("unknown classifier backend: %q", classifier)
	}
	return &tok, nil
}
