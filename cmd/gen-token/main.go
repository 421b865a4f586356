// Command gen-token signs bearer tokens with the configured auth secret, for
// scripting against a local planner without going through /auth/login.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"schedule-planner/api"
	"schedule-planner/config"
)

func main() {
	var (
		configPath = flag.StringP("config", "c", "", "path to a TOML config file")
		count      = flag.Int("count", 1, "number of tokens to generate")
		prefix     = flag.String("prefix", "planner-user", "prefix for generated user IDs when count > 1")
		start      = flag.Int("start", 1, "starting index for generated user IDs when count > 1")
		ttl        = flag.Duration("ttl", time.Hour, "token lifetime")
		output     = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	if *start < 1 {
		log.Fatal("start index must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	auth := api.NewAuth(nil, cfg.Auth.Auth0Audience, "", []byte(cfg.Auth.Secret))
	auth.TokenTTL = *ttl

	tokens, err := generateTokens(auth, userIDs(*count, *prefix, *start, args))
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func userIDs(count int, prefix string, start int, args []string) []string {
	if len(args) > 0 {
		return args[:1]
	}
	if count == 1 {
		return []string{prefix}
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, start+i)
	}
	return ids
}

func generateTokens(issuer api.TokenIssuer, ids []string) ([]string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tok, _, err := issuer.IssueToken(id)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
