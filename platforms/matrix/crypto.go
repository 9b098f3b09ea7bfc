package matrix

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// InitCrypto enables end-to-end encryption backed by a sqlite store at dbPath.
// An empty dbPath leaves the client unencrypted.
func InitCrypto(ctx context.Context, client *mautrix.Client, dbPath, pickleKey string, log zerolog.Logger) error {
	if dbPath == "" {
		log.Warn().Msg("⚠️ Crypto DB path not set. E2EE disabled.")
		return nil
	}
	if pickleKey == "" {
		return fmt.Errorf("pickle_key is required when crypto_db_path is set")
	}

	helper, err := cryptohelper.NewCryptoHelper(client, []byte(pickleKey), dbPath)
	if err != nil {
		return fmt.Errorf("failed to create crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return fmt.Errorf("failed to init crypto: %w", err)
	}

	client.Crypto = helper
	log.Info().Msg("🔒 End-to-End Encryption initialized")
	return nil
}
