package matrix

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/term"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

type Config struct {
	Homeserver        string   `toml:"homeserver"`
	UserID            string   `toml:"user_id"`
	RoomID            string   `toml:"room_id"`
	CredentialsDBPath string   `toml:"credentials_db_path"`
	CryptoDBPath      string   `toml:"crypto_db_path"`
	PickleKey         string   `toml:"pickle_key"`
	AutoJoinInvites   bool     `toml:"auto_join_invites"`
	IgnoreUsers       []string `toml:"ignore_users"`
}

// Session is the on-disk login: the access token sealed with a key derived from the password.
type Session struct {
	Homeserver    string   `json:"homeserver"`
	UserID        string   `json:"user_id"`
	DeviceID      string   `json:"device_id"`
	EncryptedData []byte   `json:"encrypted_data"`
	Nonce         [24]byte `json:"nonce"`
	Salt          []byte   `json:"salt"`
}

var errWrongPassword = errors.New("failed to decrypt session - wrong password?")

func deriveKey(password string, salt []byte) [32]byte {
	derived := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	var key [32]byte
	copy(key[:], derived)
	return key
}

func SealSession(homeserver, userID, deviceID, accessToken, password string) (*Session, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	key := deriveKey(password, salt)
	return &Session{
		Homeserver:    homeserver,
		UserID:        userID,
		DeviceID:      deviceID,
		EncryptedData: secretbox.Seal(nil, []byte(accessToken), &nonce, &key),
		Nonce:         nonce,
		Salt:          salt,
	}, nil
}

func (s *Session) AccessToken(password string) (string, error) {
	if len(s.Salt) == 0 {
		return "", errors.New("session file has no salt, delete it and log in again")
	}
	key := deriveKey(password, s.Salt)
	token, ok := secretbox.Open(nil, s.EncryptedData, &s.Nonce, &key)
	if !ok {
		return "", errWrongPassword
	}
	return string(token), nil
}

func getPassword() (string, error) {
	if password := os.Getenv("MATRIX_PASSWORD"); password != "" {
		return password, nil
	}

	fmt.Print("🔑 Enter Matrix password (or set MATRIX_PASSWORD env var): ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func loadSession(path, password string) (*mautrix.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	token, err := s.AccessToken(password)
	if err != nil {
		return nil, err
	}

	client, err := mautrix.NewClient(s.Homeserver, id.UserID(s.UserID), token)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	client.DeviceID = id.DeviceID(s.DeviceID)
	return client, nil
}

func loginAndSave(ctx context.Context, cfg *Config, password string, log zerolog.Logger) (*mautrix.Client, error) {
	log.Info().Str("homeserver", cfg.Homeserver).Str("user", cfg.UserID).Msg("Logging in")

	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	resp, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: cfg.UserID,
		},
		Password:         password,
		StoreCredentials: true,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	s, err := SealSession(cfg.Homeserver, cfg.UserID, string(resp.DeviceID), resp.AccessToken, password)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(cfg.CredentialsDBPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write session file: %w", err)
	}

	log.Info().Str("path", cfg.CredentialsDBPath).Msg("Session saved")
	return client, nil
}

// GetMatrixClient restores the saved session, logging in with the password on first run.
func GetMatrixClient(ctx context.Context, cfg *Config, log zerolog.Logger) (*mautrix.Client, error) {
	password, err := getPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to get password: %w", err)
	}

	var client *mautrix.Client
	if _, statErr := os.Stat(cfg.CredentialsDBPath); os.IsNotExist(statErr) {
		log.Info().Msg("First-time login detected...")
		client, err = loginAndSave(ctx, cfg, password, log)
	} else {
		log.Info().Msg("Loading existing session...")
		client, err = loadSession(cfg.CredentialsDBPath, password)
	}
	if err != nil {
		return nil, err
	}

	client.Log = log.With().Str("component", "mautrix").Logger()
	return client, nil
}
