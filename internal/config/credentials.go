package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/leaksweep/leaksweep/internal/vcs"
)

// DotenvFile is the local file consulted for backend credentials when the
// environment does not provide them.
const DotenvFile = ".env"

// CredentialSource resolves per-backend API credentials. The environment
// wins over the dotenv file. Missing credentials are a fatal configuration
// error raised before any network call.
type CredentialSource struct {
	file map[string]string
}

// LoadCredentials reads the dotenv file at path. A missing file is fine;
// the environment may carry everything.
func LoadCredentials(path string) (*CredentialSource, error) {
	file, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CredentialSource{file: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &CredentialSource{file: file}, nil
}

// For returns the credentials for the named backend, keyed <NAME>_URL and
// <NAME>_TOKEN.
func (s *CredentialSource) For(backend string) (vcs.Credentials, error) {
	urlKey := strings.ToUpper(backend) + "_URL"
	tokenKey := strings.ToUpper(backend) + "_TOKEN"

	url := s.lookup(urlKey)
	token := s.lookup(tokenKey)
	if url == "" || token == "" {
		return vcs.Credentials{}, fmt.Errorf("provide %s and %s in %s or as environment variables", urlKey, tokenKey, DotenvFile)
	}

	return vcs.Credentials{BaseURL: strings.TrimRight(url, "/"), Token: token}, nil
}

func (s *CredentialSource) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}
