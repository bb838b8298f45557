// Package integrity decides whether the running binary is an official build.
//
// A release ships "<binary>.sig" next to the executable: a compact JWT signed
// with the release Ed25519 key whose "sha256" claim is the digest of the
// binary. The check runs at most once per Verifier.
package integrity

import (
	_ "crypto/sha256"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	apperrors "upcheck/internal/errors"
)

// SignatureSuffix is appended to the binary path to locate its signature.
const SignatureSuffix = ".sig"

// NightlyChannel is the build channel of automatically produced builds.
const NightlyChannel = "nightly"

//go:embed publickey.pem
var releasePublicKey []byte

// ReleasePublicKey returns the bundled PEM encoded release key.
func ReleasePublicKey() []byte {
	return append([]byte(nil), releasePublicKey...)
}

// Claims is the payload of a signature artifact.
type Claims struct {
	SHA256 string `json:"sha256"`
	jwt.RegisteredClaims
}

// Result is the memoized outcome of a self check.
type Result struct {
	Verified bool   `json:"verified" yaml:"verified" toml:"verified"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason,omitempty"`
	Binary   string `json:"binary,omitempty" yaml:"binary,omitempty" toml:"binary,omitempty"`
	Digest   string `json:"digest,omitempty" yaml:"digest,omitempty" toml:"digest,omitempty"`
}

// Options configures a Verifier.
type Options struct {
	// Disabled skips verification; the binary is then reported as unverified.
	Disabled bool
	// PublicKeyPEM overrides the bundled release key.
	PublicKeyPEM []byte
	// BuildCommit and BuildChannel are the provenance markers embedded at build time.
	BuildCommit  string
	BuildChannel string
	// ExecutablePath locates the running binary. Defaults to os.Executable.
	ExecutablePath func() (string, error)
	Logger         *zerolog.Logger
}

// Verifier checks the running binary against its detached signature.
type Verifier struct {
	opts   Options
	logger zerolog.Logger

	once   sync.Once
	result Result
}

// New creates a Verifier. No I/O happens until the first query.
func New(opts Options) *Verifier {
	if opts.ExecutablePath == nil {
		opts.ExecutablePath = os.Executable
	}
	if len(opts.PublicKeyPEM) == 0 {
		opts.PublicKeyPEM = releasePublicKey
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Verifier{opts: opts, logger: logger}
}

// IsSelfVerified reports whether the running binary carries a valid release
// signature. The first call performs the check; later calls return the cached answer.
func (v *Verifier) IsSelfVerified() bool {
	return v.Result().Verified
}

// IsOfficial reports whether the binary is a verified release or a nightly
// build with embedded provenance.
func (v *Verifier) IsOfficial() bool {
	return v.IsSelfVerified() || (v.opts.BuildCommit != "" && v.opts.BuildChannel == NightlyChannel)
}

// Result returns the memoized outcome, running the check if needed.
func (v *Verifier) Result() Result {
	v.once.Do(func() {
		v.result = v.verifySelf()
	})
	return v.result
}

func (v *Verifier) verifySelf() Result {
	if v.opts.Disabled {
		v.logger.Info().Msg("self integrity check disabled")
		return Result{Reason: "self integrity check disabled"}
	}

	binary, err := v.locate()
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to locate running binary")
		return Result{Reason: err.Error()}
	}

	d, err := VerifyFile(binary, v.opts.PublicKeyPEM)
	if err != nil {
		v.logger.Warn().Err(err).Str("binary", binary).Msg("failed to verify myself, is the binary corrupt?")
		return Result{Reason: err.Error(), Binary: binary, Digest: d.String()}
	}

	v.logger.Info().Str("binary", binary).Str("digest", d.String()).Msg("successfully verified current binary")
	return Result{Verified: true, Binary: binary, Digest: d.String()}
}

func (v *Verifier) locate() (string, error) {
	path, err := v.opts.ExecutablePath()
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "locate executable", err)
	}
	if path == "" {
		return "", apperrors.New(apperrors.CodeVerification, "locate executable", fmt.Errorf("empty path"))
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "resolve executable", err)
	}
	return resolved, nil
}

// VerifyFile checks path against "<path>.sig" using the PEM encoded Ed25519
// key. It returns the file digest whenever the file could be read.
func VerifyFile(path string, publicKeyPEM []byte) (digest.Digest, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "load public key", err)
	}

	d, err := fileDigest(path)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path + SignatureSuffix)
	if err != nil {
		return d, apperrors.New(apperrors.CodeVerification, "read signature", err)
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if _, err := parser.ParseWithClaims(strings.TrimSpace(string(raw)), claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return d, apperrors.New(apperrors.CodeVerification, "invalid signature", err)
	}

	want, err := claimDigest(claims.SHA256)
	if err != nil {
		return d, err
	}
	if want != d {
		return d, apperrors.New(apperrors.CodeVerification,
			fmt.Sprintf("digest mismatch: signed %s, found %s", want.Encoded(), d.Encoded()), nil)
	}
	return d, nil
}

func fileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "open binary", err)
	}
	defer func() { _ = f.Close() }()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "hash binary", err)
	}
	return d, nil
}

// claimDigest accepts either a bare hex value or an "sha256:<hex>" digest.
func claimDigest(raw string) (digest.Digest, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", apperrors.New(apperrors.CodeVerification, "signature has no sha256 claim", nil)
	}
	if !strings.Contains(raw, ":") {
		raw = string(digest.SHA256) + ":" + raw
	}
	d, err := digest.Parse(raw)
	if err != nil {
		return "", apperrors.New(apperrors.CodeVerification, "invalid sha256 claim", err)
	}
	if d.Algorithm() != digest.SHA256 {
		return "", apperrors.New(apperrors.CodeVerification,
			fmt.Sprintf("unsupported claim algorithm %s", d.Algorithm()), nil)
	}
	return d, nil
}
